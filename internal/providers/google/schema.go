package google

import (
	"strings"

	"google.golang.org/genai"
)

// geminiSchemaKeys is the set of JSON Schema keywords Gemini's function
// declaration schema understands; every other keyword is stripped
// recursively before a tool's parameter schema is sent (spec 4.D.4:
// "$schema, $ref, $defs, examples, default, pattern, patternProperties,
// min/maxItems, min/maxLength, minimum, maximum, exclusiveMinimum,
// exclusiveMaximum, additionalProperties, format, title are all dropped").
var geminiSchemaKeys = map[string]bool{
	"type": true, "description": true, "enum": true, "properties": true,
	"required": true, "items": true, "nullable": true,
}

// SanitizeSchema recursively strips JSON Schema keywords Gemini doesn't
// accept, returning a tree safe to hand to ToGeminiSchema.
func SanitizeSchema(node any) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			if !geminiSchemaKeys[k] {
				continue
			}
			out[k] = SanitizeSchema(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = SanitizeSchema(e)
		}
		return out
	default:
		return v
	}
}

// ToGeminiSchema converts a sanitized JSON Schema map to Gemini's Schema
// type, grounded on nexus's toolconv.ToGeminiSchema whitelist walk.
func ToGeminiSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}
	schemaMap = SanitizeSchema(schemaMap).(map[string]any)

	s := &genai.Schema{}
	if t, ok := schemaMap["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if d, ok := schemaMap["description"].(string); ok {
		s.Description = d
	}
	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if str, ok := e.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}
	if props, ok := schemaMap["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				s.Properties[name] = ToGeminiSchema(propMap)
			}
		}
	}
	if required, ok := schemaMap["required"].([]any); ok {
		for _, r := range required {
			if str, ok := r.(string); ok {
				s.Required = append(s.Required, str)
			}
		}
	}
	if items, ok := schemaMap["items"].(map[string]any); ok {
		s.Items = ToGeminiSchema(items)
	}
	return s
}
