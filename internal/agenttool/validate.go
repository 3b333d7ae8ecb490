package agenttool

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/loomrun/coreagent/pkg/models"
)

// schemaCache avoids recompiling a tool's Parameters schema on every call;
// tool definitions are effectively static for the registry's lifetime.
var schemaCache sync.Map

// validateArguments checks arguments against a tool's Definition.Parameters
// JSON Schema, returning a descriptive error when they don't conform. A nil
// or empty schema always validates (a tool with no declared parameters
// accepts anything).
func validateArguments(def Definition, arguments models.JSONObject) error {
	if len(def.Parameters) == 0 {
		return nil
	}

	schema, err := compileParameterSchema(def.Name, def.Parameters)
	if err != nil {
		return fmt.Errorf("compile schema for tool %q: %w", def.Name, err)
	}

	payload, err := json.Marshal(arguments)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("arguments invalid: %w", err)
	}
	return nil
}

func compileParameterSchema(toolName string, parameters map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(parameters)
	if err != nil {
		return nil, err
	}
	key := toolName + ":" + string(raw)
	if cached, ok := schemaCache.Load(key); ok {
		if compiled, ok := cached.(*jsonschema.Schema); ok {
			return compiled, nil
		}
	}
	compiled, err := jsonschema.CompileString(toolName+".schema.json", string(raw))
	if err != nil {
		return nil, err
	}
	schemaCache.Store(key, compiled)
	return compiled, nil
}
