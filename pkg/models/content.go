package models

import (
	"encoding/json"
	"fmt"
)

// JSONObject is an opaque JSON object, used for tool-call arguments and
// free-form details payloads. The core never interprets its contents.
type JSONObject map[string]any

// ContentBlock is one polymorphic element of a message's content list.
// Concrete variants are Text, Thinking, Image, and ToolCall (spec 3.2).
// Every variant reports its own wire-format tag via Kind, used for the
// tagged-variant JSON encoding required by the session format (spec 6.2).
type ContentBlock interface {
	Kind() string
}

// Text is a plain-text content block. TextSignature is an opaque
// provider-issued cross-turn replay token; it is stripped whenever a
// message crosses a provider boundary (spec 3.2).
type Text struct {
	TextValue     string `json:"text"`
	TextSignature string `json:"textSignature,omitempty"`
}

func (Text) Kind() string { return "text" }

// Thinking is a reasoning-trace content block. It may be lowered to a Text
// block wrapped in <thinking>...</thinking> tags when crossing a provider
// boundary that does not understand native thinking blocks (spec 4.G.3).
type Thinking struct {
	ThinkingValue     string `json:"thinking"`
	ThinkingSignature string `json:"thinkingSignature,omitempty"`
}

func (Thinking) Kind() string { return "thinking" }

// Image is an inline base64-encoded image content block.
type Image struct {
	Base64Data string `json:"base64Data"`
	MimeType   string `json:"mimeType"`
}

func (Image) Kind() string { return "image" }

// ToolCall is a provider-issued request to invoke a named tool. ID is
// provider-assigned and MUST be echoed back in the matching ToolResult
// message. ThoughtSignature is an opaque Google-specific replay token
// carried alongside function calls.
type ToolCall struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Arguments        JSONObject `json:"arguments"`
	ThoughtSignature string     `json:"thoughtSignature,omitempty"`
}

func (ToolCall) Kind() string { return "toolCall" }

// wireContentBlock is the tagged-variant envelope used to (de)serialize a
// ContentBlock: a "type" discriminator plus the variant's own fields
// flattened alongside it.
type wireContentBlock struct {
	Type string `json:"type"`

	Text          string `json:"text,omitempty"`
	TextSignature string `json:"textSignature,omitempty"`

	Thinking          string `json:"thinking,omitempty"`
	ThinkingSignature string `json:"thinkingSignature,omitempty"`

	Base64Data string `json:"base64Data,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`

	ID               string     `json:"id,omitempty"`
	Name             string     `json:"name,omitempty"`
	Arguments        JSONObject `json:"arguments,omitempty"`
	ThoughtSignature string     `json:"thoughtSignature,omitempty"`
}

// MarshalContentBlock encodes a single ContentBlock into its tagged-variant
// wire form (spec 6.2: content blocks are tagged text/thinking/image/
// toolCall).
func MarshalContentBlock(b ContentBlock) ([]byte, error) {
	w := wireContentBlock{Type: b.Kind()}
	switch v := b.(type) {
	case Text:
		w.Text, w.TextSignature = v.TextValue, v.TextSignature
	case Thinking:
		w.Thinking, w.ThinkingSignature = v.ThinkingValue, v.ThinkingSignature
	case Image:
		w.Base64Data, w.MimeType = v.Base64Data, v.MimeType
	case ToolCall:
		w.ID, w.Name, w.Arguments, w.ThoughtSignature = v.ID, v.Name, v.Arguments, v.ThoughtSignature
	default:
		return nil, fmt.Errorf("models: unknown content block type %T", b)
	}
	return json.Marshal(w)
}

// UnmarshalContentBlock decodes a tagged-variant content block. Unknown
// keys are ignored (forward compatibility); an unrecognised "type" is an
// error since the caller has no safe default to fall back to.
func UnmarshalContentBlock(data []byte) (ContentBlock, error) {
	var w wireContentBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	switch w.Type {
	case "text":
		return Text{TextValue: w.Text, TextSignature: w.TextSignature}, nil
	case "thinking":
		return Thinking{ThinkingValue: w.Thinking, ThinkingSignature: w.ThinkingSignature}, nil
	case "image":
		return Image{Base64Data: w.Base64Data, MimeType: w.MimeType}, nil
	case "toolCall":
		return ToolCall{ID: w.ID, Name: w.Name, Arguments: w.Arguments, ThoughtSignature: w.ThoughtSignature}, nil
	default:
		return nil, fmt.Errorf("models: unknown content block tag %q", w.Type)
	}
}

// ContentBlocks is a JSON-(de)serializable list of ContentBlock.
type ContentBlocks []ContentBlock

func (cs ContentBlocks) MarshalJSON() ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(cs))
	for _, b := range cs {
		data, err := MarshalContentBlock(b)
		if err != nil {
			return nil, err
		}
		raw = append(raw, data)
	}
	return json.Marshal(raw)
}

func (cs *ContentBlocks) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(ContentBlocks, 0, len(raw))
	for _, r := range raw {
		b, err := UnmarshalContentBlock(r)
		if err != nil {
			// Forward compatibility: skip content blocks from a newer
			// schema version rather than failing the whole message.
			continue
		}
		out = append(out, b)
	}
	*cs = out
	return nil
}

// TextOf concatenates every Text block's value, the common case of
// rendering an assistant message body without reasoning traces.
func TextOf(blocks ContentBlocks) string {
	var out string
	for _, b := range blocks {
		if t, ok := b.(Text); ok {
			out += t.TextValue
		}
	}
	return out
}

// ToolCallsOf extracts every ToolCall block from a content list, in order.
func ToolCallsOf(blocks ContentBlocks) []ToolCall {
	var out []ToolCall
	for _, b := range blocks {
		if tc, ok := b.(ToolCall); ok {
			out = append(out, tc)
		}
	}
	return out
}
