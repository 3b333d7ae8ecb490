// Package models provides the shared conversation data model for the agent
// runtime: content blocks, polymorphic messages, usage accounting, and the
// catalog identifiers (ApiId, ProviderId, Model) that every other package
// builds on.
package models

// ApiId names a wire protocol family, e.g. "openai-responses",
// "anthropic-messages", "google-generative-ai". It is opaque to the core:
// adapters register under an ApiId and the registry resolves calls by it.
type ApiId string

// ProviderId names a vendor or gateway that serves models over one or more
// Apis, e.g. "openai", "anthropic", "openrouter", "groq".
type ProviderId string

// InputKind enumerates the content modalities a model accepts.
type InputKind string

const (
	InputKindText  InputKind = "text"
	InputKindImage InputKind = "image"
)

// Cost describes per-token USD pricing for a model, in dollars per token.
type Cost struct {
	Input      float64 `json:"input"`
	Output     float64 `json:"output"`
	CacheRead  float64 `json:"cacheRead"`
	CacheWrite float64 `json:"cacheWrite"`
}

// Model is a concrete deployable endpoint at a provider: it carries the
// context window, default headers, and billing metadata needed to drive a
// request through the matching provider adapter.
type Model struct {
	ID             string            `json:"id" yaml:"id"`
	Name           string            `json:"name" yaml:"name"`
	Api            ApiId             `json:"api" yaml:"api"`
	Provider       ProviderId        `json:"provider" yaml:"provider"`
	BaseUrl        string            `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	Reasoning      bool              `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
	InputKinds     []InputKind       `json:"inputKinds,omitempty" yaml:"input,omitempty"`
	Cost           Cost              `json:"cost,omitempty" yaml:"cost,omitempty"`
	ContextWindow  int               `json:"contextWindow,omitempty" yaml:"contextWindow,omitempty"`
	MaxTokens      int               `json:"maxTokens,omitempty" yaml:"maxTokens,omitempty"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Compat         map[string]any    `json:"compat,omitempty" yaml:"compat,omitempty"`
}

// AcceptsImages reports whether the model declares image input support.
func (m Model) AcceptsImages() bool {
	for _, k := range m.InputKinds {
		if k == InputKindImage {
			return true
		}
	}
	return false
}

// IsDatedVersion reports whether the model id carries a trailing
// "-YYYYMMDD" date stamp, used by the fuzzy resolver (spec 6.4) to prefer
// undated aliases over pinned snapshots.
func (m Model) IsDatedVersion() bool {
	return hasTrailingDateStamp(m.ID)
}

func hasTrailingDateStamp(id string) bool {
	if len(id) < 9 {
		return false
	}
	suffix := id[len(id)-9:]
	if suffix[0] != '-' {
		return false
	}
	for _, c := range suffix[1:] {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
