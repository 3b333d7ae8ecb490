// Package openaicompat implements the OpenAI chat-completions wire
// protocol (spec 4.D.1) and its generalisation to third-party
// OpenAI-compatible gateways (spec 4.D.6: Groq, OpenRouter, Mistral, and
// friends resolve to this adapter parameterised by a Compat record).
package openaicompat

// Compat parameterises the handful of documented deviations
// OpenAI-compatible third parties exhibit (spec 4.D.6).
type Compat struct {
	// SupportsDeveloperRole routes the system prompt through role
	// "developer" instead of "system" (OpenAI o-series convention).
	SupportsDeveloperRole bool

	// MaxTokensField names the JSON field carrying the max-token budget.
	// Defaults to "max_completion_tokens"; Mistral and others use
	// "max_tokens".
	MaxTokensField string

	// RequiresMistralToolIds reshapes tool_call_id/id to Mistral's
	// required 9-character alphanumeric format.
	RequiresMistralToolIds bool

	// RequiresThinkingAsText serialises Thinking content blocks as plain
	// text wrapped in <thinking>...</thinking> instead of a typed block
	// (spec 4.D.1).
	RequiresThinkingAsText bool

	// SupportsStreamOptions requests {"stream_options":{"include_usage":
	// true}} so usage is reported on the final SSE chunk.
	SupportsStreamOptions bool
}

// DefaultCompat is the stock OpenAI configuration.
func DefaultCompat() Compat {
	return Compat{
		MaxTokensField:         "max_completion_tokens",
		SupportsStreamOptions:  true,
	}
}

// MistralCompat matches Mistral's documented OpenAI-compatible deviations.
func MistralCompat() Compat {
	return Compat{
		MaxTokensField:          "max_tokens",
		RequiresMistralToolIds:  true,
	}
}

func (c Compat) maxTokensField() string {
	if c.MaxTokensField == "" {
		return "max_completion_tokens"
	}
	return c.MaxTokensField
}
