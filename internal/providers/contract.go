// Package providers defines the neutral provider contract every vendor
// adapter implements (spec 4.D), the process-wide registry that resolves
// an ApiId to a provider instance (spec 4.E), and the shared error
// taxonomy adapters report through (spec 7).
//
// Concrete wire adapters live in the openaicompat, anthropic, google, and
// bedrock subpackages; this package only fixes the shape they share so
// the agent loop and runtime never depend on a specific vendor.
package providers

import (
	"context"

	"github.com/loomrun/coreagent/internal/eventstream"
	"github.com/loomrun/coreagent/pkg/models"
)

// ToolDefinition is the neutral shape of a tool passed to a provider
// adapter: a name, a human description, and a JSON Schema for its
// arguments (spec 4.F).
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Context is the per-call request shape every adapter serialises into its
// own wire format: a system prompt, the message history, and the tool
// definitions currently in scope (spec 3.5: "Context is constructed per
// model call from the AgentContext's message list; it is consumed and
// discarded").
type Context struct {
	SystemPrompt string
	Messages     models.MessageList
	Tools        []ToolDefinition
}

// ThinkingLevel is the user-facing reasoning-effort dial; each adapter
// lowers it to its own provider-specific knob (spec 4.D: "reasoning:
// ThinkingLevel").
type ThinkingLevel string

const (
	ThinkingMinimal ThinkingLevel = "MINIMAL"
	ThinkingLow     ThinkingLevel = "LOW"
	ThinkingMedium  ThinkingLevel = "MEDIUM"
	ThinkingHigh    ThinkingLevel = "HIGH"
	ThinkingXHigh   ThinkingLevel = "XHIGH"
)

// CacheRetention selects Anthropic prompt-cache TTL for the last user
// message (spec 4.D.3).
type CacheRetention string

const (
	CacheRetentionNone  CacheRetention = ""
	CacheRetentionShort CacheRetention = "SHORT"
	CacheRetentionLong  CacheRetention = "LONG"
)

// Options is the full per-call request configuration.
type Options struct {
	// Headers are unioned with model.Headers (this field wins on conflict)
	// before provider-specific auth/version headers are added (spec 4.D
	// step 1).
	Headers map[string]string

	// Reasoning requests extended/structured reasoning output when the
	// model supports it.
	Reasoning ThinkingLevel

	// ThinkingBudgets optionally overrides the token budget for a given
	// reasoning level, keyed by ThinkingLevel.
	ThinkingBudgets map[ThinkingLevel]int

	CacheRetention CacheRetention

	Temperature *float64
	MaxTokens   int

	// OnPayload, if set, observes the serialised request body before it
	// is sent over the wire (spec 9 design notes).
	OnPayload func(body []byte)
}

// SimpleOptions is the user-facing request variant; adapters lower it to
// the full Options by copying common fields (spec 4.D).
type SimpleOptions struct {
	Reasoning       ThinkingLevel
	ThinkingBudgets map[ThinkingLevel]int
	Headers         map[string]string
}

// Lower converts SimpleOptions to the full Options shape.
func (s SimpleOptions) Lower() *Options {
	if s.Reasoning == "" && len(s.Headers) == 0 && len(s.ThinkingBudgets) == 0 {
		return &Options{}
	}
	return &Options{
		Headers:         s.Headers,
		Reasoning:       s.Reasoning,
		ThinkingBudgets: s.ThinkingBudgets,
	}
}

// ApiProvider is the protocol state machine every vendor adapter
// implements (spec 4.D).
type ApiProvider interface {
	// Api returns the ApiId this provider registers under.
	Api() models.ApiId

	// Stream issues a request and returns a stream of AssistantEvent that
	// resolves to the final models.Assistant.
	Stream(ctx context.Context, model models.Model, reqCtx Context, options *Options) *eventstream.AssistantStream

	// StreamSimple lowers simpleOptions to Options and calls Stream.
	StreamSimple(ctx context.Context, model models.Model, reqCtx Context, simpleOptions *SimpleOptions) *eventstream.AssistantStream
}
