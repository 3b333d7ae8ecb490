package agentloop

import (
	"context"
	"time"

	"github.com/loomrun/coreagent/internal/agenttool"
	"github.com/loomrun/coreagent/internal/eventstream"
	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/pkg/models"
)

// DefaultMaxTurns is the loop's default turn ceiling (spec 4.H: "maxTurns
// (default 40)").
const DefaultMaxTurns = 40

// StreamFunc issues one model call and returns its event stream; in
// practice this is a providers.ApiProvider's Stream method, resolved
// through the provider registry by the caller (spec 4.E).
type StreamFunc func(ctx context.Context, model models.Model, reqCtx providers.Context, options *providers.Options) *eventstream.AssistantStream

// Config configures one Loop (spec 4.H "config").
type Config struct {
	Model models.Model

	// ConvertToLlm prepares a turn's history for the wire. Defaults to
	// pipeline.DefaultConvertToLlm when nil.
	ConvertToLlm func(models.MessageList) models.MessageList

	// BeforeAgent, if set, runs before ConvertToLlm each turn.
	BeforeAgent func(models.MessageList) models.MessageList

	// AfterAgent, if set, runs once after the loop's final turn.
	AfterAgent func(models.MessageList)

	// MaxTurns caps the number of turns; non-positive uses DefaultMaxTurns.
	MaxTurns int

	// OnError, if set, observes every ErrorEvent a turn's stream produces.
	OnError func(reason models.StopReason, assistant models.Assistant)

	// Fallbacks, if non-empty, are tried in order when the primary
	// model's error classifies as FailoverReason.ShouldFailover() (spec
	// SUPPLEMENTED FEATURES). Each fallback that also fails is itself
	// subject to failover into the next one.
	Fallbacks []Fallback

	// Approval, if set, is consulted before every tool call executes
	// (spec SUPPLEMENTED FEATURES: human-in-the-loop tool approval). Nil
	// means every tool call runs unattended.
	Approval *ApprovalChecker

	// SessionID identifies this run to the ApprovalChecker's store.
	SessionID string

	// ApprovalPollInterval controls how often a pending approval request
	// is re-checked. Defaults to 500ms.
	ApprovalPollInterval time.Duration

	// ResultGuard redacts secrets and caps size on every tool result
	// before it is appended to history. Zero value (Enabled false) skips
	// guarding entirely.
	ResultGuard agenttool.ResultGuard

	Options *providers.Options
}

func (c Config) maxTurns() int {
	if c.MaxTurns <= 0 {
		return DefaultMaxTurns
	}
	return c.MaxTurns
}

func (c Config) approvalPollInterval() time.Duration {
	if c.ApprovalPollInterval > 0 {
		return c.ApprovalPollInterval
	}
	return 500 * time.Millisecond
}

func (c Config) options() *providers.Options {
	if c.Options != nil {
		return c.Options
	}
	return &providers.Options{}
}
