package providers

import (
	"encoding/json"

	"github.com/loomrun/coreagent/pkg/models"
)

// Accumulator holds the mutable state every adapter uses to build up its
// partial Assistant snapshot as wire events arrive (spec 4.D: "mutate a
// local accumulator (content blocks, token counts, stop reason), emit the
// corresponding typed events"). It is not safe for concurrent use; each
// adapter call owns exactly one Accumulator on its single worker
// goroutine.
type Accumulator struct {
	api      models.ApiId
	provider models.ProviderId
	model    string

	blocks      []models.ContentBlock
	toolBuffers map[int]string // contentIndex -> concatenated raw JSON fragments

	usage      models.Usage
	stopReason models.StopReason
}

// NewAccumulator creates an Accumulator for one streaming call.
func NewAccumulator(api models.ApiId, provider models.ProviderId, model string) *Accumulator {
	return &Accumulator{
		api:         api,
		provider:    provider,
		model:       model,
		toolBuffers: make(map[int]string),
		stopReason:  models.StopReasonStop,
	}
}

// Partial returns a snapshot of the assistant message as it stands right
// now; the returned value never aliases the accumulator's own slice.
func (a *Accumulator) Partial() models.Assistant {
	blocks := make(models.ContentBlocks, len(a.blocks))
	copy(blocks, a.blocks)
	return models.Assistant{
		Content:    blocks,
		Api:        a.api,
		Provider:   a.provider,
		Model:      a.model,
		Usage:      a.usage,
		StopReason: a.effectiveStopReason(),
	}
}

// effectiveStopReason applies the promotion rule from spec 4.D: "if any
// ToolCall has been appended by the time of the finale, it is promoted to
// TOOL_USE unless the provider already set LENGTH or ERROR".
func (a *Accumulator) effectiveStopReason() models.StopReason {
	if a.stopReason == models.StopReasonLength || a.stopReason == models.StopReasonError {
		return a.stopReason
	}
	for _, b := range a.blocks {
		if _, ok := b.(models.ToolCall); ok {
			return models.StopReasonToolUse
		}
	}
	return a.stopReason
}

// OpenText appends a new, empty Text block and returns its content index.
func (a *Accumulator) OpenText() int {
	a.blocks = append(a.blocks, models.Text{})
	return len(a.blocks) - 1
}

// AppendTextDelta appends delta to the Text block at index.
func (a *Accumulator) AppendTextDelta(index int, delta string) {
	t, _ := a.blocks[index].(models.Text)
	t.TextValue += delta
	a.blocks[index] = t
}

// CloseText returns the final text value of the block at index.
func (a *Accumulator) CloseText(index int) string {
	t, _ := a.blocks[index].(models.Text)
	return t.TextValue
}

// SetTextSignature attaches a provider cross-turn replay token to the
// Text block at index.
func (a *Accumulator) SetTextSignature(index int, sig string) {
	t, _ := a.blocks[index].(models.Text)
	t.TextSignature = sig
	a.blocks[index] = t
}

// OpenThinking appends a new, empty Thinking block and returns its index.
func (a *Accumulator) OpenThinking() int {
	a.blocks = append(a.blocks, models.Thinking{})
	return len(a.blocks) - 1
}

// AppendThinkingDelta appends delta to the Thinking block at index.
func (a *Accumulator) AppendThinkingDelta(index int, delta string) {
	t, _ := a.blocks[index].(models.Thinking)
	t.ThinkingValue += delta
	a.blocks[index] = t
}

// CloseThinking returns the final thinking value of the block at index.
func (a *Accumulator) CloseThinking(index int) string {
	t, _ := a.blocks[index].(models.Thinking)
	return t.ThinkingValue
}

// SetThinkingSignature attaches a replay token to the Thinking block.
func (a *Accumulator) SetThinkingSignature(index int, sig string) {
	t, _ := a.blocks[index].(models.Thinking)
	t.ThinkingSignature = sig
	a.blocks[index] = t
}

// OpenToolCall appends a new ToolCall block with id/name set and empty
// arguments, returning its content index (spec 4.D.3: "the initial block
// has id and name but empty arguments").
func (a *Accumulator) OpenToolCall(id, name string) int {
	a.blocks = append(a.blocks, models.ToolCall{ID: id, Name: name, Arguments: models.JSONObject{}})
	return len(a.blocks) - 1
}

// AppendToolCallArgDelta concatenates a raw JSON fragment onto the
// tool-call's argument buffer at index.
func (a *Accumulator) AppendToolCallArgDelta(index int, fragment string) {
	a.toolBuffers[index] += fragment
}

// CloseToolCall parses the accumulated argument buffer into the ToolCall's
// Arguments. Invalid JSON yields an empty object rather than an error,
// matching spec 4.D.3's "invalid JSON yields an empty object — do NOT
// error".
func (a *Accumulator) CloseToolCall(index int) models.ToolCall {
	tc, _ := a.blocks[index].(models.ToolCall)
	raw := a.toolBuffers[index]
	if raw == "" {
		tc.Arguments = models.JSONObject{}
	} else {
		var obj models.JSONObject
		if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
			obj = models.JSONObject{}
		}
		tc.Arguments = obj
	}
	a.blocks[index] = tc
	delete(a.toolBuffers, index)
	return tc
}

// SetToolCallArguments sets a tool call's arguments directly, for
// adapters (e.g. Google) that receive already-parsed objects rather than
// streamed JSON fragments.
func (a *Accumulator) SetToolCallArguments(index int, args models.JSONObject) {
	tc, _ := a.blocks[index].(models.ToolCall)
	if args == nil {
		args = models.JSONObject{}
	}
	tc.Arguments = args
	a.blocks[index] = tc
}

// SetThoughtSignature attaches a Google-specific replay token to the tool
// call at index.
func (a *Accumulator) SetThoughtSignature(index int, sig string) {
	tc, _ := a.blocks[index].(models.ToolCall)
	tc.ThoughtSignature = sig
	a.blocks[index] = tc
}

// SetUsage overwrites the accumulated usage totals.
func (a *Accumulator) SetUsage(u models.Usage) { a.usage = u }

// AddUsage accumulates partial usage deltas (some wire formats report
// input/output tokens incrementally across events).
func (a *Accumulator) AddUsage(u models.Usage) {
	a.usage.Input += u.Input
	a.usage.Output += u.Output
	a.usage.CacheRead += u.CacheRead
	a.usage.CacheWrite += u.CacheWrite
	a.usage.TotalTokens += u.TotalTokens
}

// SetStopReason records the provider-reported stop reason.
func (a *Accumulator) SetStopReason(r models.StopReason) { a.stopReason = r }

// Finalize returns the immutable final Assistant message once the
// terminal wire event has been observed.
func (a *Accumulator) Finalize() models.Assistant {
	return a.Partial()
}
