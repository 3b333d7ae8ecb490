// Package agentloop implements the agent-level run loop (spec 4.H): it
// drives a provider's AssistantStream turn by turn, dispatches tool calls
// against an agenttool.Registry, and emits a single outer event stream a
// caller drains to observe (and a runtime to journal) the whole run.
package agentloop

import (
	"github.com/loomrun/coreagent/internal/agenttool"
	"github.com/loomrun/coreagent/internal/eventstream"
	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/pkg/models"
)

// Event is the sum type the outer agent stream carries (spec 4.H).
type Event interface {
	isAgentEvent()
}

// StartEvent opens a run, after prompts have been appended to the
// context's message list.
type StartEvent struct{}

func (StartEvent) isAgentEvent() {}

// TurnStartEvent opens turn TurnIndex (zero-based).
type TurnStartEvent struct {
	TurnIndex int
}

func (TurnStartEvent) isAgentEvent() {}

// MessageStartEvent carries the empty assistant snapshot a turn's stream
// begins with.
type MessageStartEvent struct {
	Message models.Assistant
}

func (MessageStartEvent) isAgentEvent() {}

// StreamEvent forwards one inner provider event verbatim.
type StreamEvent struct {
	Inner eventstream.AssistantEvent
}

func (StreamEvent) isAgentEvent() {}

// MessageEndEvent carries the final assistant message appended to the
// context's history.
type MessageEndEvent struct {
	Message models.Assistant
}

func (MessageEndEvent) isAgentEvent() {}

// ToolExecutionStartEvent is emitted immediately before a resolved tool's
// Execute is invoked.
type ToolExecutionStartEvent struct {
	ToolCallID string
	ToolName   string
	Arguments  models.JSONObject
}

func (ToolExecutionStartEvent) isAgentEvent() {}

// ToolExecutionUpdateEvent forwards one progress notification from a
// running tool.
type ToolExecutionUpdateEvent struct {
	ToolCallID string
	Progress   agenttool.Update
}

func (ToolExecutionUpdateEvent) isAgentEvent() {}

// ToolExecutionDeniedEvent is emitted instead of a normal execution when
// an ApprovalChecker denies a tool call, either outright or after a
// pending request expired unanswered.
type ToolExecutionDeniedEvent struct {
	ToolCallID string
	ToolName   string
	Reason     string
}

func (ToolExecutionDeniedEvent) isAgentEvent() {}

// ToolExecutionEndEvent carries a tool call's outcome, successful or not.
type ToolExecutionEndEvent struct {
	ToolCallID string
	ToolName   string
	Result     agenttool.Result[any]
	IsError    bool
}

func (ToolExecutionEndEvent) isAgentEvent() {}

// FailoverEvent is emitted when a turn's primary model call failed with
// an error whose FailoverReason.ShouldFailover() is true and the loop is
// retrying the same turn against a configured fallback model.
type FailoverEvent struct {
	FromModel string
	ToModel   string
	Reason    providers.FailoverReason
}

func (FailoverEvent) isAgentEvent() {}

// TurnEndEvent closes a turn with the stop reason that ended it.
type TurnEndEvent struct {
	StopReason models.StopReason
}

func (TurnEndEvent) isAgentEvent() {}

// EndEvent is the terminal event: Aborted reports whether the run ended
// because Abort was called rather than running to completion.
type EndEvent struct {
	Aborted bool
}

func (EndEvent) isAgentEvent() {}

// Stream is an eventstream.Stream specialised for the agent loop: events
// are Event, and the deferred result reports whether the run was aborted.
type Stream = eventstream.Stream[Event, bool]

func endTerminal(e Event) (bool, bool) {
	if end, ok := e.(EndEvent); ok {
		return end.Aborted, true
	}
	return false, false
}

func newStream() *Stream {
	return eventstream.New[Event, bool](endTerminal)
}
