package eventstream

import "github.com/loomrun/coreagent/pkg/models"

// AssistantEvent is the sum type streamed by every provider adapter (spec
// 4.B). Partial is always a consistent, never-erroneous snapshot of the
// assistant message after the event is applied.
type AssistantEvent interface {
	isAssistantEvent()
}

// StartEvent opens a new assistant turn with an empty-content partial.
type StartEvent struct {
	Partial models.Assistant
}

func (StartEvent) isAssistantEvent() {}

// TextStartEvent opens a new text content block at ContentIndex.
type TextStartEvent struct {
	ContentIndex int
	Partial      models.Assistant
}

func (TextStartEvent) isAssistantEvent() {}

// TextDeltaEvent appends Delta to the open text block at ContentIndex.
type TextDeltaEvent struct {
	ContentIndex int
	Delta        string
	Partial      models.Assistant
}

func (TextDeltaEvent) isAssistantEvent() {}

// TextEndEvent closes the text block at ContentIndex with its final value.
type TextEndEvent struct {
	ContentIndex int
	Content      string
	Partial      models.Assistant
}

func (TextEndEvent) isAssistantEvent() {}

// ThinkingStartEvent opens a new thinking content block at ContentIndex.
type ThinkingStartEvent struct {
	ContentIndex int
	Partial      models.Assistant
}

func (ThinkingStartEvent) isAssistantEvent() {}

// ThinkingDeltaEvent appends Delta to the open thinking block.
type ThinkingDeltaEvent struct {
	ContentIndex int
	Delta        string
	Partial      models.Assistant
}

func (ThinkingDeltaEvent) isAssistantEvent() {}

// ThinkingEndEvent closes the thinking block with its final value.
type ThinkingEndEvent struct {
	ContentIndex int
	Content      string
	Partial      models.Assistant
}

func (ThinkingEndEvent) isAssistantEvent() {}

// ToolCallStartEvent opens a new tool-call content block at ContentIndex.
// The tool call's arguments are not yet populated.
type ToolCallStartEvent struct {
	ContentIndex int
	Partial      models.Assistant
}

func (ToolCallStartEvent) isAssistantEvent() {}

// ToolCallDeltaEvent carries a raw JSON argument fragment for the tool
// call at ContentIndex; fragments are concatenated and parsed on
// ToolCallEndEvent (spec 4.D.3).
type ToolCallDeltaEvent struct {
	ContentIndex int
	Delta        string
	Partial      models.Assistant
}

func (ToolCallDeltaEvent) isAssistantEvent() {}

// ToolCallEndEvent closes the tool-call block with its fully parsed
// arguments.
type ToolCallEndEvent struct {
	ContentIndex int
	ToolCall     models.ToolCall
	Partial      models.Assistant
}

func (ToolCallEndEvent) isAssistantEvent() {}

// DoneEvent is the successful terminal event: Message is the final,
// immutable assistant message.
type DoneEvent struct {
	Reason  models.StopReason
	Message models.Assistant
}

func (DoneEvent) isAssistantEvent() {}

// ErrorEvent is the failure terminal event.
type ErrorEvent struct {
	Reason models.StopReason
	Error  models.Assistant
}

func (ErrorEvent) isAssistantEvent() {}

// AssistantStream is a Stream specialised for provider adapters: events
// are AssistantEvent, and the deferred result is the final models.Assistant.
type AssistantStream = Stream[AssistantEvent, models.Assistant]

// assistantTerminal implements the terminal predicate for assistant
// streams: it matches DoneEvent ∪ ErrorEvent (spec 4.B).
func assistantTerminal(e AssistantEvent) (models.Assistant, bool) {
	switch v := e.(type) {
	case DoneEvent:
		return v.Message, true
	case ErrorEvent:
		return v.Error, true
	default:
		var zero models.Assistant
		return zero, false
	}
}

// NewAssistantStream creates an AssistantStream whose terminal predicate
// matches DoneEvent and ErrorEvent.
func NewAssistantStream() *AssistantStream {
	return New[AssistantEvent, models.Assistant](assistantTerminal)
}

// EndWithoutTerminal closes s with a synthetic ErrorEvent if the producer
// returned without ever pushing a terminal event, so collectors cannot
// hang (spec 4.B: "Exactly one terminal event MUST be pushed[...] so
// collectors cannot hang").
func EndWithoutTerminal(s *AssistantStream) {
	if s.IsTerminated() {
		return
	}
	errMsg := models.Assistant{
		StopReason:   models.StopReasonError,
		ErrorMessage: "Stream ended without a complete response",
	}
	s.Push(ErrorEvent{Reason: models.StopReasonError, Error: errMsg})
}
