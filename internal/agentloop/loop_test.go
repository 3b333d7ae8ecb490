package agentloop

import (
	"context"
	"testing"

	"github.com/loomrun/coreagent/internal/agenttool"
	"github.com/loomrun/coreagent/internal/eventstream"
	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/pkg/models"
)

// scriptedStream returns a StreamFunc that serves one scripted
// models.Assistant per call, in order, regardless of the request it's
// given.
func scriptedStream(t *testing.T, turns ...models.Assistant) StreamFunc {
	t.Helper()
	i := 0
	return func(ctx context.Context, model models.Model, reqCtx providers.Context, options *providers.Options) *eventstream.AssistantStream {
		if i >= len(turns) {
			t.Fatalf("scriptedStream: called more than %d times", len(turns))
		}
		asst := turns[i]
		i++
		s := eventstream.NewAssistantStream()
		go func() {
			s.Push(eventstream.StartEvent{Partial: models.Assistant{}})
			s.Push(eventstream.DoneEvent{Reason: asst.StopReason, Message: asst})
		}()
		return s
	}
}

type echoTool struct{}

func (echoTool) Label() string { return "echo" }
func (echoTool) Definition() agenttool.Definition {
	return agenttool.Definition{Name: "echo", Description: "echoes", Parameters: map[string]any{}}
}
func (echoTool) Execute(ctx context.Context, toolCallID string, arguments models.JSONObject, onUpdate func(agenttool.Update)) (agenttool.Result[struct{}], error) {
	if onUpdate != nil {
		onUpdate(agenttool.Update{Message: "working"})
	}
	return agenttool.Result[struct{}]{Content: models.ContentBlocks{models.Text{TextValue: "echoed"}}}, nil
}

func collect(s *Stream) []Event {
	var out []Event
	for ev := range s.Events() {
		out = append(out, ev)
	}
	return out
}

func TestLoopSingleTurnNoTools(t *testing.T) {
	final := models.Assistant{StopReason: models.StopReasonStop, Content: models.ContentBlocks{models.Text{TextValue: "hi"}}}
	registry := agenttool.NewRegistry()
	ctx := NewContext("be helpful", registry, nil)
	loop := New(ctx, Config{}, scriptedStream(t, final))

	stream := loop.Run(context.Background(), []models.User{
		{Content: models.ContentBlocks{models.Text{TextValue: "hello"}}},
	})
	events := collect(stream)
	aborted := stream.Result()

	if aborted {
		t.Fatal("run should not be aborted")
	}
	var sawTurnEnd, sawAgentEnd bool
	for _, ev := range events {
		switch v := ev.(type) {
		case TurnEndEvent:
			sawTurnEnd = true
			if v.StopReason != models.StopReasonStop {
				t.Fatalf("turn end stop reason = %v, want STOP", v.StopReason)
			}
		case EndEvent:
			sawAgentEnd = true
			if v.Aborted {
				t.Fatal("EndEvent.Aborted = true, want false")
			}
		}
	}
	if !sawTurnEnd || !sawAgentEnd {
		t.Fatalf("missing expected events: turnEnd=%v agentEnd=%v", sawTurnEnd, sawAgentEnd)
	}

	msgs := ctx.Messages()
	if len(msgs) != 2 {
		t.Fatalf("len(messages) = %d, want 2 (user + assistant)", len(msgs))
	}
}

func TestLoopRunsToolThenStops(t *testing.T) {
	toolTurn := models.Assistant{
		StopReason: models.StopReasonToolUse,
		Content:    models.ContentBlocks{models.ToolCall{ID: "c1", Name: "echo", Arguments: models.JSONObject{"x": 1}}},
	}
	doneTurn := models.Assistant{StopReason: models.StopReasonStop, Content: models.ContentBlocks{models.Text{TextValue: "done"}}}

	registry := agenttool.NewRegistry()
	registry.Register("echo", agenttool.Adapt[struct{}](echoTool{}))
	ctx := NewContext("", registry, nil)
	loop := New(ctx, Config{}, scriptedStream(t, toolTurn, doneTurn))

	stream := loop.Run(context.Background(), []models.User{
		{Content: models.ContentBlocks{models.Text{TextValue: "go"}}},
	})
	events := collect(stream)

	var sawToolStart, sawToolUpdate, sawToolEnd bool
	for _, ev := range events {
		switch v := ev.(type) {
		case ToolExecutionStartEvent:
			sawToolStart = true
			if v.ToolName != "echo" {
				t.Fatalf("tool start name = %q", v.ToolName)
			}
		case ToolExecutionUpdateEvent:
			sawToolUpdate = true
		case ToolExecutionEndEvent:
			sawToolEnd = true
			if v.IsError {
				t.Fatalf("tool end isError = true, want false")
			}
		}
	}
	if !sawToolStart || !sawToolUpdate || !sawToolEnd {
		t.Fatalf("missing tool events: start=%v update=%v end=%v", sawToolStart, sawToolUpdate, sawToolEnd)
	}

	msgs := ctx.Messages()
	// user, assistant(tool_use), toolResult, assistant(stop)
	if len(msgs) != 4 {
		t.Fatalf("len(messages) = %d, want 4", len(msgs))
	}
	if _, ok := msgs[2].(models.ToolResult); !ok {
		t.Fatalf("msgs[2] = %T, want ToolResult", msgs[2])
	}
}

func TestLoopUnknownToolProducesErrorResult(t *testing.T) {
	toolTurn := models.Assistant{
		StopReason: models.StopReasonToolUse,
		Content:    models.ContentBlocks{models.ToolCall{ID: "c1", Name: "missing"}},
	}
	doneTurn := models.Assistant{StopReason: models.StopReasonStop}

	registry := agenttool.NewRegistry()
	ctx := NewContext("", registry, nil)
	loop := New(ctx, Config{}, scriptedStream(t, toolTurn, doneTurn))

	stream := loop.Run(context.Background(), nil)
	_ = collect(stream)

	msgs := ctx.Messages()
	tr, ok := msgs[1].(models.ToolResult)
	if !ok || !tr.IsError {
		t.Fatalf("msgs[1] = %+v, want an error ToolResult", msgs[1])
	}
}

func TestLoopAbortStopsBeforeNextTurn(t *testing.T) {
	final := models.Assistant{StopReason: models.StopReasonStop}
	registry := agenttool.NewRegistry()
	ctx := NewContext("", registry, nil)
	loop := New(ctx, Config{}, scriptedStream(t, final))
	loop.Abort()

	stream := loop.Run(context.Background(), nil)
	_ = collect(stream)
	if aborted := stream.Result(); !aborted {
		t.Fatal("EndEvent.Aborted should be true when Abort was called before Run")
	}
}

func TestLoopRespectsMaxTurns(t *testing.T) {
	toolTurn := models.Assistant{
		StopReason: models.StopReasonToolUse,
		Content:    models.ContentBlocks{models.ToolCall{ID: "c1", Name: "echo"}},
	}
	registry := agenttool.NewRegistry()
	registry.Register("echo", agenttool.Adapt[struct{}](echoTool{}))
	ctx := NewContext("", registry, nil)
	// Script exactly 2 tool-use turns; MaxTurns=2 must stop the loop from
	// requesting a 3rd.
	loop := New(ctx, Config{MaxTurns: 2}, scriptedStream(t, toolTurn, toolTurn))

	stream := loop.Run(context.Background(), nil)
	events := collect(stream)

	turnStarts := 0
	for _, ev := range events {
		if _, ok := ev.(TurnStartEvent); ok {
			turnStarts++
		}
	}
	if turnStarts != 2 {
		t.Fatalf("turnStarts = %d, want 2", turnStarts)
	}
}
