package agentloop

import (
	"context"
	"sync"
	"time"

	"github.com/loomrun/coreagent/internal/agenttool"
	"github.com/loomrun/coreagent/internal/eventstream"
	"github.com/loomrun/coreagent/internal/pipeline"
	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/pkg/models"
)

// Loop drives one agentic run against a Context: stream a turn, append
// the result, dispatch any tool calls it carries, repeat until the model
// stops asking for tools or MaxTurns is hit (spec 4.H).
type Loop struct {
	context *Context
	config  Config
	stream  StreamFunc

	mu      sync.Mutex
	cancel  context.CancelFunc
	aborted bool
}

// New creates a Loop over ctx using streamFn to issue each turn's model
// call.
func New(ctx *Context, config Config, streamFn StreamFunc) *Loop {
	return &Loop{context: ctx, config: config, stream: streamFn}
}

// Abort cancels any in-flight model call or tool execution and stops the
// loop from starting a new turn. Safe to call from any goroutine, any
// number of times (spec 4.H "Cancellation").
func (l *Loop) Abort() {
	l.mu.Lock()
	l.aborted = true
	cancel := l.cancel
	l.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (l *Loop) isAborted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.aborted
}

func (l *Loop) setCancel(cancel context.CancelFunc) {
	l.mu.Lock()
	l.cancel = cancel
	l.mu.Unlock()
}

// Run appends prompts to the context and streams the run. The returned
// Stream's terminal event is EndEvent.
func (l *Loop) Run(ctx context.Context, prompts []models.User) *Stream {
	out := newStream()
	go l.run(ctx, prompts, out)
	return out
}

func (l *Loop) run(parent context.Context, prompts []models.User, out *Stream) {
	msgs := make([]models.Message, len(prompts))
	for i, p := range prompts {
		msgs[i] = p
	}
	l.context.Append(msgs...)
	out.Push(StartEvent{})

	convert := l.config.ConvertToLlm
	if convert == nil {
		convert = pipeline.DefaultConvertToLlm
	}

	aborted := false
	for turnIndex := 0; turnIndex < l.config.maxTurns(); turnIndex++ {
		if l.isAborted() {
			aborted = true
			break
		}

		prepared := l.context.Messages()
		if l.config.BeforeAgent != nil {
			prepared = l.config.BeforeAgent(prepared)
		}
		prepared = convert(prepared)

		reqCtx := providers.Context{
			SystemPrompt: l.context.SystemPrompt,
			Messages:     prepared,
			Tools:        toolDefinitions(l.context.Tools),
		}
		out.Push(TurnStartEvent{TurnIndex: turnIndex})

		final, erroredOut := l.runTurn(parent, reqCtx, out)
		l.context.Append(final)
		out.Push(MessageEndEvent{Message: final})

		if erroredOut || final.StopReason != models.StopReasonToolUse {
			out.Push(TurnEndEvent{StopReason: final.StopReason})
			break
		}

		l.runTools(parent, models.ToolCallsOf(final.Content), out)
		out.Push(TurnEndEvent{StopReason: models.StopReasonToolUse})

		if l.isAborted() {
			aborted = true
			break
		}
	}

	if l.config.AfterAgent != nil {
		l.config.AfterAgent(l.context.Messages())
	}
	if l.isAborted() {
		aborted = true
	}
	out.Push(EndEvent{Aborted: aborted})
}

// runTurn issues one model call, forwards its inner events, and returns
// the final assistant message plus whether the turn ended in error. When
// the call fails with a ShouldFailover() reason and Fallbacks are
// configured, it retries the same reqCtx against each fallback in turn,
// emitting a FailoverEvent per attempt, until one succeeds or the list
// is exhausted.
func (l *Loop) runTurn(parent context.Context, reqCtx providers.Context, out *Stream) (models.Assistant, bool) {
	model := l.config.Model
	stream := l.stream

	final, erroredOut := l.attemptTurn(parent, model, stream, reqCtx, out)
	if !erroredOut {
		return final, false
	}

	reason := classifyFailure(final.ErrorMessage)
	if !reason.ShouldFailover() {
		return final, true
	}

	for _, fb := range l.config.Fallbacks {
		out.Push(FailoverEvent{FromModel: model.ID, ToModel: fb.Model.ID, Reason: reason})
		final, erroredOut = l.attemptTurn(parent, fb.Model, fb.Stream, reqCtx, out)
		if !erroredOut {
			return final, false
		}
		reason = classifyFailure(final.ErrorMessage)
		if !reason.ShouldFailover() {
			return final, true
		}
		model = fb.Model
	}
	return final, true
}

// attemptTurn issues a single model call via stream and forwards its
// inner events, returning the final assistant message plus whether the
// call ended in error.
func (l *Loop) attemptTurn(parent context.Context, model models.Model, stream StreamFunc, reqCtx providers.Context, out *Stream) (models.Assistant, bool) {
	turnCtx, cancel := context.WithCancel(parent)
	l.setCancel(cancel)
	defer func() {
		cancel()
		l.setCancel(nil)
	}()

	assistStream := stream(turnCtx, model, reqCtx, l.config.options())
	out.Push(MessageStartEvent{Message: models.Assistant{}})

	var final models.Assistant
	erroredOut := false
	for ev := range assistStream.Events() {
		out.Push(StreamEvent{Inner: ev})
		if errEv, ok := ev.(eventstream.ErrorEvent); ok {
			erroredOut = true
			final = errEv.Error
			if l.config.OnError != nil {
				l.config.OnError(errEv.Reason, errEv.Error)
			}
		}
	}
	if !erroredOut {
		final = assistStream.Result()
	}
	return final, erroredOut
}

// runTools dispatches every tool call in a turn, in order, sequentially
// (spec 4.H "Concurrency"); the bulk batch tool is itself responsible for
// any internal fan-out.
func (l *Loop) runTools(parent context.Context, calls []models.ToolCall, out *Stream) {
	for _, call := range calls {
		if l.isAborted() {
			result := abortedResult()
			l.appendToolResult(call, result, true, out)
			continue
		}

		out.Push(ToolExecutionStartEvent{ToolCallID: call.ID, ToolName: call.Name, Arguments: call.Arguments})

		// Resolved here, not left to Registry.Execute, because a missing
		// tool must mark the resulting ToolResult as an error (spec 4.H
		// step f); Registry.Execute folds that case into a plain Result
		// for callers that only want content, not an isError signal.
		if _, ok := l.context.Tools.Get(call.Name); !ok {
			result := agenttool.Result[any]{Content: models.ContentBlocks{models.Text{TextValue: "Unknown tool " + call.Name}}}
			l.appendToolResult(call, result, true, out)
			continue
		}

		if l.config.Approval != nil {
			if denyReason, denied := l.checkApproval(parent, call, out); denied {
				result := agenttool.Result[any]{Content: models.ContentBlocks{models.Text{TextValue: "Tool call denied: " + denyReason}}}
				out.Push(ToolExecutionDeniedEvent{ToolCallID: call.ID, ToolName: call.Name, Reason: denyReason})
				l.appendToolResult(call, result, true, out)
				continue
			}
		}

		toolCtx, toolCancel := context.WithCancel(parent)
		l.setCancel(toolCancel)
		result, err := l.context.Tools.Execute(toolCtx, call.Name, call.ID, call.Arguments, func(u agenttool.Update) {
			out.Push(ToolExecutionUpdateEvent{ToolCallID: call.ID, Progress: u})
		})
		toolCancel()
		l.setCancel(nil)

		isError := err != nil
		if err != nil {
			result = agenttool.Result[any]{Content: models.ContentBlocks{models.Text{TextValue: err.Error()}}}
		}
		l.appendToolResult(call, result, isError, out)
	}
}

// checkApproval runs call through the configured ApprovalChecker. A
// Pending decision blocks (polling the approval store) until the request
// is decided, expires, or parent is cancelled, at which point it is
// treated as denied. It returns the deny reason and true when the call
// must not execute.
func (l *Loop) checkApproval(parent context.Context, call models.ToolCall, out *Stream) (string, bool) {
	decision, reason := l.config.Approval.Check(call)
	switch decision {
	case ApprovalAllowed:
		return "", false
	case ApprovalDenied:
		return reason, true
	}

	if !l.config.Approval.HasStore() {
		return "approval pending but no store configured to record a decision", true
	}

	req, err := l.config.Approval.CreateApprovalRequest(parent, l.config.SessionID, call, reason)
	if err != nil {
		return "approval request failed: " + err.Error(), true
	}

	ticker := time.NewTicker(l.config.approvalPollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-parent.Done():
			return "run cancelled while awaiting approval", true
		case <-ticker.C:
			current, err := l.config.Approval.Get(parent, req.ID)
			if err != nil {
				return "approval lookup failed: " + err.Error(), true
			}
			if current == nil {
				continue
			}
			switch current.Decision {
			case ApprovalAllowed:
				return "", false
			case ApprovalDenied:
				return "denied by " + current.DecidedBy, true
			}
			if !current.ExpiresAt.IsZero() && time.Now().After(current.ExpiresAt) {
				return "approval request expired", true
			}
		}
	}
}

func (l *Loop) appendToolResult(call models.ToolCall, result agenttool.Result[any], isError bool, out *Stream) {
	if !isError {
		result = l.config.ResultGuard.Apply(call.Name, result)
	}
	tr := models.ToolResult{ToolCallID: call.ID, ToolName: call.Name, Content: result.Content, IsError: isError}
	if result.Details != nil {
		if details, ok := (*result.Details).(models.JSONObject); ok {
			tr.Details = details
		}
	}
	l.context.Append(tr)
	out.Push(ToolExecutionEndEvent{ToolCallID: call.ID, ToolName: call.Name, Result: result, IsError: isError})
}

func abortedResult() agenttool.Result[any] {
	return agenttool.Result[any]{Content: models.ContentBlocks{models.Text{TextValue: "Tool call aborted."}}}
}
