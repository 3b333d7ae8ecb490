// Package agenttool defines the generic tool contract every agent tool
// implements (spec 4.F) and a type-erased registry so the agent loop can
// hold tools of differing detail types in one map, the way
// internal/agent.ToolRegistry holds a single non-generic Tool interface.
package agenttool

import (
	"context"

	"github.com/loomrun/coreagent/pkg/models"
)

// Definition is the wire shape an AgentTool exposes to a provider
// adapter: name, description, and the JSON Schema for its arguments.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Update is a progress notification an in-flight Execute call may emit.
// Cores that do not support progress reporting pass a nil callback.
type Update struct {
	Message string
	Detail  map[string]any
}

// Result is what Execute returns: content blocks appended to the
// resulting ToolResult message, plus optional strongly-typed Details for
// callers that know the concrete tool.
type Result[D any] struct {
	Content models.ContentBlocks
	Details *D
}

// AgentTool is the generic tool contract (spec 4.F). D is the concrete
// shape of the tool's optional Details payload; tools with nothing
// structured to report use AgentTool[struct{}].
type AgentTool[D any] interface {
	// Label is a short human-facing name, distinct from the LLM-facing
	// function name carried in Definition.
	Label() string

	Definition() Definition

	// Execute runs the tool call. It is suspending and may be cancelled
	// via ctx; onUpdate, if non-nil, receives zero or more progress
	// notifications before Execute returns.
	Execute(ctx context.Context, toolCallID string, arguments models.JSONObject, onUpdate func(Update)) (Result[D], error)
}

// Handle is the type-erased form of AgentTool[D], used wherever tools of
// different D must live in the same collection (the registry, the agent
// loop's dispatch table). Adapt produces one from any AgentTool[D].
type Handle interface {
	Label() string
	Definition() Definition
	Execute(ctx context.Context, toolCallID string, arguments models.JSONObject, onUpdate func(Update)) (Result[any], error)
}

type erased[D any] struct {
	inner AgentTool[D]
}

// Adapt erases a concrete AgentTool[D] into a Handle. Details, if set,
// is boxed into Result[any] unchanged (callers that need the concrete
// type can type-assert it back out).
func Adapt[D any](tool AgentTool[D]) Handle {
	return erased[D]{inner: tool}
}

func (e erased[D]) Label() string          { return e.inner.Label() }
func (e erased[D]) Definition() Definition { return e.inner.Definition() }

func (e erased[D]) Execute(ctx context.Context, toolCallID string, arguments models.JSONObject, onUpdate func(Update)) (Result[any], error) {
	res, err := e.inner.Execute(ctx, toolCallID, arguments, onUpdate)
	if err != nil {
		return Result[any]{}, err
	}
	out := Result[any]{Content: res.Content}
	if res.Details != nil {
		var d any = *res.Details
		out.Details = &d
	}
	return out, nil
}
