package agenttool

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/loomrun/coreagent/pkg/models"
)

// MaxToolNameLength bounds a tool call name before it ever reaches Execute.
const MaxToolNameLength = 256

// Registry is a thread-safe name-to-Handle map, the type-erased
// counterpart to internal/agent.ToolRegistry generalised to D-typed
// tools (spec 4.F).
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Handle)}
}

// Register adds tool under name, replacing any existing registration.
func (r *Registry) Register(name string, tool Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get resolves name to its Handle.
func (r *Registry) Get(name string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns every registered tool's Definition for constructing
// a provider call's tool list, in stable name order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// Execute dispatches a tool call by name. A missing tool or an
// over-length name yields an error Result rather than a Go error, so the
// agent loop can always fold it into a ToolResult message (spec 4.F: the
// model never crashes the turn on a bad tool call).
func (r *Registry) Execute(ctx context.Context, name, toolCallID string, arguments models.JSONObject, onUpdate func(Update)) (Result[any], error) {
	if len(name) > MaxToolNameLength {
		return errorResult(fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength)), nil
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return errorResult("tool not found: " + name), nil
	}

	// Returned as a genuine error, not folded into a plain Result like the
	// not-found case above, so Loop.runTools marks the resulting
	// ToolResult isError=true and the model sees its call was rejected.
	if err := validateArguments(tool.Definition(), arguments); err != nil {
		return Result[any]{}, err
	}

	return tool.Execute(ctx, toolCallID, arguments, onUpdate)
}

func errorResult(message string) Result[any] {
	return Result[any]{Content: models.ContentBlocks{models.Text{TextValue: message}}}
}
