// Package extension implements the extension pipeline (spec 4.J): a
// registry of ExtensionDefinition hooks an ExtensionRunner composes, in
// load order, into the agent loop's beforeAgent/afterAgent/
// transformContext/toolWrapper surface.
package extension

import (
	"sync"

	"github.com/loomrun/coreagent/internal/agentloop"
	"github.com/loomrun/coreagent/internal/agenttool"
	"github.com/loomrun/coreagent/internal/eventstream"
	"github.com/loomrun/coreagent/pkg/models"
)

// Command is a custom slash command an extension contributes.
type Command struct {
	Name        string
	Description string
	Handler     func(args string) (models.ContentBlocks, error)
}

// Definition is one extension's hook set (spec 4.J). Every field is
// optional; a nil hook is simply skipped during composition.
type Definition struct {
	ID string

	BeforeAgent func(models.MessageList) models.MessageList

	AfterAgent func(models.MessageList)

	TransformContext func(*agentloop.Context) *agentloop.Context

	// ToolWrapper nests around every tool the registry resolves; the
	// last-loaded extension ends up outermost (spec 4.J
	// "toolWrapper.wrap<T>(tool) -> tool nests").
	ToolWrapper func(agenttool.Handle) agenttool.Handle

	RegisterCommands []Command
}

// WrappedEvent is emitted by Runner each time ToolWrapper wraps a tool,
// for observability (spec 4.J "Each wrap emits a ToolWrappedEvent").
type WrappedEvent struct {
	ExtensionID string
	ToolName    string
}

func (WrappedEvent) isEvent() {}

// Event is the sum type the runner's observability stream carries.
// WrappedEvent is its only variant today; more can be added without
// breaking Stream's generic shape.
type Event interface {
	isEvent()
}

// Stream is the runner's own event stream for observability (spec 4.J
// "The runner exposes its own event stream for observability"). It never
// terminates on its own; callers close it via Cancel when done.
type Stream = eventstream.Stream[Event, struct{}]

func neverTerminal(Event) (struct{}, bool) { return struct{}{}, false }

// Runner composes a load-ordered list of extensions into the agent
// loop's hook surface (spec 4.J).
type Runner struct {
	mu         sync.RWMutex
	extensions []Definition
	commands   map[string]Command
	events     *Stream
}

// NewRunner creates an empty Runner.
func NewRunner() *Runner {
	return &Runner{
		commands: make(map[string]Command),
		events:   eventstream.New[Event, struct{}](neverTerminal),
	}
}

// Events exposes the runner's observability stream.
func (r *Runner) Events() *Stream {
	return r.events
}

// Register adds an extension at the end of the load order, registering
// any slash commands it contributes. A later Register call with a
// duplicate command name overrides the earlier one.
func (r *Runner) Register(def Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extensions = append(r.extensions, def)
	for _, cmd := range def.RegisterCommands {
		r.commands[cmd.Name] = cmd
	}
}

// Command resolves a registered slash command by name.
func (r *Runner) Command(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[name]
	return cmd, ok
}

// BeforeAgent chains every extension's BeforeAgent hook in load order,
// each receiving the previous hook's output (spec 4.J).
func (r *Runner) BeforeAgent(messages models.MessageList) models.MessageList {
	r.mu.RLock()
	defs := r.snapshot()
	r.mu.RUnlock()

	out := messages
	for _, def := range defs {
		if def.BeforeAgent != nil {
			out = def.BeforeAgent(out)
		}
	}
	return out
}

// AfterAgent runs every extension's AfterAgent hook, unconditionally, in
// load order (spec 4.J).
func (r *Runner) AfterAgent(messages models.MessageList) {
	r.mu.RLock()
	defs := r.snapshot()
	r.mu.RUnlock()

	for _, def := range defs {
		if def.AfterAgent != nil {
			def.AfterAgent(messages)
		}
	}
}

// TransformContext chains every extension's transformContext hook in
// load order.
func (r *Runner) TransformContext(ctx *agentloop.Context) *agentloop.Context {
	r.mu.RLock()
	defs := r.snapshot()
	r.mu.RUnlock()

	out := ctx
	for _, def := range defs {
		if def.TransformContext != nil {
			out = def.TransformContext(out)
		}
	}
	return out
}

// WrapTool nests every extension's ToolWrapper around tool, last-loaded
// outermost, emitting a WrappedEvent per wrap (spec 4.J).
func (r *Runner) WrapTool(name string, tool agenttool.Handle) agenttool.Handle {
	r.mu.RLock()
	defs := r.snapshot()
	r.mu.RUnlock()

	wrapped := tool
	for _, def := range defs {
		if def.ToolWrapper == nil {
			continue
		}
		wrapped = def.ToolWrapper(wrapped)
		r.events.Push(WrappedEvent{ExtensionID: def.ID, ToolName: name})
	}
	return wrapped
}

func (r *Runner) snapshot() []Definition {
	out := make([]Definition, len(r.extensions))
	copy(out, r.extensions)
	return out
}
