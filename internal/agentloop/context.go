package agentloop

import (
	"sync"

	"github.com/loomrun/coreagent/internal/agenttool"
	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/pkg/models"
)

// Context is the agent loop's mutable run state: a system prompt, the
// growing message history, and the tools in scope (spec 4.H "context:
// AgentContext { systemPrompt, messages: mutable, tools }"). Its methods
// are safe for concurrent use since tool execution and stream forwarding
// both append to it from the loop's own goroutine and, in the batch
// tool's case, from workers it spawns.
type Context struct {
	SystemPrompt string
	Tools        *agenttool.Registry

	mu       sync.Mutex
	messages models.MessageList
}

// NewContext creates a run context seeded with an existing history
// (possibly empty).
func NewContext(systemPrompt string, tools *agenttool.Registry, seed models.MessageList) *Context {
	return &Context{
		SystemPrompt: systemPrompt,
		Tools:        tools,
		messages:     append(models.MessageList{}, seed...),
	}
}

// Messages returns a snapshot of the current history.
func (c *Context) Messages() models.MessageList {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append(models.MessageList{}, c.messages...)
}

// Append adds messages to the end of the history in order.
func (c *Context) Append(msgs ...models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
}

// toolDefinitions lowers the registry's tool set to the neutral shape a
// provider adapter's request Context carries (spec 4.H step b:
// "tools=context.tools.map{_.definition}").
func toolDefinitions(tools *agenttool.Registry) []providers.ToolDefinition {
	if tools == nil {
		return nil
	}
	defs := tools.Definitions()
	out := make([]providers.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = providers.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}
