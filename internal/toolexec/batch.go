package toolexec

import (
	"context"
	"fmt"
	"sync"

	"github.com/loomrun/coreagent/internal/agenttool"
	"github.com/loomrun/coreagent/pkg/models"
)

// MaxBatchInvocations bounds how many inner calls one batch invocation
// may carry, and doubles as the concurrency semaphore's width.
const MaxBatchInvocations = 25

// BatchInvocation is one inner call a batch tool invocation requests.
type BatchInvocation struct {
	Name      string            `json:"name"`
	Arguments models.JSONObject `json:"arguments"`
}

// BatchInvocationResult is one inner call's outcome, in request order.
type BatchInvocationResult struct {
	Name    string               `json:"name"`
	Content models.ContentBlocks `json:"content"`
	IsError bool                 `json:"isError"`
	Error   string               `json:"error,omitempty"`
}

// BatchDetails is BatchTool's structured Details payload: one
// BatchInvocationResult per requested invocation, in request order.
type BatchDetails struct {
	Results []BatchInvocationResult `json:"results"`
}

// BatchTool dispatches up to MaxBatchInvocations inner tool calls
// concurrently against a shared registry, bounded by a semaphore of the
// same width. It is the "batch" tool spec 4.H's concurrency paragraph
// names but leaves undefined.
type BatchTool struct {
	registry *agenttool.Registry
}

// NewBatchTool builds a batch tool dispatching against registry.
func NewBatchTool(registry *agenttool.Registry) *BatchTool {
	return &BatchTool{registry: registry}
}

func (t *BatchTool) Label() string { return "Batch" }

func (t *BatchTool) Definition() agenttool.Definition {
	return agenttool.Definition{
		Name:        "batch",
		Description: fmt.Sprintf("Run up to %d tool calls concurrently and collect their results.", MaxBatchInvocations),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"invocations": map[string]any{
					"type":     "array",
					"maxItems": MaxBatchInvocations,
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"name":      map[string]any{"type": "string"},
							"arguments": map[string]any{"type": "object"},
						},
						"required": []string{"name"},
					},
				},
			},
			"required": []string{"invocations"},
		},
	}
}

// Execute parses the invocations array out of arguments, runs every
// inner call concurrently (bounded by MaxBatchInvocations), and returns
// one BatchInvocationResult per invocation in the original order.
func (t *BatchTool) Execute(ctx context.Context, toolCallID string, arguments models.JSONObject, onUpdate func(agenttool.Update)) (agenttool.Result[BatchDetails], error) {
	invocations, err := parseInvocations(arguments)
	if err != nil {
		return agenttool.Result[BatchDetails]{}, err
	}
	if len(invocations) > MaxBatchInvocations {
		return agenttool.Result[BatchDetails]{}, fmt.Errorf("toolexec: batch carries %d invocations, exceeds maximum of %d", len(invocations), MaxBatchInvocations)
	}

	results := make([]BatchInvocationResult, len(invocations))
	sem := make(chan struct{}, MaxBatchInvocations)
	var wg sync.WaitGroup

	for i, inv := range invocations {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, inv BatchInvocation) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = t.runOne(ctx, toolCallID, i, inv, onUpdate)
		}(i, inv)
	}
	wg.Wait()

	var content models.ContentBlocks
	for _, r := range results {
		content = append(content, r.Content...)
	}

	details := BatchDetails{Results: results}
	return agenttool.Result[BatchDetails]{Content: content, Details: &details}, nil
}

func (t *BatchTool) runOne(ctx context.Context, toolCallID string, index int, inv BatchInvocation, onUpdate func(agenttool.Update)) BatchInvocationResult {
	innerID := fmt.Sprintf("%s.batch.%d", toolCallID, index)

	var inner func(agenttool.Update)
	if onUpdate != nil {
		inner = func(u agenttool.Update) { onUpdate(u) }
	}

	if _, ok := t.registry.Get(inv.Name); !ok {
		return BatchInvocationResult{
			Name:    inv.Name,
			Content: models.ContentBlocks{models.Text{TextValue: "Unknown tool " + inv.Name}},
			IsError: true,
			Error:   "tool not found",
		}
	}

	res, err := t.registry.Execute(ctx, inv.Name, innerID, inv.Arguments, inner)
	if err != nil {
		return BatchInvocationResult{
			Name:    inv.Name,
			Content: models.ContentBlocks{models.Text{TextValue: err.Error()}},
			IsError: true,
			Error:   err.Error(),
		}
	}
	return BatchInvocationResult{Name: inv.Name, Content: res.Content}
}

func parseInvocations(arguments models.JSONObject) ([]BatchInvocation, error) {
	raw, ok := arguments["invocations"]
	if !ok {
		return nil, fmt.Errorf("toolexec: batch requires an \"invocations\" argument")
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("toolexec: batch \"invocations\" must be an array")
	}

	out := make([]BatchInvocation, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("toolexec: batch invocation must be an object")
		}
		name, _ := obj["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("toolexec: batch invocation missing \"name\"")
		}
		args, _ := obj["arguments"].(map[string]any)
		out = append(out, BatchInvocation{Name: name, Arguments: models.JSONObject(args)})
	}
	return out, nil
}
