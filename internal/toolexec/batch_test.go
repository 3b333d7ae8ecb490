package toolexec

import (
	"context"
	"testing"

	"github.com/loomrun/coreagent/internal/agenttool"
	"github.com/loomrun/coreagent/pkg/models"
)

type echoTool struct{ name string }

func (e echoTool) Label() string { return e.name }
func (e echoTool) Definition() agenttool.Definition {
	return agenttool.Definition{Name: e.name}
}
func (e echoTool) Execute(ctx context.Context, toolCallID string, arguments models.JSONObject, onUpdate func(agenttool.Update)) (agenttool.Result[any], error) {
	text, _ := arguments["text"].(string)
	return agenttool.Result[any]{Content: models.ContentBlocks{models.Text{TextValue: text}}}, nil
}

func TestBatchToolRunsEveryInvocationInOrder(t *testing.T) {
	registry := agenttool.NewRegistry()
	registry.Register("echo", agenttool.Adapt[any](echoTool{name: "echo"}))

	batch := NewBatchTool(registry)
	args := models.JSONObject{
		"invocations": []any{
			map[string]any{"name": "echo", "arguments": map[string]any{"text": "one"}},
			map[string]any{"name": "echo", "arguments": map[string]any{"text": "two"}},
		},
	}

	res, err := batch.Execute(context.Background(), "call1", args, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Details == nil || len(res.Details.Results) != 2 {
		t.Fatalf("Details = %+v, want 2 results", res.Details)
	}
	if res.Details.Results[0].Name != "echo" || res.Details.Results[1].Name != "echo" {
		t.Fatalf("results out of order: %+v", res.Details.Results)
	}
	if models.TextOf(res.Details.Results[0].Content) != "one" {
		t.Fatalf("results[0] content = %q, want \"one\"", models.TextOf(res.Details.Results[0].Content))
	}
	if models.TextOf(res.Details.Results[1].Content) != "two" {
		t.Fatalf("results[1] content = %q, want \"two\"", models.TextOf(res.Details.Results[1].Content))
	}
}

func TestBatchToolMarksUnknownToolAsError(t *testing.T) {
	registry := agenttool.NewRegistry()
	batch := NewBatchTool(registry)

	args := models.JSONObject{
		"invocations": []any{
			map[string]any{"name": "does-not-exist"},
		},
	}

	res, err := batch.Execute(context.Background(), "call1", args, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Details.Results[0].IsError {
		t.Fatal("unknown tool invocation should be marked as an error")
	}
}

func TestBatchToolRejectsMissingInvocations(t *testing.T) {
	registry := agenttool.NewRegistry()
	batch := NewBatchTool(registry)

	if _, err := batch.Execute(context.Background(), "call1", models.JSONObject{}, nil); err == nil {
		t.Fatal("expected an error when \"invocations\" is missing")
	}
}

func TestBatchToolRejectsTooManyInvocations(t *testing.T) {
	registry := agenttool.NewRegistry()
	registry.Register("echo", agenttool.Adapt[any](echoTool{name: "echo"}))
	batch := NewBatchTool(registry)

	invocations := make([]any, MaxBatchInvocations+1)
	for i := range invocations {
		invocations[i] = map[string]any{"name": "echo"}
	}
	args := models.JSONObject{"invocations": invocations}

	if _, err := batch.Execute(context.Background(), "call1", args, nil); err == nil {
		t.Fatal("expected an error when invocations exceed the maximum")
	}
}
