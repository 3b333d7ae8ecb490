package google

import (
	"testing"

	"google.golang.org/genai"

	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/pkg/models"
)

func TestConvertMessagesRoles(t *testing.T) {
	p := &Provider{}
	msgs := models.MessageList{
		models.User{Content: models.ContentBlocks{models.Text{TextValue: "hi"}}},
		models.Assistant{Content: models.ContentBlocks{models.Text{TextValue: "hello"}}},
		models.ToolResult{ToolCallID: "google-call-0", ToolName: "search", Content: models.ContentBlocks{models.Text{TextValue: "result text"}}},
	}

	contents, err := p.convertMessages(msgs)
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(contents))
	}
	if contents[0].Role != genai.RoleUser {
		t.Fatalf("first role = %v, want user", contents[0].Role)
	}
	if contents[1].Role != genai.RoleModel {
		t.Fatalf("second role = %v, want model", contents[1].Role)
	}
	if contents[2].Parts[0].FunctionResponse == nil || contents[2].Parts[0].FunctionResponse.Name != "search" {
		t.Fatalf("tool result did not convert to a function response: %+v", contents[2].Parts[0])
	}
}

func TestConvertMessagesAssistantToolCall(t *testing.T) {
	p := &Provider{}
	msgs := models.MessageList{
		models.Assistant{Content: models.ContentBlocks{
			models.ToolCall{ID: "google-call-0", Name: "search", Arguments: models.JSONObject{"q": "go"}},
		}},
	}
	contents, err := p.convertMessages(msgs)
	if err != nil {
		t.Fatal(err)
	}
	fc := contents[0].Parts[0].FunctionCall
	if fc == nil || fc.Name != "search" || fc.Args["q"] != "go" {
		t.Fatalf("unexpected function call conversion: %+v", fc)
	}
}

func TestBuildConfigSetsSystemInstructionAndTools(t *testing.T) {
	p := &Provider{}
	reqCtx := providers.Context{
		SystemPrompt: "be terse",
		Tools: []providers.ToolDefinition{
			{Name: "search", Description: "web search", Parameters: map[string]any{"type": "object"}},
		},
	}
	config := p.buildConfig(models.Model{MaxTokens: 2048}, reqCtx, &providers.Options{})

	if config.SystemInstruction == nil || config.SystemInstruction.Parts[0].Text != "be terse" {
		t.Fatalf("system instruction not set: %+v", config.SystemInstruction)
	}
	if config.MaxOutputTokens != 2048 {
		t.Fatalf("max output tokens = %d, want 2048", config.MaxOutputTokens)
	}
	if len(config.Tools) != 1 || len(config.Tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("tools not converted: %+v", config.Tools)
	}
}

func TestMapFinishReason(t *testing.T) {
	if got := mapFinishReason("MAX_TOKENS"); got != models.StopReasonLength {
		t.Fatalf("MAX_TOKENS -> %v, want LENGTH", got)
	}
	if got := mapFinishReason("STOP"); got != models.StopReasonStop {
		t.Fatalf("STOP -> %v, want STOP", got)
	}
}
