package bedrock

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/pkg/models"
)

func TestConvertMessagesRoles(t *testing.T) {
	msgs := models.MessageList{
		models.User{Content: models.ContentBlocks{models.Text{TextValue: "hi"}}},
		models.Assistant{Content: models.ContentBlocks{
			models.Text{TextValue: "hello"},
			models.ToolCall{ID: "tool_1", Name: "search", Arguments: models.JSONObject{"q": "go"}},
		}},
		models.ToolResult{ToolCallID: "tool_1", ToolName: "search", Content: models.ContentBlocks{models.Text{TextValue: "result"}}},
	}

	result, err := convertMessages(msgs)
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 3 {
		t.Fatalf("messages = %d, want 3", len(result))
	}
	if result[0].Role != types.ConversationRoleUser {
		t.Fatalf("first role = %v, want user", result[0].Role)
	}
	if result[1].Role != types.ConversationRoleAssistant {
		t.Fatalf("second role = %v, want assistant", result[1].Role)
	}
	if len(result[1].Content) != 2 {
		t.Fatalf("assistant content blocks = %d, want 2", len(result[1].Content))
	}
	if _, ok := result[1].Content[1].(*types.ContentBlockMemberToolUse); !ok {
		t.Fatalf("second assistant block is not a tool use: %+v", result[1].Content[1])
	}
	if _, ok := result[2].Content[0].(*types.ContentBlockMemberToolResult); !ok {
		t.Fatalf("tool result did not convert: %+v", result[2].Content[0])
	}
}

func TestConvertMessagesSyntheticFallback(t *testing.T) {
	msgs := models.MessageList{
		models.BashExecution{Command: "ls", Output: "a.go"},
	}
	result, err := convertMessages(msgs)
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 1 {
		t.Fatalf("messages = %d, want 1", len(result))
	}
	text, ok := result[0].Content[0].(*types.ContentBlockMemberText)
	if !ok {
		t.Fatalf("expected text block, got %+v", result[0].Content[0])
	}
	if text.Value != "$ ls\na.go" {
		t.Fatalf("synthetic text = %q", text.Value)
	}
}

func TestToBedrockTools(t *testing.T) {
	tools := []providers.ToolDefinition{
		{Name: "search", Description: "web search", Parameters: map[string]any{"type": "object"}},
	}
	cfg := toBedrockTools(tools)
	if len(cfg.Tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(cfg.Tools))
	}
	spec, ok := cfg.Tools[0].(*types.ToolMemberToolSpec)
	if !ok {
		t.Fatalf("unexpected tool shape: %+v", cfg.Tools[0])
	}
	if *spec.Value.Name != "search" {
		t.Fatalf("tool name = %q, want search", *spec.Value.Name)
	}
}

func TestMapStopReason(t *testing.T) {
	if got := mapStopReason("max_tokens"); got != models.StopReasonLength {
		t.Fatalf("max_tokens -> %v, want LENGTH", got)
	}
	if got := mapStopReason("tool_use"); got != models.StopReasonToolUse {
		t.Fatalf("tool_use -> %v, want TOOL_USE", got)
	}
	if got := mapStopReason("end_turn"); got != models.StopReasonStop {
		t.Fatalf("end_turn -> %v, want STOP", got)
	}
}
