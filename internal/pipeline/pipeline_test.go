package pipeline

import (
	"testing"

	"github.com/loomrun/coreagent/pkg/models"
)

func textOf(m models.Message) string {
	switch v := m.(type) {
	case models.User:
		return models.TextOf(v.Content)
	case models.Assistant:
		return models.TextOf(v.Content)
	case models.ToolResult:
		return models.TextOf(v.Content)
	default:
		return ""
	}
}

func TestSynthesizeOrphanToolResultsBackfillsUnmatchedCalls(t *testing.T) {
	msgs := models.MessageList{
		models.User{Content: models.ContentBlocks{models.Text{TextValue: "go"}}},
		models.Assistant{
			StopReason: models.StopReasonToolUse,
			Content: models.ContentBlocks{
				models.ToolCall{ID: "c1", Name: "search"},
				models.ToolCall{ID: "c2", Name: "fetch"},
			},
		},
		models.ToolResult{ToolCallID: "c1", ToolName: "search", Content: models.ContentBlocks{models.Text{TextValue: "ok"}}},
	}

	out := SynthesizeOrphanToolResults(msgs)
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	tr, ok := out[3].(models.ToolResult)
	if !ok || tr.ToolCallID != "c2" || !tr.IsError {
		t.Fatalf("out[3] = %+v, want synthetic error result for c2", out[3])
	}
	if textOf(tr) != "Tool call aborted." {
		t.Fatalf("tr content = %q", textOf(tr))
	}
}

func TestSynthesizeOrphanToolResultsIgnoresMatchesAfterNextAssistant(t *testing.T) {
	msgs := models.MessageList{
		models.Assistant{
			StopReason: models.StopReasonToolUse,
			Content:    models.ContentBlocks{models.ToolCall{ID: "c1", Name: "search"}},
		},
		models.Assistant{StopReason: models.StopReasonStop},
		models.ToolResult{ToolCallID: "c1", ToolName: "search"},
	}

	out := SynthesizeOrphanToolResults(msgs)
	// c1 should be backfilled immediately after the first assistant message,
	// since the real result arrives after the next assistant boundary.
	if len(out) != 4 {
		t.Fatalf("len(out) = %d, want 4", len(out))
	}
	synth, ok := out[1].(models.ToolResult)
	if !ok || !synth.IsError || synth.ToolCallID != "c1" {
		t.Fatalf("out[1] = %+v, want synthetic orphan result", out[1])
	}
}

func TestSynthesizeOrphanToolResultsNoOrphans(t *testing.T) {
	msgs := models.MessageList{
		models.Assistant{
			StopReason: models.StopReasonToolUse,
			Content:    models.ContentBlocks{models.ToolCall{ID: "c1", Name: "search"}},
		},
		models.ToolResult{ToolCallID: "c1", ToolName: "search"},
	}
	out := SynthesizeOrphanToolResults(msgs)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2 (no orphans inserted)", len(out))
	}
}

func TestSummarizeErrorTurnsStripsBackToUser(t *testing.T) {
	msgs := models.MessageList{
		models.User{Content: models.ContentBlocks{models.Text{TextValue: "do it"}}},
		models.Assistant{
			StopReason: models.StopReasonToolUse,
			Content:    models.ContentBlocks{models.ToolCall{ID: "c1", Name: "search"}},
		},
		models.ToolResult{ToolCallID: "c1", ToolName: "search"},
		models.Assistant{StopReason: models.StopReasonError, ErrorMessage: "rate limited"},
	}

	out := SummarizeErrorTurns(msgs)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if _, ok := out[0].(models.User); !ok {
		t.Fatalf("out[0] = %+v, want the original triggering User to survive", out[0])
	}
	if got := models.TextOf(out[0].(models.User).Content); got != "do it" {
		t.Fatalf("out[0] text = %q, want the original prompt preserved", got)
	}
	u, ok := out[1].(models.User)
	if !ok {
		t.Fatalf("out[1] = %+v, want synthetic User", out[1])
	}
	got := models.TextOf(u.Content)
	if got == "" || !contains(got, "search") || !contains(got, "rate limited") {
		t.Fatalf("summary = %q, want mention of tool name and error", got)
	}
	if !contains(got, "previous tool exchange failed") {
		t.Fatalf("summary = %q, want the documented \"previous tool exchange failed\" phrasing", got)
	}
}

func TestSummarizeErrorTurnsNoopWhenNotErrored(t *testing.T) {
	msgs := models.MessageList{
		models.User{Content: models.ContentBlocks{models.Text{TextValue: "hi"}}},
		models.Assistant{StopReason: models.StopReasonStop},
	}
	out := SummarizeErrorTurns(msgs)
	if len(out) != len(msgs) {
		t.Fatalf("len(out) = %d, want unchanged %d", len(out), len(msgs))
	}
}

func TestTransformThinkingToText(t *testing.T) {
	msgs := models.MessageList{
		models.Assistant{Content: models.ContentBlocks{models.Thinking{ThinkingValue: "hmm"}}},
	}
	out := TransformThinkingToText(msgs)
	a := out[0].(models.Assistant)
	if len(a.Content) != 1 {
		t.Fatalf("len(content) = %d, want 1", len(a.Content))
	}
	txt, ok := a.Content[0].(models.Text)
	if !ok || txt.TextValue != "<thinking>hmm</thinking>" {
		t.Fatalf("content[0] = %+v", a.Content[0])
	}
}

func TestConvertCrossProviderThinkingOnlyConvertsDifferentTarget(t *testing.T) {
	msgs := models.MessageList{
		models.Assistant{
			Api: "anthropic", Provider: "anthropic",
			Content: models.ContentBlocks{models.Thinking{ThinkingValue: "a"}},
		},
		models.Assistant{
			Api: "openai", Provider: "openai",
			Content: models.ContentBlocks{
				models.Thinking{ThinkingValue: "b"},
				models.ToolCall{ID: "c1", Name: "x", ThoughtSignature: "sig"},
			},
		},
	}
	out := ConvertCrossProviderThinking(msgs, "anthropic", "anthropic")

	same := out[0].(models.Assistant)
	if _, ok := same.Content[0].(models.Thinking); !ok {
		t.Fatalf("same-target message should be untouched, got %+v", same.Content[0])
	}

	diff := out[1].(models.Assistant)
	if _, ok := diff.Content[0].(models.Text); !ok {
		t.Fatalf("cross-provider message should lower Thinking to Text, got %+v", diff.Content[0])
	}
	call := diff.Content[1].(models.ToolCall)
	if call.ThoughtSignature != "" {
		t.Fatalf("ThoughtSignature = %q, want cleared", call.ThoughtSignature)
	}
}

func TestStripSyntheticVariants(t *testing.T) {
	msgs := models.MessageList{
		models.User{Content: models.ContentBlocks{models.Text{TextValue: "hi"}}},
		models.Custom{CustomType: "note"},
		models.BashExecution{Command: "ls"},
		models.BranchSummary{Summary: "branched"},
		models.CompactionSummary{Summary: "compacted"},
		models.Assistant{StopReason: models.StopReasonStop},
	}
	out := StripSyntheticVariants(msgs)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
}

func TestDefaultConvertToLlmComposesInOrder(t *testing.T) {
	msgs := models.MessageList{
		models.User{Content: models.ContentBlocks{models.Text{TextValue: "go"}}},
		models.Custom{CustomType: "note"},
		models.Assistant{
			Api: "anthropic", Provider: "anthropic",
			StopReason: models.StopReasonToolUse,
			Content: models.ContentBlocks{
				models.Thinking{ThinkingValue: "plan"},
				models.ToolCall{ID: "c1", Name: "search"},
			},
		},
	}

	out := DefaultConvertToLlm(msgs)
	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3 (Custom stripped, c1 backfilled)", len(out))
	}
	if _, ok := out[1].(models.Assistant); !ok {
		t.Fatalf("out[1] = %+v, want the assistant message (Custom stripped first)", out[1])
	}
	asst := out[1].(models.Assistant)
	if _, ok := asst.Content[0].(models.Text); !ok {
		t.Fatalf("thinking not lowered to text: %+v", asst.Content[0])
	}
	tr, ok := out[2].(models.ToolResult)
	if !ok || !tr.IsError {
		t.Fatalf("out[2] = %+v, want synthetic orphan result", out[2])
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
