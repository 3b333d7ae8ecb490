package compaction

import (
	"strings"
	"testing"
	"time"

	"github.com/loomrun/coreagent/pkg/models"
)

func TestPruneToolResultsLeavesFreshResultsUntouched(t *testing.T) {
	now := time.Now()
	messages := models.MessageList{
		models.ToolResult{
			ToolCallID: "c1",
			Content:    models.ContentBlocks{models.Text{TextValue: strings.Repeat("x", 10000)}},
			At:         now,
		},
		models.Assistant{StopReason: models.StopReasonStop, At: now},
	}

	settings := DefaultPruningSettings()
	got := PruneToolResults(messages, settings, now)

	tr := got[0].(models.ToolResult)
	if contentLen(tr.Content) != 10000 {
		t.Fatalf("content trimmed while fresh: len = %d", contentLen(tr.Content))
	}
}

func TestPruneToolResultsSoftTrimsOldLargeResult(t *testing.T) {
	now := time.Now()
	old := now.Add(-10 * time.Minute)
	messages := models.MessageList{
		models.ToolResult{
			ToolCallID: "c1",
			Content:    models.ContentBlocks{models.Text{TextValue: strings.Repeat("x", 10000)}},
			At:         old,
		},
		models.Assistant{StopReason: models.StopReasonStop, At: now},
	}

	settings := DefaultPruningSettings()
	got := PruneToolResults(messages, settings, now)

	tr := got[0].(models.ToolResult)
	text := tr.Content[0].(models.Text).TextValue
	if !strings.Contains(text, "[trimmed]") {
		t.Fatalf("expected soft-trimmed content, got %q", text)
	}
	if len(text) >= 10000 {
		t.Fatalf("soft trim did not shrink content: len = %d", len(text))
	}
}

func TestPruneToolResultsHardClearsVeryOldResult(t *testing.T) {
	now := time.Now()
	ancient := now.Add(-time.Hour)
	messages := models.MessageList{
		models.ToolResult{
			ToolCallID: "c1",
			Content:    models.ContentBlocks{models.Text{TextValue: strings.Repeat("x", 10000)}},
			At:         ancient,
		},
		models.Assistant{StopReason: models.StopReasonStop, At: now},
	}

	settings := DefaultPruningSettings()
	got := PruneToolResults(messages, settings, now)

	tr := got[0].(models.ToolResult)
	text := tr.Content[0].(models.Text).TextValue
	if text != settings.Placeholder {
		t.Fatalf("text = %q, want placeholder %q", text, settings.Placeholder)
	}
}

func TestPruneToolResultsProtectsLastKeepLastAssistantsTurns(t *testing.T) {
	now := time.Now()
	ancient := now.Add(-time.Hour)
	messages := models.MessageList{
		models.Assistant{StopReason: models.StopReasonToolUse, At: ancient},
		models.ToolResult{
			ToolCallID: "c1",
			Content:    models.ContentBlocks{models.Text{TextValue: strings.Repeat("x", 10000)}},
			At:         ancient,
		},
		models.Assistant{StopReason: models.StopReasonStop, At: now},
	}

	settings := DefaultPruningSettings()
	settings.KeepLastAssistants = 1
	got := PruneToolResults(messages, settings, now)

	tr := got[1].(models.ToolResult)
	if contentLen(tr.Content) != 10000 {
		t.Fatalf("protected tool result was pruned: len = %d", contentLen(tr.Content))
	}
}

func TestPruneToolResultsSkipsErrorResultsAndShortContent(t *testing.T) {
	now := time.Now()
	ancient := now.Add(-time.Hour)
	messages := models.MessageList{
		models.ToolResult{ToolCallID: "c1", Content: models.ContentBlocks{models.Text{TextValue: strings.Repeat("x", 10000)}}, At: ancient, IsError: true},
		models.ToolResult{ToolCallID: "c2", Content: models.ContentBlocks{models.Text{TextValue: "short"}}, At: ancient},
		models.Assistant{StopReason: models.StopReasonStop, At: now},
	}

	settings := DefaultPruningSettings()
	got := PruneToolResults(messages, settings, now)

	errResult := got[0].(models.ToolResult)
	if errResult.Content[0].(models.Text).TextValue != strings.Repeat("x", 10000) {
		t.Fatal("error tool result should never be pruned")
	}
	shortResult := got[1].(models.ToolResult)
	if shortResult.Content[0].(models.Text).TextValue != "short" {
		t.Fatal("short tool result content should never be pruned")
	}
}

func TestPruneToolResultsDisabledIsNoOp(t *testing.T) {
	now := time.Now()
	messages := models.MessageList{
		models.ToolResult{ToolCallID: "c1", Content: models.ContentBlocks{models.Text{TextValue: strings.Repeat("x", 10000)}}, At: now.Add(-time.Hour)},
	}
	settings := DefaultPruningSettings()
	settings.Enabled = false

	got := PruneToolResults(messages, settings, now)
	tr := got[0].(models.ToolResult)
	if contentLen(tr.Content) != 10000 {
		t.Fatal("disabled pruning should not modify content")
	}
}
