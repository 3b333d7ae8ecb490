package agentloop

import (
	"context"
	"testing"
	"time"

	"github.com/loomrun/coreagent/internal/agenttool"
	"github.com/loomrun/coreagent/pkg/models"
)

func TestLoopDeniesToolCallUnderDenylistPolicy(t *testing.T) {
	toolTurn := models.Assistant{
		StopReason: models.StopReasonToolUse,
		Content:    models.ContentBlocks{models.ToolCall{ID: "c1", Name: "echo", Arguments: models.JSONObject{}}},
	}
	doneTurn := models.Assistant{StopReason: models.StopReasonStop}

	registry := agenttool.NewRegistry()
	registry.Register("echo", agenttool.Adapt[struct{}](echoTool{}))
	ctx := NewContext("", registry, nil)

	checker := NewApprovalChecker(&ApprovalPolicy{Denylist: []string{"echo"}})
	loop := New(ctx, Config{Approval: checker}, scriptedStream(t, toolTurn, doneTurn))

	stream := loop.Run(context.Background(), nil)
	events := collect(stream)

	var sawDenied bool
	for _, ev := range events {
		if d, ok := ev.(ToolExecutionDeniedEvent); ok {
			sawDenied = true
			if d.ToolName != "echo" {
				t.Fatalf("denied tool = %q, want echo", d.ToolName)
			}
		}
	}
	if !sawDenied {
		t.Fatal("expected a ToolExecutionDeniedEvent")
	}

	msgs := ctx.Messages()
	tr, ok := msgs[1].(models.ToolResult)
	if !ok || !tr.IsError {
		t.Fatalf("msgs[1] = %+v, want an error ToolResult", msgs[1])
	}
}

func TestLoopBlocksOnPendingApprovalUntilApproved(t *testing.T) {
	toolTurn := models.Assistant{
		StopReason: models.StopReasonToolUse,
		Content:    models.ContentBlocks{models.ToolCall{ID: "c1", Name: "echo", Arguments: models.JSONObject{}}},
	}
	doneTurn := models.Assistant{StopReason: models.StopReasonStop}

	registry := agenttool.NewRegistry()
	registry.Register("echo", agenttool.Adapt[struct{}](echoTool{}))
	ctx := NewContext("", registry, nil)

	checker := NewApprovalChecker(&ApprovalPolicy{RequireApproval: []string{"echo"}, AskFallback: true})
	checker.SetStore(NewMemoryApprovalStore())
	loop := New(ctx, Config{Approval: checker, ApprovalPollInterval: 5 * time.Millisecond}, scriptedStream(t, toolTurn, doneTurn))

	go func() {
		// Approve as soon as the request shows up.
		for i := 0; i < 200; i++ {
			pending, _ := checker.pendingStore.ListPending(context.Background(), "")
			if len(pending) > 0 {
				_ = checker.Approve(context.Background(), pending[0].ID, "operator")
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	stream := loop.Run(context.Background(), nil)
	events := collect(stream)

	var sawToolEnd bool
	for _, ev := range events {
		if e, ok := ev.(ToolExecutionEndEvent); ok {
			sawToolEnd = true
			if e.IsError {
				t.Fatalf("tool ended in error, want success after approval")
			}
		}
	}
	if !sawToolEnd {
		t.Fatal("expected the tool to eventually execute once approved")
	}
}

func TestApprovalCheckerDenylistWinsOverAllowlist(t *testing.T) {
	checker := NewApprovalChecker(&ApprovalPolicy{
		Allowlist: []string{"shell_exec"},
		Denylist:  []string{"shell_exec"},
	})
	decision, _ := checker.Check(models.ToolCall{Name: "shell_exec"})
	if decision != ApprovalDenied {
		t.Fatalf("decision = %v, want denied", decision)
	}
}

func TestApprovalCheckerAllowlistWildcard(t *testing.T) {
	checker := NewApprovalChecker(&ApprovalPolicy{Allowlist: []string{"read_*"}})
	decision, _ := checker.Check(models.ToolCall{Name: "read_file"})
	if decision != ApprovalAllowed {
		t.Fatalf("decision = %v, want allowed", decision)
	}
}

func TestApprovalCheckerRequireApprovalPending(t *testing.T) {
	checker := NewApprovalChecker(&ApprovalPolicy{
		RequireApproval: []string{"shell_exec"},
		AskFallback:     true,
	})
	decision, reason := checker.Check(models.ToolCall{Name: "shell_exec"})
	if decision != ApprovalPending {
		t.Fatalf("decision = %v (%s), want pending", decision, reason)
	}
}

func TestApprovalCheckerDeniesWhenNoUIAndAskFallbackDisabled(t *testing.T) {
	checker := NewApprovalChecker(&ApprovalPolicy{
		RequireApproval: []string{"shell_exec"},
		AskFallback:     false,
	})
	decision, _ := checker.Check(models.ToolCall{Name: "shell_exec"})
	if decision != ApprovalDenied {
		t.Fatalf("decision = %v, want denied", decision)
	}
}

func TestApprovalCheckerDefaultDecisionAllowed(t *testing.T) {
	checker := NewApprovalChecker(&ApprovalPolicy{DefaultDecision: ApprovalAllowed})
	decision, _ := checker.Check(models.ToolCall{Name: "anything"})
	if decision != ApprovalAllowed {
		t.Fatalf("decision = %v, want allowed", decision)
	}
}

func TestApprovalChecker_ApproveDecidesPendingRequest(t *testing.T) {
	checker := NewApprovalChecker(DefaultApprovalPolicy())
	checker.SetStore(NewMemoryApprovalStore())

	req, err := checker.CreateApprovalRequest(context.Background(), "sess-1", models.ToolCall{ID: "call-1", Name: "shell_exec"}, "needs human ok")
	if err != nil {
		t.Fatalf("CreateApprovalRequest: %v", err)
	}
	if err := checker.Approve(context.Background(), req.ID, "operator"); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	got, err := checker.Get(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Decision != ApprovalAllowed || got.DecidedBy != "operator" {
		t.Fatalf("got = %+v, want allowed by operator", got)
	}
}

func TestMemoryApprovalStoreListPendingExcludesExpiredAndDecided(t *testing.T) {
	store := NewMemoryApprovalStore()
	ctx := context.Background()

	active := &ApprovalRequest{ID: "a", SessionID: "s1", Decision: ApprovalPending, ExpiresAt: time.Now().Add(time.Hour)}
	expired := &ApprovalRequest{ID: "b", SessionID: "s1", Decision: ApprovalPending, ExpiresAt: time.Now().Add(-time.Hour)}
	decided := &ApprovalRequest{ID: "c", SessionID: "s1", Decision: ApprovalAllowed}
	for _, r := range []*ApprovalRequest{active, expired, decided} {
		if err := store.Create(ctx, r); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	pending, err := store.ListPending(ctx, "s1")
	if err != nil {
		t.Fatalf("ListPending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "a" {
		t.Fatalf("pending = %v, want only [a]", pending)
	}
}
