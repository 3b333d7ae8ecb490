package agentloop

import (
	"context"
	"testing"

	"github.com/loomrun/coreagent/internal/agenttool"
	"github.com/loomrun/coreagent/internal/eventstream"
	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/pkg/models"
)

func TestClassifyFailureRecoversReasonFromStatusPrefix(t *testing.T) {
	cases := map[string]providers.FailoverReason{
		"http 402: insufficient credit": providers.FailoverBilling,
		"http 401: bad key":              providers.FailoverAuth,
		"http 404: no such model":        providers.FailoverModelUnavailable,
		"connection reset by peer":       providers.FailoverUnknown,
	}
	for msg, want := range cases {
		if got := classifyFailure(msg); got != want {
			t.Fatalf("classifyFailure(%q) = %v, want %v", msg, got, want)
		}
	}
}

// errorStream returns a StreamFunc that always fails with message.
func errorStream(message string) StreamFunc {
	return func(ctx context.Context, model models.Model, reqCtx providers.Context, options *providers.Options) *eventstream.AssistantStream {
		s := eventstream.NewAssistantStream()
		go func() {
			errAsst := models.Assistant{StopReason: models.StopReasonError, ErrorMessage: message}
			s.Push(eventstream.ErrorEvent{Reason: models.StopReasonError, Error: errAsst})
		}()
		return s
	}
}

func TestLoopFailsOverToSecondaryModelOnBillingError(t *testing.T) {
	primary := errorStream("http 402: insufficient credit")
	secondaryFinal := models.Assistant{StopReason: models.StopReasonStop, Content: models.ContentBlocks{models.Text{TextValue: "from backup"}}}
	secondary := scriptedStream(t, secondaryFinal)

	registry := agenttool.NewRegistry()
	ctx := NewContext("be helpful", registry, nil)
	loop := New(ctx, Config{
		Model: models.Model{ID: "primary-model"},
		Fallbacks: []Fallback{
			{Model: models.Model{ID: "backup-model"}, Stream: secondary},
		},
	}, primary)

	stream := loop.Run(context.Background(), []models.User{
		{Content: models.ContentBlocks{models.Text{TextValue: "hi"}}},
	})
	events := collect(stream)

	var sawFailover bool
	var turnEndReason models.StopReason
	for _, ev := range events {
		switch v := ev.(type) {
		case FailoverEvent:
			sawFailover = true
			if v.FromModel != "primary-model" || v.ToModel != "backup-model" {
				t.Fatalf("FailoverEvent = %+v, want primary-model -> backup-model", v)
			}
			if v.Reason != providers.FailoverBilling {
				t.Fatalf("FailoverEvent.Reason = %v, want billing", v.Reason)
			}
		case TurnEndEvent:
			turnEndReason = v.StopReason
		}
	}
	if !sawFailover {
		t.Fatal("expected a FailoverEvent")
	}
	if turnEndReason != models.StopReasonStop {
		t.Fatalf("turn ended with %v, want STOP (fallback should have succeeded)", turnEndReason)
	}
}

func TestLoopDoesNotFailoverOnNonFailoverReason(t *testing.T) {
	primary := errorStream("connection reset by peer")
	secondary := scriptedStream(t, models.Assistant{StopReason: models.StopReasonStop})

	registry := agenttool.NewRegistry()
	ctx := NewContext("be helpful", registry, nil)
	loop := New(ctx, Config{
		Model: models.Model{ID: "primary-model"},
		Fallbacks: []Fallback{
			{Model: models.Model{ID: "backup-model"}, Stream: secondary},
		},
	}, primary)

	stream := loop.Run(context.Background(), []models.User{
		{Content: models.ContentBlocks{models.Text{TextValue: "hi"}}},
	})
	events := collect(stream)

	for _, ev := range events {
		if _, ok := ev.(FailoverEvent); ok {
			t.Fatal("should not fail over on a non-ShouldFailover reason")
		}
	}
}

func TestLoopExhaustsFallbacksAndReturnsLastError(t *testing.T) {
	primary := errorStream("http 401: bad key")
	secondary := errorStream("http 401: still bad")

	registry := agenttool.NewRegistry()
	ctx := NewContext("be helpful", registry, nil)
	loop := New(ctx, Config{
		Model: models.Model{ID: "primary-model"},
		Fallbacks: []Fallback{
			{Model: models.Model{ID: "backup-model"}, Stream: secondary},
		},
	}, primary)

	stream := loop.Run(context.Background(), []models.User{
		{Content: models.ContentBlocks{models.Text{TextValue: "hi"}}},
	})
	events := collect(stream)

	failovers := 0
	var turnEndReason models.StopReason
	for _, ev := range events {
		switch v := ev.(type) {
		case FailoverEvent:
			failovers++
		case TurnEndEvent:
			turnEndReason = v.StopReason
		}
	}
	if failovers != 1 {
		t.Fatalf("failovers = %d, want 1 (single configured fallback)", failovers)
	}
	if turnEndReason != models.StopReasonError {
		t.Fatalf("turn ended with %v, want ERROR (all providers failed)", turnEndReason)
	}
}
