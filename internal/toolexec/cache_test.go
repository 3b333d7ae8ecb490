package toolexec

import (
	"encoding/json"
	"testing"

	"github.com/loomrun/coreagent/internal/agenttool"
	"github.com/loomrun/coreagent/pkg/models"
)

func TestCachedResultRoundTripsContentAndDetails(t *testing.T) {
	var details any = map[string]any{"count": float64(3)}
	original := agenttool.Result[any]{
		Content: models.ContentBlocks{models.Text{TextValue: "hi"}},
		Details: &details,
	}

	cached := cachedResult{Content: original.Content}
	rawDetails, err := json.Marshal(*original.Details)
	if err != nil {
		t.Fatalf("marshal details: %v", err)
	}
	cached.Details = rawDetails

	data, err := json.Marshal(cached)
	if err != nil {
		t.Fatalf("marshal cached: %v", err)
	}

	var roundTripped cachedResult
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("unmarshal cached: %v", err)
	}

	result, err := decodeResult(roundTripped)
	if err != nil {
		t.Fatalf("decodeResult: %v", err)
	}
	if models.TextOf(result.Content) != "hi" {
		t.Fatalf("content = %q, want \"hi\"", models.TextOf(result.Content))
	}
	if result.Details == nil {
		t.Fatal("Details should round-trip non-nil")
	}
	decoded, ok := (*result.Details).(map[string]any)
	if !ok || decoded["count"] != float64(3) {
		t.Fatalf("Details = %+v, want map with count=3", *result.Details)
	}
}

func TestCachedResultRoundTripsWithoutDetails(t *testing.T) {
	cached := cachedResult{Content: models.ContentBlocks{models.Text{TextValue: "plain"}}}
	data, err := json.Marshal(cached)
	if err != nil {
		t.Fatalf("marshal cached: %v", err)
	}

	var roundTripped cachedResult
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("unmarshal cached: %v", err)
	}

	result, err := decodeResult(roundTripped)
	if err != nil {
		t.Fatalf("decodeResult: %v", err)
	}
	if result.Details != nil {
		t.Fatalf("Details = %+v, want nil", result.Details)
	}
}

func TestRedisCacheKeyIsPrefixed(t *testing.T) {
	c := &RedisCache{prefix: "coreagent"}
	got := c.key("call-123")
	want := "coreagent:toolresult:call-123"
	if got != want {
		t.Fatalf("key(...) = %q, want %q", got, want)
	}
}
