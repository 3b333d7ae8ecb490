package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/loomrun/coreagent/pkg/models"
)

func TestOllamaDiscovererListsModels(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[{"name":"llama3"},{"name":"mistral"}]}`))
	}))
	defer server.Close()

	d := OllamaDiscoverer{}
	found, err := d.Discover(context.Background(), ProviderConfig{BaseUrl: server.URL, Api: "ollama"})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(found) != 2 || found[0].ID != "llama3" || found[1].ID != "mistral" {
		t.Fatalf("Discover = %+v, want [llama3 mistral]", found)
	}
}

func TestRegistryDiscoverMergesWithoutOverwritingStatic(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[{"name":"llama3"}]}`))
	}))
	defer server.Close()

	reg := FromConfig(&Config{
		Providers: map[models.ProviderId]ProviderConfig{
			"ollama": {
				BaseUrl:   server.URL,
				Api:       "ollama",
				Models:    []ModelEntry{{ID: "llama3", ContextWindow: 4096}},
				Discovery: &DiscoveryConfig{Type: "ollama"},
			},
		},
	})

	if err := reg.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	ms := reg.Models("ollama")
	if len(ms) != 1 {
		t.Fatalf("Models(ollama) = %+v, want the single statically configured llama3 (discovery must not duplicate it)", ms)
	}
	if ms[0].ContextWindow != 4096 {
		t.Fatalf("ContextWindow = %d, want the statically configured value preserved", ms[0].ContextWindow)
	}
}
