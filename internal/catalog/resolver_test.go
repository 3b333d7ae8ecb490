package catalog

import (
	"testing"

	"github.com/loomrun/coreagent/pkg/models"
)

func testRegistry() *Registry {
	return FromConfig(&Config{
		Providers: map[models.ProviderId]ProviderConfig{
			"openai": {
				Api: "openai-chat-completions",
				Models: []ModelEntry{
					{ID: "gpt-4o"},
					{ID: "gpt-4o-2024-08-06"},
				},
			},
			"anthropic": {
				Api: "anthropic-messages",
				Models: []ModelEntry{
					{ID: "claude-opus-4"},
				},
			},
		},
	})
}

func TestResolveExplicitCLIProviderAndModel(t *testing.T) {
	reg := testRegistry()
	m, ok := Resolve(reg, Selection{CLIProvider: "anthropic", CLIModel: "claude-opus-4"})
	if !ok || m.ID != "claude-opus-4" {
		t.Fatalf("Resolve = %+v, ok=%v", m, ok)
	}
}

func TestResolveCLIModelFuzzy(t *testing.T) {
	reg := testRegistry()
	m, ok := Resolve(reg, Selection{CLIModel: "opus"})
	if !ok || m.ID != "claude-opus-4" {
		t.Fatalf("Resolve = %+v, ok=%v, want claude-opus-4", m, ok)
	}
}

func TestResolveCLIProviderOnlyUsesProviderDefault(t *testing.T) {
	reg := testRegistry()
	sel := Selection{CLIProvider: "openai", ProviderDefaults: map[models.ProviderId]string{"openai": "gpt-4o"}}
	m, ok := Resolve(reg, sel)
	if !ok || m.ID != "gpt-4o" {
		t.Fatalf("Resolve = %+v, ok=%v, want gpt-4o", m, ok)
	}
}

func TestResolveFallsBackToFirstAvailable(t *testing.T) {
	reg := testRegistry()
	m, ok := Resolve(reg, Selection{})
	if !ok {
		t.Fatal("Resolve should fall back to the first available model")
	}
	_ = m
}

func TestFuzzyMatchPrefersAliasOverDatedVersion(t *testing.T) {
	all := []models.Model{
		{ID: "gpt-4o-2024-08-06", Provider: "openai"},
		{ID: "gpt-4o", Provider: "openai"},
	}
	m, ok := FuzzyMatch(all, "", "gpt-4o")
	if !ok {
		t.Fatal("FuzzyMatch should find a match")
	}
	if m.ID != "gpt-4o" {
		t.Fatalf("FuzzyMatch = %q, want the undated alias gpt-4o", m.ID)
	}
}

func TestFuzzyMatchExactProviderSlashID(t *testing.T) {
	all := []models.Model{
		{ID: "gpt-4o", Provider: "openai"},
		{ID: "gpt-4o", Provider: "azure"},
	}
	m, ok := FuzzyMatch(all, "", "azure/gpt-4o")
	if !ok || m.Provider != "azure" {
		t.Fatalf("FuzzyMatch = %+v, ok=%v, want provider azure", m, ok)
	}
}

func TestResolveRoleWalksPatternChain(t *testing.T) {
	reg := testRegistry()
	m, ok := ResolveRole(reg, []string{"does-not-exist", "opus"})
	if !ok || m.ID != "claude-opus-4" {
		t.Fatalf("ResolveRole = %+v, ok=%v", m, ok)
	}
}
