package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loomrun/coreagent/pkg/models"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile %s: %v", name, err)
	}
}

func TestLoadFilePrefersYAMLOverLegacyJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DefaultFileName, `
providers:
  openai:
    api: openai-chat-completions
    models:
      - id: gpt-4
`)
	writeFile(t, dir, LegacyFileName, `{"providers":{"openai":{"models":[{"id":"should-not-load"}]}}}`)

	cfg, err := LoadFile(dir)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(cfg.Providers["openai"].Models) != 1 || cfg.Providers["openai"].Models[0].ID != "gpt-4" {
		t.Fatalf("got %+v, want the YAML file's single gpt-4 model", cfg.Providers["openai"])
	}
}

func TestLoadFileFallsBackToLegacyJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, LegacyFileName, `{"providers":{"openai":{"models":[{"id":"gpt-4"}]}}}`)

	cfg, err := LoadFile(dir)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if len(cfg.Providers["openai"].Models) != 1 {
		t.Fatalf("got %+v, want one model from the legacy JSON file", cfg.Providers["openai"])
	}
}

func TestLoadFileExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_CATALOG_KEY", "secret-123")
	dir := t.TempDir()
	writeFile(t, dir, DefaultFileName, `
providers:
  openai:
    apiKey: "${TEST_CATALOG_KEY}"
    models:
      - id: gpt-4
`)

	cfg, err := LoadFile(dir)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Providers["openai"].ApiKey != "secret-123" {
		t.Fatalf("ApiKey = %q, want expanded env var", cfg.Providers["openai"].ApiKey)
	}
}

func TestLoadSurfacesParseErrorNonFatally(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, DefaultFileName, "providers:\n  openai: [this is not a map")

	reg := Load(dir)
	if reg == nil {
		t.Fatal("Load must never return nil")
	}
	if reg.Err() == nil {
		t.Fatal("Err() should report the parse failure")
	}
	if len(reg.AllModels()) != 0 {
		t.Fatalf("AllModels() = %v, want empty on parse failure", reg.AllModels())
	}
}

func TestFromConfigAppliesModelOverrides(t *testing.T) {
	cfg := &Config{
		Providers: map[models.ProviderId]ProviderConfig{
			"openai": {
				Api: "openai-chat-completions",
				Models: []ModelEntry{
					{ID: "gpt-4", ContextWindow: 8192},
				},
				ModelOverrides: map[string]map[string]any{
					"gpt-4": {"contextWindow": float64(128000)},
				},
			},
		},
	}
	reg := FromConfig(cfg)
	ms := reg.Models("openai")
	if len(ms) != 1 {
		t.Fatalf("len(ms) = %d, want 1", len(ms))
	}
	if ms[0].ContextWindow != 128000 {
		t.Fatalf("ContextWindow = %d, want override value 128000", ms[0].ContextWindow)
	}
}

func TestAllModelsSortedByProviderThenID(t *testing.T) {
	cfg := &Config{
		Providers: map[models.ProviderId]ProviderConfig{
			"openai":    {Models: []ModelEntry{{ID: "b"}, {ID: "a"}}},
			"anthropic": {Models: []ModelEntry{{ID: "z"}}},
		},
	}
	reg := FromConfig(cfg)
	all := reg.AllModels()
	if len(all) != 3 {
		t.Fatalf("len(all) = %d, want 3", len(all))
	}
	if all[0].Provider != "anthropic" || all[1].ID != "a" || all[2].ID != "b" {
		t.Fatalf("AllModels() not sorted as expected: %+v", all)
	}
}
