package main

import (
	"testing"

	"github.com/loomrun/coreagent/internal/catalog"
)

func catalogProviderWithCompat(compat map[string]any) catalog.ProviderConfig {
	return catalog.ProviderConfig{
		Models: []catalog.ModelEntry{{ID: "m1", Compat: compat}},
	}
}

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"run", "models", "doctor"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestCompatForAppliesMistralOverrides(t *testing.T) {
	pcfg := catalogProviderWithCompat(map[string]any{
		"maxTokensField":         "max_tokens",
		"requiresMistralToolIds": true,
	})
	compat := compatFor(pcfg)
	if compat.MaxTokensField != "max_tokens" {
		t.Fatalf("MaxTokensField = %q, want max_tokens", compat.MaxTokensField)
	}
	if !compat.RequiresMistralToolIds {
		t.Fatal("expected RequiresMistralToolIds to be true")
	}
}

func TestCompatForDefaultsWhenNoOverrides(t *testing.T) {
	pcfg := catalogProviderWithCompat(nil)
	compat := compatFor(pcfg)
	if compat.MaxTokensField != "max_completion_tokens" {
		t.Fatalf("MaxTokensField = %q, want the stock default", compat.MaxTokensField)
	}
}
