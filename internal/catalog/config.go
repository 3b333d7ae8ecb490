// Package catalog implements the models.yml provider/model catalog (spec
// 6.3) and the CLI-to-Model resolution chain built on top of it (spec
// 6.4): loading, env-var expansion, per-model overrides, optional
// dynamic discovery, and fuzzy model lookup.
package catalog

import (
	"github.com/loomrun/coreagent/pkg/models"
)

// DiscoveryConfig names a provider's dynamic model-discovery mechanism
// (spec 6.3 "discovery: { type: \"ollama\" }").
type DiscoveryConfig struct {
	Type string `yaml:"type" json:"type"`
}

// ModelEntry is one statically configured model under a provider (spec
// 6.3 "models: [...]").
type ModelEntry struct {
	ID            string             `yaml:"id" json:"id"`
	Name          string             `yaml:"name,omitempty" json:"name,omitempty"`
	Api           models.ApiId       `yaml:"api,omitempty" json:"api,omitempty"`
	Reasoning     bool               `yaml:"reasoning,omitempty" json:"reasoning,omitempty"`
	Input         []models.InputKind `yaml:"input,omitempty" json:"input,omitempty"`
	Cost          models.Cost        `yaml:"cost,omitempty" json:"cost,omitempty"`
	ContextWindow int                `yaml:"contextWindow,omitempty" json:"contextWindow,omitempty"`
	MaxTokens     int                `yaml:"maxTokens,omitempty" json:"maxTokens,omitempty"`
	Headers       map[string]string  `yaml:"headers,omitempty" json:"headers,omitempty"`
	Compat        map[string]any     `yaml:"compat,omitempty" json:"compat,omitempty"`
}

// ProviderConfig is one provider's section of models.yml (spec 6.3).
type ProviderConfig struct {
	BaseUrl        string                    `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`
	ApiKey         string                    `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
	Api            models.ApiId              `yaml:"api,omitempty" json:"api,omitempty"`
	Headers        map[string]string         `yaml:"headers,omitempty" json:"headers,omitempty"`
	AuthHeader     bool                      `yaml:"authHeader,omitempty" json:"authHeader,omitempty"`
	Models         []ModelEntry              `yaml:"models,omitempty" json:"models,omitempty"`
	ModelOverrides map[string]map[string]any `yaml:"modelOverrides,omitempty" json:"modelOverrides,omitempty"`
	Discovery      *DiscoveryConfig          `yaml:"discovery,omitempty" json:"discovery,omitempty"`
}

// Config is the top-level shape of models.yml / models.json (spec 6.3).
type Config struct {
	Providers map[models.ProviderId]ProviderConfig `yaml:"providers" json:"providers"`
}

func (p ProviderConfig) toModel(e ModelEntry) models.Model {
	api := e.Api
	if api == "" {
		api = p.Api
	}
	return models.Model{
		ID:            e.ID,
		Name:          e.Name,
		Api:           api,
		BaseUrl:       p.BaseUrl,
		Reasoning:     e.Reasoning,
		InputKinds:    e.Input,
		Cost:          e.Cost,
		ContextWindow: e.ContextWindow,
		MaxTokens:     e.MaxTokens,
		Headers:       mergeHeaders(p.Headers, e.Headers),
		Compat:        e.Compat,
	}
}

func mergeHeaders(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
