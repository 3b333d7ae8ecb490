package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/loomrun/coreagent/pkg/models"
)

// Discoverer dynamically lists the models a provider currently serves,
// for providers whose catalog entry names a discovery mechanism (spec
// 6.3 "discovery: { type: \"ollama\" }").
type Discoverer interface {
	Discover(ctx context.Context, provider ProviderConfig) ([]models.Model, error)
}

// Discoverers maps a discovery config's "type" to its implementation.
var Discoverers = map[string]Discoverer{
	"ollama": OllamaDiscoverer{},
}

// Discover runs the configured discoverer for every provider that names
// one, merging the result into the registry (statically configured
// models win over a same-id discovery result).
func (r *Registry) Discover(ctx context.Context) error {
	r.mu.RLock()
	providers := make(map[models.ProviderId]ProviderConfig, len(r.providers))
	for id, pc := range r.providers {
		providers[id] = pc
	}
	r.mu.RUnlock()

	var firstErr error
	for id, pc := range providers {
		if pc.Discovery == nil {
			continue
		}
		discoverer, ok := Discoverers[pc.Discovery.Type]
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("catalog: unknown discovery type %q for provider %q", pc.Discovery.Type, id)
			}
			continue
		}
		discovered, err := discoverer.Discover(ctx, pc)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("catalog: discover %q: %w", id, err)
			}
			continue
		}
		r.addDiscovered(id, discovered)
	}

	if firstErr != nil {
		r.mu.Lock()
		r.err = firstErr
		r.mu.Unlock()
	}
	return firstErr
}

// OllamaDiscoverer lists models from a running Ollama server's
// /api/tags endpoint.
type OllamaDiscoverer struct {
	HTTPClient *http.Client
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (d OllamaDiscoverer) Discover(ctx context.Context, provider ProviderConfig) ([]models.Model, error) {
	client := d.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.BaseUrl+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: unexpected status %d", resp.StatusCode)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("ollama: decode /api/tags: %w", err)
	}

	out := make([]models.Model, 0, len(tags.Models))
	for _, m := range tags.Models {
		out = append(out, models.Model{
			ID:      m.Name,
			Name:    m.Name,
			Api:     provider.Api,
			BaseUrl: provider.BaseUrl,
		})
	}
	return out, nil
}
