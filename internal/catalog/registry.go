package catalog

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/loomrun/coreagent/pkg/models"
)

// Registry holds the resolved model catalog built from a Config: every
// statically configured model, with modelOverrides applied, plus
// whatever a provider's Discoverer has added since the last Discover
// call.
//
// A parse failure in Load is non-fatal (spec 6.3: "Parse errors are
// surfaced via registry.getError(), non-fatal"): Load always returns a
// usable, possibly-empty Registry, and the caller inspects Err to decide
// whether to warn.
type Registry struct {
	mu        sync.RWMutex
	providers map[models.ProviderId]ProviderConfig
	resolved  map[models.ProviderId][]models.Model
	err       error
}

// Load builds a Registry from the catalog file under dir. On parse
// failure it returns an empty, usable Registry whose Err reports what
// went wrong, rather than a nil Registry and an error return.
func Load(dir string) *Registry {
	cfg, err := LoadFile(dir)
	if err != nil {
		return &Registry{err: err}
	}
	return FromConfig(cfg)
}

// FromConfig builds a Registry directly from an already-parsed Config,
// applying modelOverrides.
func FromConfig(cfg *Config) *Registry {
	reg := &Registry{
		providers: cfg.Providers,
		resolved:  make(map[models.ProviderId][]models.Model, len(cfg.Providers)),
	}
	for providerID, pc := range cfg.Providers {
		resolved := make([]models.Model, 0, len(pc.Models))
		for _, entry := range pc.Models {
			m := pc.toModel(entry)
			m.Provider = providerID
			if patch, ok := pc.ModelOverrides[entry.ID]; ok {
				var err error
				m, err = applyOverride(m, patch)
				if err != nil && reg.err == nil {
					reg.err = err
				}
			}
			resolved = append(resolved, m)
		}
		reg.resolved[providerID] = resolved
	}
	return reg
}

// Err reports the last non-fatal error Load or Discover encountered.
func (r *Registry) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Provider resolves a provider's raw configuration.
func (r *Registry) Provider(id models.ProviderId) (ProviderConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pc, ok := r.providers[id]
	return pc, ok
}

// Models returns every model configured or discovered for provider, in
// the order they were added.
func (r *Registry) Models(provider models.ProviderId) []models.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Model, len(r.resolved[provider]))
	copy(out, r.resolved[provider])
	return out
}

// AllModels returns every model across every provider, sorted by
// provider then id for deterministic iteration.
func (r *Registry) AllModels() []models.Model {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Model
	for _, list := range r.resolved {
		out = append(out, list...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// addDiscovered appends discovered models for provider, skipping any id
// already present (statically configured entries win).
func (r *Registry) addDiscovered(provider models.ProviderId, discovered []models.Model) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing := make(map[string]bool, len(r.resolved[provider]))
	for _, m := range r.resolved[provider] {
		existing[m.ID] = true
	}
	for _, m := range discovered {
		if existing[m.ID] {
			continue
		}
		m.Provider = provider
		r.resolved[provider] = append(r.resolved[provider], m)
		existing[m.ID] = true
	}
}

// applyOverride merges patch's keys onto base's JSON representation
// (spec 6.3 "modelOverrides: map<id, partialModel>"): a shallow,
// key-by-key merge, matching the "partial model" framing rather than a
// deep structural merge.
func applyOverride(base models.Model, patch map[string]any) (models.Model, error) {
	if len(patch) == 0 {
		return base, nil
	}

	baseJSON, err := json.Marshal(base)
	if err != nil {
		return base, err
	}
	var baseMap map[string]any
	if err := json.Unmarshal(baseJSON, &baseMap); err != nil {
		return base, err
	}
	for k, v := range patch {
		baseMap[k] = v
	}

	mergedJSON, err := json.Marshal(baseMap)
	if err != nil {
		return base, err
	}
	var out models.Model
	if err := json.Unmarshal(mergedJSON, &out); err != nil {
		return base, err
	}
	return out, nil
}
