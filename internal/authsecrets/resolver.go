package authsecrets

import (
	"os"
	"sync"

	"github.com/loomrun/coreagent/pkg/models"
)

// FallbackFunc is the caller-supplied third step of resolution (spec
// 6.5 step 3): typically the models.yml catalog's apiKey field, already
// expanded against ${ENV_VAR} references by the catalog loader.
type FallbackFunc func(provider models.ProviderId) (string, bool)

// Resolver implements spec 6.5's four-step per-provider credential
// resolution order: runtime override, on-disk credential store, caller
// fallback, then the <PROVIDER>_API_KEY environment variable.
type Resolver struct {
	mu        sync.RWMutex
	overrides map[models.ProviderId]string
	store     *CredentialStore
	fallback  FallbackFunc
}

// NewResolver builds a Resolver. store and fallback are both optional;
// a nil store or fallback is simply skipped during resolution.
func NewResolver(store *CredentialStore, fallback FallbackFunc) *Resolver {
	return &Resolver{
		overrides: make(map[models.ProviderId]string),
		store:     store,
		fallback:  fallback,
	}
}

// SetRuntimeApiKey installs a process-lifetime override for provider,
// taking priority over every other resolution step (spec 6.5 step 1).
func (r *Resolver) SetRuntimeApiKey(provider models.ProviderId, apiKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[provider] = apiKey
}

// ClearRuntimeApiKey removes a previously set runtime override.
func (r *Resolver) ClearRuntimeApiKey(provider models.ProviderId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.overrides, provider)
}

// Resolve walks spec 6.5's four-step order and returns the first API
// key found, along with ok=false if none of the steps produced one.
func (r *Resolver) Resolve(provider models.ProviderId) (string, bool) {
	r.mu.RLock()
	override, hasOverride := r.overrides[provider]
	store := r.store
	fallback := r.fallback
	r.mu.RUnlock()

	if hasOverride {
		return override, true
	}
	if store != nil {
		if key, ok := store.Get(provider); ok {
			return key, true
		}
	}
	if fallback != nil {
		if key, ok := fallback(provider); ok && key != "" {
			return key, true
		}
	}
	if key := os.Getenv(envVarName(provider)); key != "" {
		return key, true
	}
	return "", false
}
