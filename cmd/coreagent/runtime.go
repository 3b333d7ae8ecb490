package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/loomrun/coreagent/internal/agenttool"
	"github.com/loomrun/coreagent/internal/authsecrets"
	"github.com/loomrun/coreagent/internal/catalog"
	"github.com/loomrun/coreagent/internal/extension"
	"github.com/loomrun/coreagent/internal/journal"
	"github.com/loomrun/coreagent/internal/metrics"
	"github.com/loomrun/coreagent/internal/providers"
	"github.com/loomrun/coreagent/internal/providers/anthropic"
	"github.com/loomrun/coreagent/internal/providers/bedrock"
	"github.com/loomrun/coreagent/internal/providers/google"
	"github.com/loomrun/coreagent/internal/providers/openaicompat"
	"github.com/loomrun/coreagent/internal/providers/openairesponses"
	"github.com/loomrun/coreagent/internal/telemetry"
	"github.com/loomrun/coreagent/internal/toolexec"
	"github.com/loomrun/coreagent/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

// defaultCatalogDir is where models.yml lives when --catalog is unset.
const defaultCatalogDir = "./config"

// runtime bundles every long-lived dependency a run needs: the resolved
// catalog, a populated provider registry, credential resolution, and
// observability. buildRuntime is the one place all of coreagent's
// adapters and ambient infrastructure get wired together.
type runtime struct {
	catalog    *catalog.Registry
	registry   *providers.Registry
	resolver   *authsecrets.Resolver
	limiter    *providers.RateLimiter
	metrics    *metrics.Metrics
	tracer     *telemetry.Tracer
	shutdown   func(context.Context) error
	extensions *extension.Runner
}

func resolveCatalogDir(dir string) string {
	if dir != "" {
		return dir
	}
	return defaultCatalogDir
}

// buildRuntime loads models.yml from dir, constructs one adapter per
// configured provider, and registers each behind a shared rate limiter
// (spec 6.5 credential resolution, spec 4.E provider registry).
func buildRuntime(ctx context.Context, dir string) (*runtime, error) {
	dir = resolveCatalogDir(dir)
	reg := catalog.Load(dir)
	if err := reg.Err(); err != nil {
		slog.Warn("catalog loaded with errors", "dir", dir, "error", err)
	}

	store, err := authsecrets.OpenCredentialStore(filepath.Join(dir, "credentials.enc"), credentialSecret())
	if err != nil {
		slog.Warn("credential store unavailable, falling back to env vars", "error", err)
		store = nil
	}
	resolver := authsecrets.NewResolver(store, catalogApiKeyFallback(reg))

	limiter := providers.NewRateLimiter(4, 8)
	providerRegistry := providers.NewRegistry()

	for _, providerID := range configuredProviders(reg) {
		pcfg, ok := reg.Provider(providerID)
		if !ok {
			continue
		}
		apiKey, _ := resolver.Resolve(providerID)
		adapter, err := buildAdapter(ctx, pcfg, apiKey)
		if err != nil {
			slog.Warn("skipping provider, adapter construction failed", "provider", providerID, "error", err)
			continue
		}
		providerRegistry.Register(providers.NewRateLimitedProvider(adapter, limiter), string(providerID))
	}

	m := metrics.New(prometheus.NewRegistry())
	tracer, shutdown := telemetry.New(telemetry.Config{ServiceName: "coreagent"})

	return &runtime{
		catalog:    reg,
		registry:   providerRegistry,
		resolver:   resolver,
		limiter:    limiter,
		metrics:    m,
		tracer:     tracer,
		shutdown:   shutdown,
		extensions: extension.NewRunner(),
	}, nil
}

func (r *runtime) close(ctx context.Context) {
	if r.shutdown != nil {
		_ = r.shutdown(ctx)
	}
}

// configuredProviders returns every provider id models.yml names, walked
// off AllModels since Registry keeps its providers map unexported.
func configuredProviders(reg *catalog.Registry) []models.ProviderId {
	seen := make(map[models.ProviderId]struct{})
	var ids []models.ProviderId
	for _, m := range reg.AllModels() {
		if _, ok := seen[m.Provider]; ok {
			continue
		}
		seen[m.Provider] = struct{}{}
		ids = append(ids, m.Provider)
	}
	return ids
}

func credentialSecret() []byte {
	if v := os.Getenv("COREAGENT_CREDENTIAL_KEY"); v != "" {
		return []byte(v)
	}
	return []byte("coreagent-dev-credential-key-32byte")
}

func catalogApiKeyFallback(reg *catalog.Registry) authsecrets.FallbackFunc {
	return func(provider models.ProviderId) (string, bool) {
		pcfg, ok := reg.Provider(provider)
		if !ok || pcfg.ApiKey == "" {
			return "", false
		}
		return pcfg.ApiKey, true
	}
}

// buildAdapter constructs the ApiProvider matching pcfg.Api, the api
// family a models.yml provider entry declares (spec 4.D): anthropic,
// bedrock, google, openai-responses, or (the default) the OpenAI chat-
// completions wire protocol shared by OpenAI itself and every
// OpenAI-compatible gateway.
func buildAdapter(ctx context.Context, pcfg catalog.ProviderConfig, apiKey string) (providers.ApiProvider, error) {
	switch pcfg.Api {
	case "anthropic":
		return anthropic.New(pcfg.Api, apiKey, pcfg.BaseUrl), nil
	case "bedrock":
		return bedrock.New(ctx, pcfg.Api, bedrock.Config{})
	case "google":
		return google.New(ctx, pcfg.Api, apiKey)
	case "openai-responses":
		return openairesponses.New(pcfg.Api, apiKey, pcfg.BaseUrl), nil
	default:
		return openaicompat.New(pcfg.Api, apiKey, pcfg.BaseUrl, compatFor(pcfg)), nil
	}
}

// compatFor derives an openaicompat.Compat from a provider's per-model
// compat overrides (spec 4.D.6); models.yml entries outside OpenAI
// itself (Mistral, Groq, OpenRouter, ...) set these fields to describe
// their deviations from the stock wire format.
func compatFor(pcfg catalog.ProviderConfig) openaicompat.Compat {
	compat := openaicompat.DefaultCompat()
	for _, entry := range pcfg.Models {
		if len(entry.Compat) == 0 {
			continue
		}
		if v, ok := entry.Compat["supportsDeveloperRole"].(bool); ok {
			compat.SupportsDeveloperRole = v
		}
		if v, ok := entry.Compat["maxTokensField"].(string); ok && v != "" {
			compat.MaxTokensField = v
		}
		if v, ok := entry.Compat["requiresMistralToolIds"].(bool); ok {
			compat.RequiresMistralToolIds = v
		}
		if v, ok := entry.Compat["requiresThinkingAsText"].(bool); ok {
			compat.RequiresThinkingAsText = v
		}
		if v, ok := entry.Compat["supportsStreamOptions"].(bool); ok {
			compat.SupportsStreamOptions = v
		}
		return compat
	}
	return compat
}

// newToolRegistry builds the tool set every run starts with: the batch
// tool (spec SUPPLEMENTED FEATURES: concurrent sub-invocations), wrapped
// through the extension runner so loaded extensions can intercept calls.
func newToolRegistry(ext *extension.Runner) *agenttool.Registry {
	reg := agenttool.NewRegistry()
	batch := toolexec.NewBatchTool(reg)
	reg.Register(batch.Label(), ext.WrapTool(batch.Label(), agenttool.Adapt[toolexec.BatchDetails](batch)))
	return reg
}

func openJournal(path string) (journal.Store, error) {
	if path == "" {
		return nil, nil
	}
	switch filepath.Ext(path) {
	case ".db", ".sqlite":
		return journal.OpenSQLite(path)
	default:
		return journal.OpenJSONL(path)
	}
}
