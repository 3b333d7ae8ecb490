package catalog

import (
	"strings"

	"github.com/loomrun/coreagent/pkg/models"
)

// Selection is the caller-supplied half of model resolution: whatever
// was explicit on the CLI or in settings (spec 6.4). Every field is
// optional; Resolve walks them in priority order.
type Selection struct {
	CLIProvider models.ProviderId
	CLIModel    string

	SettingsDefaultProvider models.ProviderId
	SettingsDefaultModel    string

	// ModelRoleDefault is settings.modelRoles.default (spec 6.4).
	ModelRoleDefault string

	// ProviderDefaults maps a provider id to its configured default
	// model id (spec 6.4 "per-provider default map").
	ProviderDefaults map[models.ProviderId]string
}

// Resolve walks spec 6.4's priority chain against reg's catalog,
// returning the first Model it can settle on.
func Resolve(reg *Registry, sel Selection) (models.Model, bool) {
	all := reg.AllModels()

	// explicit CLI provider+model
	if sel.CLIProvider != "" && sel.CLIModel != "" {
		if m, ok := exactProviderAndID(all, sel.CLIProvider, sel.CLIModel); ok {
			return m, true
		}
	}

	// CLI model pattern (fuzzy)
	if sel.CLIModel != "" {
		if m, ok := FuzzyMatch(all, "", sel.CLIModel); ok {
			return m, true
		}
	}

	// CLI provider -> provider's default id
	if sel.CLIProvider != "" {
		if defaultID, ok := sel.ProviderDefaults[sel.CLIProvider]; ok {
			if m, ok := exactProviderAndID(all, sel.CLIProvider, defaultID); ok {
				return m, true
			}
		}
		if m, ok := firstForProvider(all, sel.CLIProvider); ok {
			return m, true
		}
	}

	// settings defaultProvider+defaultModel
	if sel.SettingsDefaultProvider != "" && sel.SettingsDefaultModel != "" {
		if m, ok := exactProviderAndID(all, sel.SettingsDefaultProvider, sel.SettingsDefaultModel); ok {
			return m, true
		}
	}

	// settings defaultModel (fuzzy)
	if sel.SettingsDefaultModel != "" {
		if m, ok := FuzzyMatch(all, "", sel.SettingsDefaultModel); ok {
			return m, true
		}
	}

	// modelRoles.default (fuzzy)
	if sel.ModelRoleDefault != "" {
		if m, ok := FuzzyMatch(all, "", sel.ModelRoleDefault); ok {
			return m, true
		}
	}

	// per-provider default map
	for provider, defaultID := range sel.ProviderDefaults {
		if m, ok := exactProviderAndID(all, provider, defaultID); ok {
			return m, true
		}
	}

	// first available
	if len(all) > 0 {
		return all[0], true
	}
	return models.Model{}, false
}

func exactProviderAndID(all []models.Model, provider models.ProviderId, id string) (models.Model, bool) {
	for _, m := range all {
		if m.Provider == provider && m.ID == id {
			return m, true
		}
	}
	return models.Model{}, false
}

func firstForProvider(all []models.Model, provider models.ProviderId) (models.Model, bool) {
	for _, m := range all {
		if m.Provider == provider {
			return m, true
		}
	}
	return models.Model{}, false
}

// FuzzyMatch implements spec 6.4's fuzzy matching priority: exact
// "provider/id" → exact id (case-insensitive) → substring within a
// named provider → substring on id or name, preferring an undated alias
// over a dated snapshot.
func FuzzyMatch(all []models.Model, provider models.ProviderId, pattern string) (models.Model, bool) {
	if pattern == "" {
		return models.Model{}, false
	}

	if p, id, ok := splitProviderSlashID(pattern); ok {
		if m, ok := exactProviderAndID(all, p, id); ok {
			return m, true
		}
	}

	lowerPattern := strings.ToLower(pattern)

	for _, m := range all {
		if strings.EqualFold(m.ID, pattern) {
			return m, true
		}
	}

	if provider != "" {
		if m, ok := bestSubstringMatch(filterByProvider(all, provider), lowerPattern); ok {
			return m, true
		}
	}

	return bestSubstringMatch(all, lowerPattern)
}

func splitProviderSlashID(pattern string) (models.ProviderId, string, bool) {
	idx := strings.IndexByte(pattern, '/')
	if idx < 0 {
		return "", "", false
	}
	return models.ProviderId(pattern[:idx]), pattern[idx+1:], true
}

func filterByProvider(all []models.Model, provider models.ProviderId) []models.Model {
	out := make([]models.Model, 0, len(all))
	for _, m := range all {
		if m.Provider == provider {
			out = append(out, m)
		}
	}
	return out
}

// bestSubstringMatch scans for a case-insensitive substring match on id
// or name, preferring an alias (IsDatedVersion false) over a dated
// snapshot when both match.
func bestSubstringMatch(all []models.Model, lowerPattern string) (models.Model, bool) {
	var best models.Model
	found := false
	for _, m := range all {
		if !strings.Contains(strings.ToLower(m.ID), lowerPattern) && !strings.Contains(strings.ToLower(m.Name), lowerPattern) {
			continue
		}
		if !found {
			best, found = m, true
			continue
		}
		if best.IsDatedVersion() && !m.IsDatedVersion() {
			best = m
		}
	}
	return best, found
}

// ResolveRole walks a fixed priority chain of patterns for a named
// model role (e.g. "smol", "slow"), returning the first one that fuzzy-
// matches (spec 6.4 "Role-based resolution walks a fixed priority chain
// of patterns").
func ResolveRole(reg *Registry, patterns []string) (models.Model, bool) {
	all := reg.AllModels()
	for _, pattern := range patterns {
		if m, ok := FuzzyMatch(all, "", pattern); ok {
			return m, true
		}
	}
	return models.Model{}, false
}
