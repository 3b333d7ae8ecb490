package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the YAML catalog file name models.yml resolution
// looks for first.
const DefaultFileName = "models.yml"

// LegacyFileName is the JSON fallback checked when DefaultFileName is
// absent (spec 6.3: "YAML takes precedence over the legacy JSON").
const LegacyFileName = "models.json"

// LoadFile resolves and parses the catalog file under dir: models.yml if
// present, otherwise models.json. ${ENV_VAR} references anywhere in the
// file are expanded against the process environment before parsing,
// covering the apiKey field spec 6.3 calls out explicitly.
func LoadFile(dir string) (*Config, error) {
	yamlPath := filepath.Join(dir, DefaultFileName)
	if _, err := os.Stat(yamlPath); err == nil {
		return loadYAML(yamlPath)
	}

	jsonPath := filepath.Join(dir, LegacyFileName)
	if _, err := os.Stat(jsonPath); err == nil {
		return loadJSON(jsonPath)
	}

	return nil, fmt.Errorf("catalog: neither %s nor %s found in %s", DefaultFileName, LegacyFileName, dir)
}

func loadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return &cfg, nil
}

func loadJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := json.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("catalog: parse %s: %w", path, err)
	}
	return &cfg, nil
}
