package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config,
// defaults. Missing files are not errors; malformed JSON returns an error.
func Load(globalPath, projectPath string) (*Config, error) {
	cfg := DefaultConfig()

	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// LoadDefault loads configuration from conventional paths.
// Global: ~/.maestro/config.json
// Project: .maestro/config.json (relative to cwd)
func LoadDefault() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting home directory: %w", err)
	}

	globalPath := filepath.Join(homeDir, ".maestro", "config.json")
	projectPath := filepath.Join(".maestro", "config.json")

	return Load(globalPath, projectPath)
}

// mergeConfigFile reads a JSON config file and merges it into the base
// config. Missing files are silently skipped.
func mergeConfigFile(base *Config, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	mergeInto(base, &loaded)
	return nil
}

// mergeInto overlays non-zero fields of loaded onto base. Chains merge per
// key so a project file can add a chain without restating the defaults.
func mergeInto(base, loaded *Config) {
	if loaded.Model.BaseURL != "" {
		base.Model.BaseURL = loaded.Model.BaseURL
	}
	if loaded.Model.APIKeyEnv != "" {
		base.Model.APIKeyEnv = loaded.Model.APIKeyEnv
	}
	if loaded.Model.Model != "" {
		base.Model.Model = loaded.Model.Model
	}
	if loaded.Model.MaxTokens > 0 {
		base.Model.MaxTokens = loaded.Model.MaxTokens
	}

	if loaded.Runner.Concurrency > 0 {
		base.Runner.Concurrency = loaded.Runner.Concurrency
	}

	if loaded.Retry.InitialIntervalMS > 0 || loaded.Retry.MaxIntervalMS > 0 ||
		loaded.Retry.MaxElapsedMS > 0 || loaded.Retry.Multiplier > 0 {
		base.Retry = loaded.Retry
	}

	if loaded.Aggregator != "" {
		base.Aggregator = loaded.Aggregator
	}
	if loaded.HistoryPath != "" {
		base.HistoryPath = loaded.HistoryPath
	}

	for key, chain := range loaded.Chains {
		if base.Chains == nil {
			base.Chains = make(map[string]ChainConfig)
		}
		base.Chains[key] = chain
	}
}
