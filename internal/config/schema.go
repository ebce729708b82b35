// Package config defines the configuration schema for orchestria.
//
// JSON keys use camelCase. Secrets are read from the environment (or the
// .env file in the data dir) when the matching key is left empty.
package config

import "path/filepath"

// ProviderConfig holds the endpoint and credentials of one model backend.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	APIBase string `json:"apiBase,omitempty"`
}

// ProvidersConfig holds connection settings for every supported backend.
type ProvidersConfig struct {
	Ollama    ProviderConfig `json:"ollama"`
	Anthropic ProviderConfig `json:"anthropic"`
	OpenAI    ProviderConfig `json:"openai"`
}

// RuntimeConfig bounds what a single conversation turn may do.
type RuntimeConfig struct {
	// MaxIterations is the number of provider calls allowed per user turn.
	MaxIterations      int `json:"maxIterations"`
	ToolTimeoutSeconds int `json:"toolTimeoutSeconds"`
	MaxParallelTools   int `json:"maxParallelTools"`
	MaxTokens          int `json:"maxTokens"`
}

func defaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		MaxIterations:      10,
		ToolTimeoutSeconds: 120,
		MaxParallelTools:   4,
		MaxTokens:          1024,
	}
}

// RegistryConfig locates the durable registry and the fetched repositories.
// Empty values resolve under the data dir.
type RegistryConfig struct {
	Path     string `json:"path,omitempty"`
	ReposDir string `json:"reposDir,omitempty"`
}

// ---- Root config -----------------------------------------------------------

// Config is the root configuration object, loaded from ~/.orchestria/config.json.
type Config struct {
	Providers ProvidersConfig `json:"providers"`
	Runtime   RuntimeConfig   `json:"runtime"`
	Registry  RegistryConfig  `json:"registry"`
}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() Config {
	return Config{
		Runtime: defaultRuntimeConfig(),
	}
}

// RegistryPath returns the SQLite database file of the registry.
func (c *Config) RegistryPath() string {
	if c.Registry.Path != "" {
		return expandHome(c.Registry.Path)
	}
	return filepath.Join(DataDir(), "registry.db")
}

// ReposDir returns the directory fetched repositories are checked out into.
func (c *Config) ReposDir() string {
	if c.Registry.ReposDir != "" {
		return expandHome(c.Registry.ReposDir)
	}
	return filepath.Join(DataDir(), "repos")
}

// ProviderByName returns a pointer to the ProviderConfig field matching the
// given registry name (e.g. "ollama", "anthropic"). Returns nil if unknown.
func (c *Config) ProviderByName(name string) *ProviderConfig {
	switch name {
	case "ollama":
		return &c.Providers.Ollama
	case "anthropic":
		return &c.Providers.Anthropic
	case "openai":
		return &c.Providers.OpenAI
	}
	return nil
}
