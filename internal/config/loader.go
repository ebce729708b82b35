package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// HomeEnv overrides the data directory.
const HomeEnv = "ORCHESTRIA_HOME"

// DataDir returns the orchestria data directory: $ORCHESTRIA_HOME or ~/.orchestria.
func DataDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return expandHome(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".orchestria"
	}
	return filepath.Join(home, ".orchestria")
}

// ConfigPath returns the default configuration file path: <data dir>/config.json.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.json")
}

// EnvPath returns the .env file read by LoadEnv.
func EnvPath() string {
	return filepath.Join(DataDir(), ".env")
}

// LoadEnv loads KEY=value pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = EnvPath()
	}
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load env %s: %w", path, err)
	}
	return nil
}

// Load reads and parses the config file at path.
// If path is empty, ConfigPath() is used.
// On parse failure it logs a warning and returns DefaultConfig().
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Warn("failed to parse config, using defaults", "path", path, "err", err)
		cfg2 := DefaultConfig()
		return &cfg2, nil
	}
	cfg.fillDefaults()

	return &cfg, nil
}

// Save writes cfg to path as indented JSON.
// If path is empty, ConfigPath() is used.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// fillDefaults replaces non-positive runtime limits with their defaults.
func (c *Config) fillDefaults() {
	def := defaultRuntimeConfig()
	if c.Runtime.MaxIterations <= 0 {
		c.Runtime.MaxIterations = def.MaxIterations
	}
	if c.Runtime.ToolTimeoutSeconds <= 0 {
		c.Runtime.ToolTimeoutSeconds = def.ToolTimeoutSeconds
	}
	if c.Runtime.MaxParallelTools <= 0 {
		c.Runtime.MaxParallelTools = def.MaxParallelTools
	}
	if c.Runtime.MaxTokens <= 0 {
		c.Runtime.MaxTokens = def.MaxTokens
	}
}

func expandHome(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}
