// Package config loads the capmatch configuration file
// (~/.capmatch/config.yaml) used by the CLI to construct the engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/runger/capmatch/internal/engine"
	"github.com/runger/capmatch/internal/store"
)

// Config is the on-disk configuration.
type Config struct {
	// DatabasePath overrides the default ~/.capmatch/capmatch.db.
	DatabasePath string `yaml:"database_path"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// Engine holds partial engine settings; unset fields keep the
	// engine defaults.
	Engine engine.Overrides `yaml:"engine"`
}

// DefaultPath returns the default config file path.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".capmatch", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{LogLevel: "info"}
}

// Load reads the config file at path. A missing file yields the
// defaults; a malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// EngineConfig resolves the effective engine configuration: the engine
// defaults with the file's overrides applied.
func (c Config) EngineConfig() engine.Config {
	return c.Engine.Apply(engine.DefaultConfig())
}

// ResolveDatabasePath returns the configured database path, falling back
// to the default location.
func (c Config) ResolveDatabasePath() (string, error) {
	if c.DatabasePath != "" {
		return c.DatabasePath, nil
	}
	return store.DefaultDBPath()
}
