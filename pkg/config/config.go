// Package config loads pool configuration from a JSON file with
// environment variable overrides, following the same precedence order the
// rest of the corpus uses: defaults, then file, then environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kilnforge/filepool/pkg/logging"
)

// Config is the top-level configuration for the demo binary: pool sizing,
// the working directory plugins resolve against, and logging behavior.
type Config struct {
	Cwd         string `json:"cwd"`
	Concurrency int    `json:"concurrency"`
	Dev         bool   `json:"dev"`
	Debug       bool   `json:"debug"`

	Log DashboardLogConfig `json:"log"`

	Dashboard DashboardConfig `json:"dashboard"`
}

// DashboardLogConfig configures the pkg/logging.Logger the demo installs
// as its Run.Log capability.
type DashboardLogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DashboardConfig configures the optional status dashboard (pkg/dashboard).
type DashboardConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

// Default returns a Config with secure, sensible defaults.
func Default() *Config {
	return &Config{
		Cwd:         ".",
		Concurrency: 4,
		Dev:         false,
		Debug:       false,
		Log:         DashboardLogConfig{Level: "info", Format: "text"},
		Dashboard:   DashboardConfig{Enabled: false, Addr: ":8090"},
	}
}

// Load builds a Config from defaults, an optional JSON file at path
// (missing files are ignored), then environment variable overrides, and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, c)
}

// applyEnvironmentOverrides mirrors the corpus's FILEPOOL_-prefixed
// environment variable convention: every field can be overridden without
// touching the config file, which is the highest-precedence source.
func (c *Config) applyEnvironmentOverrides() {
	if v := os.Getenv("FILEPOOL_CWD"); v != "" {
		c.Cwd = v
	}
	if v := os.Getenv("FILEPOOL_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Concurrency = n
		}
	}
	if v := os.Getenv("FILEPOOL_DEV"); v != "" {
		c.Dev = parseBool(v)
	}
	if v := os.Getenv("FILEPOOL_DEBUG"); v != "" {
		c.Debug = parseBool(v)
	}
	if v := os.Getenv("FILEPOOL_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("FILEPOOL_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("FILEPOOL_DASHBOARD_ENABLED"); v != "" {
		c.Dashboard.Enabled = parseBool(v)
	}
	if v := os.Getenv("FILEPOOL_DASHBOARD_ADDR"); v != "" {
		c.Dashboard.Addr = v
	}
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// Validate checks the configuration is usable, matching the failure
// conditions spec.md §4.1 states for pool construction.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Cwd) == "" {
		return fmt.Errorf("cwd must not be empty")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be a positive integer, got %d", c.Concurrency)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// LogLevel resolves the configured level, defaulting to Info if unset or
// invalid (Validate should already have rejected an invalid value).
func (c *Config) LogLevel() logging.Level {
	lvl, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return logging.InfoLevel
	}
	return lvl
}

// LogFormat resolves the configured format.
func (c *Config) LogFormat() logging.Format {
	if strings.ToLower(c.Log.Format) == "json" {
		return logging.JSONFormat
	}
	return logging.TextFormat
}
