// Package config holds all warescan configuration, loaded from a YAML file
// with environment overrides applied on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all warescan configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Engine limits and budgets
	Engine EngineConfig `yaml:"engine"`

	// Warehouse context resolver policy
	Resolver ResolverConfig `yaml:"resolver"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig configures the SQLite-backed stores.
type StorageConfig struct {
	// DataDir holds the database and log files.
	DataDir      string `yaml:"data_dir" validate:"required"`
	DatabaseFile string `yaml:"database_file" validate:"required"`
}

// DatabasePath returns the full path of the SQLite database.
func (s StorageConfig) DatabasePath() string {
	return filepath.Join(s.DataDir, s.DatabaseFile)
}

// EngineConfig configures evaluation budgets and limits.
type EngineConfig struct {
	// TotalTimeout bounds one whole evaluation; expiry cancels it.
	TotalTimeout string `yaml:"total_timeout"`
	// RuleTimeout bounds a single rule; expiry marks the rule errored.
	RuleTimeout string `yaml:"rule_timeout"`
	// MaxConcurrent bounds evaluations running at once.
	MaxConcurrent int `yaml:"max_concurrent" validate:"min=1"`
	// MaxSnapshotRows rejects oversized snapshots before evaluation.
	MaxSnapshotRows int `yaml:"max_snapshot_rows" validate:"min=1"`
	// CancelCheckRows is how often evaluator loops poll for cancellation.
	CancelCheckRows int `yaml:"cancel_check_rows" validate:"min=1"`
}

// ResolverConfig carries the context-resolution policy constants. Both
// floors must hold for a tenant to be selected.
type ResolverConfig struct {
	MinMatchRatio float64 `yaml:"min_match_ratio" validate:"gt=0,lte=1"`
	MinMatched    int     `yaml:"min_matched" validate:"min=1"`
}

// LoggingConfig configures the category file logger.
type LoggingConfig struct {
	Debug      bool            `yaml:"debug"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "warescan",
		Version: "1.0.0",
		Storage: StorageConfig{
			DataDir:      ".warescan",
			DatabaseFile: "warescan.db",
		},
		Engine: EngineConfig{
			TotalTimeout:    "2m",
			RuleTimeout:     "30s",
			MaxConcurrent:   4,
			MaxSnapshotRows: 100000,
			CancelCheckRows: 256,
		},
		Resolver: ResolverConfig{
			MinMatchRatio: 0.30,
			MinMatched:    5,
		},
		Logging: LoggingConfig{
			Debug: false,
			Level: "info",
		},
	}
}

// Load reads a config file, fills defaults for missing sections and applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// applyEnvOverrides lets the environment win over the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("WARESCAN_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("WARESCAN_DB"); v != "" {
		c.Storage.DatabaseFile = v
	}
	if v := os.Getenv("WARESCAN_DEBUG"); v == "1" || v == "true" {
		c.Logging.Debug = true
		c.Logging.Level = "debug"
	}
}

// Validate checks the config for structural problems.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.ParseDuration(c.Engine.TotalTimeout); err != nil {
		return fmt.Errorf("invalid engine.total_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Engine.RuleTimeout); err != nil {
		return fmt.Errorf("invalid engine.rule_timeout: %w", err)
	}
	return nil
}

// TotalTimeout returns the parsed per-evaluation budget.
func (c *Config) TotalTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.TotalTimeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// RuleTimeout returns the parsed per-rule budget.
func (c *Config) RuleTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.RuleTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
