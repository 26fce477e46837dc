package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds configuration for the enrolld server.
type Config struct {
	Addr      string `yaml:"addr"`       // Listen address (default ":8080")
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // SQLite database path (":memory:" for testing)

	// Concurrency bounds in-flight jobs per batch.
	Concurrency int `yaml:"concurrency"`

	// MaxRotationRetries bounds distinct resources tried for one step.
	MaxRotationRetries int `yaml:"max_rotation_retries"`

	// DefaultDailyLimit is applied to resources created without an explicit
	// limit. The canonical default of 1 means one resource serves one
	// account per day.
	DefaultDailyLimit int `yaml:"default_daily_limit"`

	// ExecutorURL is the endpoint of the external step-executor sidecar.
	ExecutorURL string `yaml:"executor_url"`
}

// Default returns sensible defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		LogLevel:           "info",
		LogFormat:          "text",
		Concurrency:        3,
		MaxRotationRetries: 5,
		DefaultDailyLimit:  1,
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// plain defaults; a present but unreadable or malformed file is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
