// Package config loads and validates the skillflow configuration from
// YAML files, with struct-tag validation and sane defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/skillflow/skillflow/pkg/engine"
	"github.com/skillflow/skillflow/pkg/queue"
	"github.com/skillflow/skillflow/pkg/telemetry"
)

// Config is the full process configuration.
type Config struct {
	Service   ServiceConfig    `yaml:"service"`
	Store     StoreConfig      `yaml:"store" validate:"required"`
	Queue     queue.Config     `yaml:"queue"`
	Retry     RetryConfig      `yaml:"retry"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// ServiceConfig tunes the submission surface.
type ServiceConfig struct {
	// ResultTTL bounds retention of admission claims, replayable results,
	// and run status records.
	ResultTTL time.Duration `yaml:"result_ttl" validate:"min=0"`
	// MaxParallel caps concurrent runs in batch fan-out.
	MaxParallel int `yaml:"max_parallel" validate:"min=1"`
}

// StoreConfig selects the durable backend. The memory driver is the
// explicit degraded mode: single-node, lost on restart.
type StoreConfig struct {
	Driver string `yaml:"driver" validate:"required,oneof=sqlite memory"`
	// Path is the SQLite database file; ignored by the memory driver.
	Path string `yaml:"path"`
}

// RetryConfig mirrors engine.RetryPolicy for YAML loading.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries" validate:"min=0"`
	BaseDelay      time.Duration `yaml:"base_delay" validate:"min=0"`
	RateLimitBase  time.Duration `yaml:"rate_limit_base" validate:"min=0"`
	DependencyBase time.Duration `yaml:"dependency_base" validate:"min=0"`
	DependencyCap  time.Duration `yaml:"dependency_cap" validate:"min=0"`
}

// Policy converts the loaded values into an engine retry policy.
func (r RetryConfig) Policy() engine.RetryPolicy {
	return engine.RetryPolicy{
		MaxRetries:     r.MaxRetries,
		BaseDelay:      r.BaseDelay,
		RateLimitBase:  r.RateLimitBase,
		DependencyBase: r.DependencyBase,
		DependencyCap:  r.DependencyCap,
	}
}

// Default returns the default configuration.
func Default() *Config {
	policy := engine.DefaultRetryPolicy()
	return &Config{
		Service: ServiceConfig{
			ResultTTL:   24 * time.Hour,
			MaxParallel: 8,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "skillflow.db",
		},
		Queue: queue.DefaultConfig(),
		Retry: RetryConfig{
			MaxRetries:     policy.MaxRetries,
			BaseDelay:      policy.BaseDelay,
			RateLimitBase:  policy.RateLimitBase,
			DependencyBase: policy.DependencyBase,
			DependencyCap:  policy.DependencyCap,
		},
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load reads the file at path over the defaults. An empty path returns the
// defaults unchanged. The result is validated before being returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags plus the cross-field rules the tags cannot
// express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Store.Driver == "sqlite" && c.Store.Path == "" {
		return fmt.Errorf("invalid configuration: store.path is required for the sqlite driver")
	}
	if err := c.Telemetry.Validate(); err != nil {
		return err
	}
	return nil
}
