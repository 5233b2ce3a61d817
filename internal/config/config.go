// Package config provides configuration management for the ETL pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrNoSources                = errors.New("at least one source is required")
	ErrSourceMissingName        = errors.New("source name is required")
	ErrDuplicateSourceName      = errors.New("source names must be unique")
	ErrInvalidSourceType        = errors.New("source type must be one of: csv, json, sql, api")
	ErrSourceMissingLocation    = errors.New("source requires path (csv, json), query (sql) or url (api)")
	ErrNoEnabledSources         = errors.New("at least one source must be enabled")
	ErrInvalidMaxAttempts       = errors.New("retry.max_attempts must be at least 1")
	ErrInvalidInitialDelay      = errors.New("retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoffMultiplier = errors.New("retry.backoff_multiplier must be >= 1.0")
	ErrInvalidTimeout           = errors.New("retry.timeout_sec must be at least 1")
	ErrMissingOutputPath        = errors.New("output.base_path is required")
	ErrInvalidOutputFormat      = errors.New("output.formats entries must be 'csv' or 'json'")
	ErrInvalidDatabaseDriver    = errors.New("database.driver must be 'sqlite' or 'postgres'")
	ErrMissingDatabaseDSN       = errors.New("database.dsn is required when the database is enabled")
	ErrInvalidRollingWindow     = errors.New("metrics.rolling_window must be at least 1")
	ErrInvalidStockThreshold    = errors.New("metrics.low_stock_threshold must be non-negative")
	ErrInvalidMissingFraction   = errors.New("validation.max_missing_fraction must be within (0, 1]")
	ErrMinExceedsMax            = errors.New("validation.min_order_value cannot exceed validation.max_order_value")
	ErrInvalidLogLevel          = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat         = errors.New("logging.format must be 'text' or 'json'")
)

// Config represents the complete pipeline configuration.
type Config struct {
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// PipelineConfig contains pipeline-wide settings.
type PipelineConfig struct {
	Output     OutputConfig     `yaml:"output"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Sources    []SourceConfig   `yaml:"sources"`
	Retry      RetryPolicy      `yaml:"retry"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Validation ValidationConfig `yaml:"validation"`
}

// Source types.
const (
	SourceCSV  = "csv"
	SourceJSON = "json"
	SourceSQL  = "sql"
	SourceAPI  = "api"
)

// SourceConfig describes one place raw sales data is read from.
type SourceConfig struct {
	Headers map[string]string `yaml:"headers"`
	Name    string            `yaml:"name"`
	Type    string            `yaml:"type"`
	Path    string            `yaml:"path"`
	URL     string            `yaml:"url"`
	Query   string            `yaml:"query"`
	Enabled bool              `yaml:"enabled"`
}

// Location returns the path, URL or query this source reads from.
func (s *SourceConfig) Location() string {
	switch s.Type {
	case SourceSQL:
		return s.Query
	case SourceAPI:
		return s.URL
	default:
		return s.Path
	}
}

// RetryPolicy defines retry behavior.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// OutputConfig defines where results are written.
type OutputConfig struct {
	BasePath    string   `yaml:"base_path"`
	Prefix      string   `yaml:"prefix"`
	Formats     []string `yaml:"formats"`
	PrettyPrint bool     `yaml:"pretty_print"`
	Report      bool     `yaml:"report"`
}

// DatabaseConfig defines the optional relational sink and SQL source connection.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	TablePrefix string `yaml:"table_prefix"`
	Enabled     bool   `yaml:"enabled"`
}

// MetricsConfig holds metric engine settings.
type MetricsConfig struct {
	RollingWindow     int     `yaml:"rolling_window"`
	LowStockThreshold float64 `yaml:"low_stock_threshold"`
}

// ValidationConfig holds data validator settings.
type ValidationConfig struct {
	MaxMissingFraction float64 `yaml:"max_missing_fraction"`
	MinOrderValue      float64 `yaml:"min_order_value"`
	MaxOrderValue      float64 `yaml:"max_order_value"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration populated with the standard settings and no sources.
func Default() *Config {
	th := DefaultThresholds()

	return &Config{
		Pipeline: PipelineConfig{
			Output: OutputConfig{
				BasePath: "./output",
				Prefix:   "processed",
				Formats:  []string{"csv"},
			},
			Database: DatabaseConfig{Driver: "sqlite"},
			Logging:  LoggingConfig{Level: "info", Format: "text"},
			Retry: RetryPolicy{
				MaxAttempts:       3,
				InitialDelayMs:    500,
				MaxDelayMs:        30000,
				BackoffMultiplier: 2.0,
				TimeoutSec:        30,
			},
			Metrics: MetricsConfig{
				RollingWindow:     th.RollingWindow,
				LowStockThreshold: th.LowStockThreshold,
			},
			Validation: ValidationConfig{
				MaxMissingFraction: th.MaxMissingFraction,
				MinOrderValue:      th.MinOrderValue,
				MaxOrderValue:      th.MaxOrderValue,
			},
		},
	}
}

// LoadEnv loads KEY=VALUE pairs from the given .env files into the process
// environment. Missing files are skipped; variables already set are kept.
func LoadEnv(files ...string) error {
	var existing []string

	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}

	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}

	return nil
}

// LoadConfig loads configuration from a YAML file on top of Default.
// ${VAR} references are expanded from the environment before parsing.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to YAML file.
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	p := &c.Pipeline

	if len(p.Sources) == 0 {
		return ErrNoSources
	}

	enabledCount := 0
	names := make(map[string]bool, len(p.Sources))

	for i, src := range p.Sources {
		if src.Name == "" {
			return fmt.Errorf("%w: source[%d]", ErrSourceMissingName, i)
		}

		if names[src.Name] {
			return fmt.Errorf("%w: %s", ErrDuplicateSourceName, src.Name)
		}

		names[src.Name] = true

		switch src.Type {
		case SourceCSV, SourceJSON, SourceSQL, SourceAPI:
		default:
			return fmt.Errorf("%w: source[%d]", ErrInvalidSourceType, i)
		}

		if src.Location() == "" {
			return fmt.Errorf("%w: source[%d]", ErrSourceMissingLocation, i)
		}

		if src.Enabled {
			enabledCount++
		}
	}

	if enabledCount == 0 {
		return ErrNoEnabledSources
	}

	if p.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if p.Retry.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}

	if p.Retry.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoffMultiplier
	}

	if p.Retry.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	if p.Output.BasePath == "" {
		return ErrMissingOutputPath
	}

	for _, f := range p.Output.Formats {
		if f != "csv" && f != "json" {
			return fmt.Errorf("%w: %q", ErrInvalidOutputFormat, f)
		}
	}

	if p.Database.Enabled || p.hasSQLSource() {
		if p.Database.Driver != "sqlite" && p.Database.Driver != "postgres" {
			return ErrInvalidDatabaseDriver
		}

		if p.Database.DSN == "" {
			return ErrMissingDatabaseDSN
		}
	}

	if p.Metrics.RollingWindow < 1 {
		return ErrInvalidRollingWindow
	}

	if p.Metrics.LowStockThreshold < 0 {
		return ErrInvalidStockThreshold
	}

	if p.Validation.MaxMissingFraction <= 0 || p.Validation.MaxMissingFraction > 1 {
		return ErrInvalidMissingFraction
	}

	if p.Validation.MinOrderValue > p.Validation.MaxOrderValue {
		return ErrMinExceedsMax
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[p.Logging.Level] {
		return ErrInvalidLogLevel
	}

	if p.Logging.Format != "" && p.Logging.Format != "text" && p.Logging.Format != "json" {
		return ErrInvalidLogFormat
	}

	return nil
}

func (p *PipelineConfig) hasSQLSource() bool {
	for _, src := range p.Sources {
		if src.Enabled && src.Type == SourceSQL {
			return true
		}
	}

	return false
}

// GetEnabledSources returns only enabled sources.
func (c *Config) GetEnabledSources() []SourceConfig {
	var enabled []SourceConfig

	for _, src := range c.Pipeline.Sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}

	return enabled
}

// GetSource returns the source with the given name.
func (c *Config) GetSource(name string) (SourceConfig, bool) {
	for _, src := range c.Pipeline.Sources {
		if src.Name == name {
			return src, true
		}
	}

	return SourceConfig{}, false
}

// Thresholds returns the tunable values the core components are built with.
func (c *Config) Thresholds() Thresholds {
	return Thresholds{
		RollingWindow:      c.Pipeline.Metrics.RollingWindow,
		LowStockThreshold:  c.Pipeline.Metrics.LowStockThreshold,
		MaxMissingFraction: c.Pipeline.Validation.MaxMissingFraction,
		MinOrderValue:      c.Pipeline.Validation.MinOrderValue,
		MaxOrderValue:      c.Pipeline.Validation.MaxOrderValue,
	}
}

// GetRetryDelay calculates exponential backoff delay for attempt number.
func (rp *RetryPolicy) GetRetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 1; i < attempt; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	if int(delayMs) > rp.MaxDelayMs {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(int(delayMs)) * time.Millisecond
}

// GetTimeout returns the timeout duration.
func (rp *RetryPolicy) GetTimeout() time.Duration {
	return time.Duration(rp.TimeoutSec) * time.Second
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Sources: %d, MaxAttempts: %d, Output: %s}",
		len(c.Pipeline.Sources),
		c.Pipeline.Retry.MaxAttempts,
		c.Pipeline.Output.BasePath,
	)
}
