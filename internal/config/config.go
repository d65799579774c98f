// Package config handles application configuration (YAML) and the
// consumed JSON contracts: scenario sets and broker specs.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the application-level configuration loaded from YAML.
type Config struct {
	Data      DataConfig      `yaml:"data"`
	System    SystemConfig    `yaml:"system"`
	LiveStats LiveStatsConfig `yaml:"live_stats"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Archive   ArchiveConfig   `yaml:"archive"`
}

// DataConfig locates the columnar store and broker specs on disk.
type DataConfig struct {
	DataDir         string `yaml:"data_dir"`
	Collector       string `yaml:"collector"`
	BrokerConfigDir string `yaml:"broker_config_dir"`
}

// SystemConfig contains logging settings.
type SystemConfig struct {
	LogLevel string `yaml:"log_level"`
	LogDir   string `yaml:"log_dir"` // empty disables per-scenario file logs
}

// LiveStatsConfig controls the live telemetry queue and display server.
type LiveStatsConfig struct {
	Enabled           bool    `yaml:"enabled"`
	QueueSize         int     `yaml:"queue_size"`
	UpdateIntervalSec float64 `yaml:"update_interval_sec"`
	ListenAddr        string  `yaml:"listen_addr"` // websocket display endpoint, empty disables
}

// TelemetryConfig contains metrics settings.
type TelemetryConfig struct {
	EnableMetrics bool `yaml:"enable_metrics"`
	MetricsPort   int  `yaml:"metrics_port"`
}

// ArchiveConfig controls the sqlite run archive.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment
// variable expansion.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.Expand(string(data), os.Getenv)

	var config Config
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

// DefaultConfig returns a default configuration for testing.
func DefaultConfig() *Config {
	c := &Config{
		Data: DataConfig{
			DataDir:         "data/processed",
			Collector:       "mt5",
			BrokerConfigDir: "configs/brokers",
		},
		System: SystemConfig{LogLevel: "INFO"},
		LiveStats: LiveStatsConfig{
			Enabled:           true,
			QueueSize:         1024,
			UpdateIntervalSec: 1.0,
		},
		Telemetry: TelemetryConfig{EnableMetrics: false, MetricsPort: 9180},
		Archive:   ArchiveConfig{Enabled: false, Path: "data/runs.db"},
	}
	return c
}

func (c *Config) applyDefaults() {
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.LiveStats.QueueSize == 0 {
		c.LiveStats.QueueSize = 1024
	}
	if c.LiveStats.UpdateIntervalSec == 0 {
		c.LiveStats.UpdateIntervalSec = 1.0
	}
	if c.Archive.Path == "" {
		c.Archive.Path = "data/runs.db"
	}
	if c.Telemetry.MetricsPort == 0 {
		c.Telemetry.MetricsPort = 9180
	}
}

// Validate performs validation of the configuration.
func (c *Config) Validate() error {
	var errs []string

	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		errs = append(errs, ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}.Error())
	}
	if c.Data.DataDir == "" {
		errs = append(errs, ValidationError{
			Field:   "data.data_dir",
			Message: "data directory is required",
		}.Error())
	}
	if c.LiveStats.QueueSize < 1 {
		errs = append(errs, ValidationError{
			Field:   "live_stats.queue_size",
			Value:   c.LiveStats.QueueSize,
			Message: "queue size must be positive",
		}.Error())
	}
	if c.LiveStats.UpdateIntervalSec <= 0 {
		errs = append(errs, ValidationError{
			Field:   "live_stats.update_interval_sec",
			Value:   c.LiveStats.UpdateIntervalSec,
			Message: "update interval must be positive",
		}.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}
	return nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
