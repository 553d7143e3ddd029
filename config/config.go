// Package config loads trackingest configuration from defaults, an optional
// YAML file and the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the environment variable that points at a YAML file.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"trackingest.yaml",
	"trackingest.yml",
	"/etc/trackingest/config.yaml",
}

// Config is the full application configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Ingest   IngestConfig   `koanf:"ingest"`
	Logging  LoggingConfig  `koanf:"logging"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Export   ExportConfig   `koanf:"export"`
}

type DatabaseConfig struct {
	Path        string        `koanf:"path" validate:"required"`
	BusyTimeout time.Duration `koanf:"busy_timeout" validate:"gte=0"`
}

type IngestConfig struct {
	MaxUploadBytes       int64   `koanf:"max_upload_bytes" validate:"gt=0"`
	MovingSpeedThreshold float64 `koanf:"moving_speed_threshold" validate:"gte=0"`
	RecordBatchSize      int     `koanf:"record_batch_size" validate:"gt=0,lte=5000"`
	// FITTimezone is an IANA zone applied to FIT timestamps. Empty means UTC.
	FITTimezone string `koanf:"fit_timezone" validate:"omitempty,timezone"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr" validate:"required_if=Enabled true"`
}

type ExportConfig struct {
	Format string `koanf:"format" validate:"oneof=parquet csv"`
}

func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "data/trackingest.db",
			BusyTimeout: 5 * time.Second,
		},
		Ingest: IngestConfig{
			MaxUploadBytes:       50 << 20,
			MovingSpeedThreshold: 0.5,
			RecordBatchSize:      500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
		Export: ExportConfig{
			Format: "parquet",
		},
	}
}

// Load builds the configuration: struct defaults, then the YAML file named by
// CONFIG_PATH (or the first default path that exists), then environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var envMappings = map[string]string{
	"database_path":                 "database.path",
	"database_busy_timeout":         "database.busy_timeout",
	"max_upload_bytes":              "ingest.max_upload_bytes",
	"moving_speed_threshold":        "ingest.moving_speed_threshold",
	"record_batch_size":             "ingest.record_batch_size",
	"fit_timezone":                  "ingest.fit_timezone",
	"log_level":                     "logging.level",
	"log_format":                    "logging.format",
	"log_caller":                    "logging.caller",
	"metrics_enabled":               "metrics.enabled",
	"metrics_addr":                  "metrics.addr",
	"export_format":                 "export.format",
	"trackingest_database_path":     "database.path",
	"trackingest_record_batch_size": "ingest.record_batch_size",
}

// envTransformFunc maps known environment variables to koanf paths and drops
// everything else.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks struct tags.
func (c *Config) Validate() error {
	return getValidator().Struct(c)
}

// Location resolves the FIT timezone. Empty means UTC.
func (c IngestConfig) Location() (*time.Location, error) {
	if c.FITTimezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.FITTimezone)
}
