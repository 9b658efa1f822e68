// Package config loads the runcache TOML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// EnvLogLevel overrides [log] level when set.
const EnvLogLevel = "RUNCACHE_LOG_LEVEL"

// Defaults applied to fields left empty in the file.
const (
	DefaultDatabase          = "runcache.db"
	DefaultLogLevel          = "info"
	DefaultBatchSize         = 64
	DefaultQueueCapacityHint = 64
)

// Config is the on-disk configuration.
//
//	database = "runcache.db"
//
//	[log]
//	level = "info"
//
//	[ingest]
//	batch_size = 64
//	queue_capacity_hint = 64
type Config struct {
	Database string       `toml:"database"`
	Log      LogConfig    `toml:"log"`
	Ingest   IngestConfig `toml:"ingest"`
}

// LogConfig controls the CLI log handler.
type LogConfig struct {
	Level string `toml:"level"`
}

// IngestConfig controls run-report batching.
type IngestConfig struct {
	BatchSize         int `toml:"batch_size"`
	QueueCapacityHint int `toml:"queue_capacity_hint"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadOrDefault loads path, or returns the defaults with the environment
// override applied when path is empty.
func LoadOrDefault(path string) (Config, error) {
	if path != "" {
		return Load(path)
	}
	cfg := Default()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads path, applies defaults and the environment override, and
// validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes TOML data. Unknown keys are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("config parse failed: %s", strict.String())
		}
		return Config{}, fmt.Errorf("config parse failed: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Database) == "" {
		c.Database = DefaultDatabase
	}
	if strings.TrimSpace(c.Log.Level) == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Ingest.BatchSize == 0 {
		c.Ingest.BatchSize = DefaultBatchSize
	}
	if c.Ingest.QueueCapacityHint == 0 {
		c.Ingest.QueueCapacityHint = DefaultQueueCapacityHint
	}
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.Log.Level = v
	}
}

// Validate checks field ranges.
func (c Config) Validate() error {
	var errs []error
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Ingest.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("ingest.batch_size must be positive, got %d", c.Ingest.BatchSize))
	}
	if c.Ingest.QueueCapacityHint < 0 {
		errs = append(errs, fmt.Errorf("ingest.queue_capacity_hint must not be negative, got %d", c.Ingest.QueueCapacityHint))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log.level: unknown level %q", raw)
	}
}
