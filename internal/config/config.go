// Package config loads the CLI configuration from a .env file, the process
// environment and an optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/marshallshelly/pebble-tombstone/pkg/cascade"
)

// Environment variables read by Load.
const (
	EnvConfigFile   = "TOMBSTONE_CONFIG"
	EnvDatabaseURL  = "TOMBSTONE_DATABASE_URL"
	EnvDeleteQueue  = "TOMBSTONE_DELETE_QUEUE"
	EnvRestoreQueue = "TOMBSTONE_RESTORE_QUEUE"
	EnvActorType    = "TOMBSTONE_ACTOR_TYPE"
	EnvBatchSize    = "TOMBSTONE_BATCH_SIZE"
	EnvLogLevel     = "TOMBSTONE_LOG_LEVEL"
)

type Config struct {
	DatabaseURL string         `yaml:"database_url"`
	LogLevel    string         `yaml:"log_level"`
	Cascade     cascade.Config `yaml:"cascade"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Cascade:  cascade.DefaultConfig(),
	}
}

// Load builds the configuration. Later sources win: defaults, then the YAML
// file at path (or $TOMBSTONE_CONFIG), then environment variables. A .env
// file in the working directory is loaded into the environment first and
// never overrides variables that are already set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = getEnv(EnvConfigFile, "")
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}

	cfg.DatabaseURL = getEnv(EnvDatabaseURL, cfg.DatabaseURL)
	cfg.LogLevel = getEnv(EnvLogLevel, cfg.LogLevel)
	cfg.Cascade.DeleteQueue = getEnv(EnvDeleteQueue, cfg.Cascade.DeleteQueue)
	cfg.Cascade.RestoreQueue = getEnv(EnvRestoreQueue, cfg.Cascade.RestoreQueue)
	cfg.Cascade.ActorType = getEnv(EnvActorType, cfg.Cascade.ActorType)

	batchSize, err := getInt(EnvBatchSize, cfg.Cascade.BatchSize)
	if err != nil {
		return nil, err
	}
	cfg.Cascade.BatchSize = batchSize

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if _, err := c.Level(); err != nil {
		return err
	}
	return c.Cascade.Validate()
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%s: %w", EnvLogLevel, err)
	}
	return level, nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}

	return v, nil
}
