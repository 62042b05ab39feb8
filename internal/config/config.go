package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends
const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

// Config holds server settings read from the environment
type Config struct {
	Host string
	Port int

	StorageType string
	RedisURL    string
	DatabaseURL string

	SessionTTL       time.Duration
	OperationTimeout time.Duration
	MaxCommitRetries int

	LogLevel  string
	LogFormat string
}

// Default returns the settings used when nothing is configured
func Default() Config {
	return Config{
		Port:             8080,
		StorageType:      StorageMemory,
		SessionTTL:       24 * time.Hour,
		OperationTimeout: 5 * time.Second,
		MaxCommitRetries: 10,
		LogLevel:         "info",
		LogFormat:        "json",
	}
}

// Load reads .env files if present, then the process environment.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a getenv-style lookup
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	var err error

	cfg.Host = getenv("QWZ_HOST")
	if cfg.Port, err = intVar(getenv, "QWZ_PORT", cfg.Port); err != nil {
		return Config{}, err
	}
	if v := getenv("STORAGE_TYPE"); v != "" {
		cfg.StorageType = strings.ToLower(v)
	}
	cfg.RedisURL = getenv("REDIS_URL")
	cfg.DatabaseURL = getenv("DATABASE_URL")

	if cfg.SessionTTL, err = durationVar(getenv, "SESSION_TTL", cfg.SessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.OperationTimeout, err = durationVar(getenv, "OPERATION_TIMEOUT", cfg.OperationTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MaxCommitRetries, err = intVar(getenv, "MAX_COMMIT_RETRIES", cfg.MaxCommitRetries); err != nil {
		return Config{}, err
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	return cfg, cfg.Validate()
}

// Validate checks that the selected backend has what it needs
func (c Config) Validate() error {
	switch c.StorageType {
	case StorageMemory:
	case StorageRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL required when STORAGE_TYPE=redis")
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL required when STORAGE_TYPE=postgres")
		}
	default:
		return fmt.Errorf("invalid STORAGE_TYPE %q: must be memory, redis or postgres", c.StorageType)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid QWZ_PORT %d", c.Port)
	}
	if c.SessionTTL <= 0 || c.OperationTimeout <= 0 {
		return errors.New("SESSION_TTL and OPERATION_TIMEOUT must be positive")
	}
	if c.MaxCommitRetries < 1 {
		return errors.New("MAX_COMMIT_RETRIES must be at least 1")
	}
	return nil
}

// Addr returns the listen address
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewLogger builds the process logger from LOG_LEVEL and LOG_FORMAT
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.LogLevel)}
	if c.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func intVar(getenv func(string) string, key string, def int) (int, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func durationVar(getenv func(string) string, key string, def time.Duration) (time.Duration, error) {
	v := getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
