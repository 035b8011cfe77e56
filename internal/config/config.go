// Package config reads ledger node settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"crowdsale-ledger/internal/address"
	"crowdsale-ledger/internal/domain"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Defaults.
const (
	DefaultListenAddr       = ":8899"
	DefaultMetricsAddr      = ":9090"
	DefaultLogLevel         = "info"
	DefaultRedisMaxAttempts = 16
)

// Config is the node configuration.
type Config struct {
	ListenAddr       string
	MetricsAddr      string
	StoreBackend     string
	PostgresDSN      string
	RedisURL         string
	ClickHouseDSN    string // optional journal; postgres journal is used when empty and the backend is postgres
	NATSURL          string // optional event publisher
	ProgramID        domain.Pubkey
	DevFaucet        bool
	LogLevel         string
	RedisMaxAttempts int
}

// FromEnv reads Config from environment variables, applying defaults.
func FromEnv() (*Config, error) {
	c := &Config{
		ListenAddr:       getenv("LISTEN_ADDR", DefaultListenAddr),
		MetricsAddr:      getenv("METRICS_ADDR", DefaultMetricsAddr),
		StoreBackend:     strings.ToLower(getenv("STORE_BACKEND", BackendMemory)),
		PostgresDSN:      os.Getenv("POSTGRES_DSN"),
		RedisURL:         os.Getenv("REDIS_URL"),
		ClickHouseDSN:    os.Getenv("CLICKHOUSE_DSN"),
		NATSURL:          os.Getenv("NATS_URL"),
		ProgramID:        address.DefaultProgramID,
		LogLevel:         strings.ToLower(getenv("LOG_LEVEL", DefaultLogLevel)),
		RedisMaxAttempts: DefaultRedisMaxAttempts,
	}

	if v := os.Getenv("PROGRAM_ID"); v != "" {
		pk, err := domain.ParsePubkey(v)
		if err != nil {
			return nil, fmt.Errorf("PROGRAM_ID: %w", err)
		}
		c.ProgramID = pk
	}
	if v := os.Getenv("DEV_FAUCET"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("DEV_FAUCET: %w", err)
		}
		c.DevFaucet = b
	}
	if v := os.Getenv("REDIS_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("REDIS_MAX_ATTEMPTS: %w", err)
		}
		c.RedisMaxAttempts = n
	}
	return c, nil
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres backend requires POSTGRES_DSN"))
		}
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("redis backend requires REDIS_URL"))
		}
		if c.RedisMaxAttempts < 1 {
			errs = append(errs, fmt.Errorf("REDIS_MAX_ATTEMPTS must be positive, got %d", c.RedisMaxAttempts))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q (want memory, postgres or redis)", c.StoreBackend))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("LISTEN_ADDR must not be empty"))
	}
	if c.ProgramID.IsZero() {
		errs = append(errs, errors.New("PROGRAM_ID must not be zero"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel))
	}
	return errors.Join(errs...)
}

// JournalBackend names the journal the node writes: clickhouse when a DSN is
// set, otherwise postgres for the postgres backend, otherwise memory.
func (c *Config) JournalBackend() string {
	switch {
	case c.ClickHouseDSN != "":
		return "clickhouse"
	case c.StoreBackend == BackendPostgres:
		return BackendPostgres
	default:
		return BackendMemory
	}
}

// LoadEnvFile loads KEY=VALUE lines from path into the environment without
// overriding variables that already have a value. A missing file is not an error.
func LoadEnvFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}
		}
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
