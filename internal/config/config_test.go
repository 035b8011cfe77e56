package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crowdsale-ledger/internal/address"
	"crowdsale-ledger/internal/domain"
)

var envKeys = []string{
	"LISTEN_ADDR", "METRICS_ADDR", "STORE_BACKEND", "POSTGRES_DSN", "REDIS_URL",
	"CLICKHOUSE_DSN", "NATS_URL", "PROGRAM_ID", "DEV_FAUCET", "LOG_LEVEL", "REDIS_MAX_ATTEMPTS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, DefaultListenAddr, c.ListenAddr)
	assert.Equal(t, DefaultMetricsAddr, c.MetricsAddr)
	assert.Equal(t, BackendMemory, c.StoreBackend)
	assert.Equal(t, address.DefaultProgramID, c.ProgramID)
	assert.False(t, c.DevFaucet)
	assert.Equal(t, DefaultRedisMaxAttempts, c.RedisMaxAttempts)
	assert.Equal(t, BackendMemory, c.JournalBackend())
	assert.NoError(t, c.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	program := domain.Pubkey{1, 2, 3}
	t.Setenv("LISTEN_ADDR", "127.0.0.1:1")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PROGRAM_ID", program.String())
	t.Setenv("DEV_FAUCET", "true")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("REDIS_MAX_ATTEMPTS", "4")
	t.Setenv("CLICKHOUSE_DSN", "clickhouse://localhost:9000/default")

	c, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:1", c.ListenAddr)
	assert.Equal(t, BackendRedis, c.StoreBackend)
	assert.Equal(t, program, c.ProgramID)
	assert.True(t, c.DevFaucet)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 4, c.RedisMaxAttempts)
	assert.Equal(t, "clickhouse", c.JournalBackend())
	assert.NoError(t, c.Validate())
}

func TestFromEnv_Malformed(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PROGRAM_ID", "not-base58!"},
		{"DEV_FAUCET", "maybe"},
		{"REDIS_MAX_ATTEMPTS", "many"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			assert.ErrorContains(t, err, tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ListenAddr:       DefaultListenAddr,
			StoreBackend:     BackendMemory,
			ProgramID:        address.DefaultProgramID,
			LogLevel:         "info",
			RedisMaxAttempts: DefaultRedisMaxAttempts,
		}
	}
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"memory", func(*Config) {}, ""},
		{"postgres without dsn", func(c *Config) { c.StoreBackend = BackendPostgres }, "POSTGRES_DSN"},
		{"postgres", func(c *Config) { c.StoreBackend = BackendPostgres; c.PostgresDSN = "postgres://x" }, ""},
		{"redis without url", func(c *Config) { c.StoreBackend = BackendRedis }, "REDIS_URL"},
		{"redis zero attempts", func(c *Config) {
			c.StoreBackend = BackendRedis
			c.RedisURL = "redis://x"
			c.RedisMaxAttempts = 0
		}, "REDIS_MAX_ATTEMPTS"},
		{"unknown backend", func(c *Config) { c.StoreBackend = "sqlite" }, "STORE_BACKEND"},
		{"zero program", func(c *Config) { c.ProgramID = domain.Pubkey{} }, "PROGRAM_ID"},
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestJournalBackend_Postgres(t *testing.T) {
	c := &Config{StoreBackend: BackendPostgres}
	assert.Equal(t, BackendPostgres, c.JournalBackend())
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":7000")

	path := filepath.Join(t.TempDir(), ".env")
	content := "# node\nLISTEN_ADDR=:1\nexport NATS_URL=\"nats://localhost:4222\"\nbroken line\nDEV_FAUCET = true\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, ":7000", os.Getenv("LISTEN_ADDR"), "existing variables are kept")
	assert.Equal(t, "nats://localhost:4222", os.Getenv("NATS_URL"))
	assert.Equal(t, "true", os.Getenv("DEV_FAUCET"))

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}
