package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// TestNewDefaults verifies the out-of-the-box configuration.
func TestNewDefaults(t *testing.T) {
	cfg := New()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 256, cfg.SendBuffer)
	assert.Equal(t, 100, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, "/bin/bash", cfg.Terminal.Shell)
	assert.Equal(t, "/home/user", cfg.Terminal.HomeDir)
	assert.Equal(t, 30*time.Minute, cfg.Terminal.IdleTimeout)
	assert.Equal(t, time.Minute, cfg.Terminal.SweepInterval)
	assert.False(t, cfg.Terminal.DisablePTY)
	assert.Empty(t, cfg.AuthSecret)
}

// TestFromEnvOverrides verifies that environment variables overlay the
// defaults, including durations, slices, and booleans.
func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("RELAYCORE_PORT", ":9090")
	t.Setenv("RELAYCORE_ALLOWED_ORIGINS", "https://app.example.com,https://ops.example.com")
	t.Setenv("RELAYCORE_AUTH_SECRET", "sekrit")
	t.Setenv("RELAYCORE_MAX_MESSAGE_SIZE", "8192")
	t.Setenv("RELAYCORE_RATE_LIMIT_BURST", "50")
	t.Setenv("RELAYCORE_RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RELAYCORE_TERMINAL_IDLE_TIMEOUT", "10m")
	t.Setenv("RELAYCORE_TERMINAL_DISABLE_PTY", "true")

	cfg, err := FromEnv(discardLogger())
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"https://app.example.com", "https://ops.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, "sekrit", cfg.AuthSecret)
	assert.Equal(t, int64(8192), cfg.MaxMessageSize)
	assert.Equal(t, 50, cfg.RateLimit.Burst)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 10*time.Minute, cfg.Terminal.IdleTimeout)
	assert.True(t, cfg.Terminal.DisablePTY)
}

// TestFromEnvRejectsUnparseableValues verifies that a malformed variable
// fails loading rather than being silently dropped.
func TestFromEnvRejectsUnparseableValues(t *testing.T) {
	t.Setenv("RELAYCORE_RATE_LIMIT_REFILL_INTERVAL", "soon")

	_, err := FromEnv(discardLogger())
	assert.Error(t, err)
}

// TestSanitizeRepairsInvalidValues verifies that out-of-range settings fall
// back to defaults instead of breaking the server.
func TestSanitizeRepairsInvalidValues(t *testing.T) {
	cfg := &Config{
		Port:           "",
		MaxMessageSize: -1,
		SendBuffer:     0,
		RateLimit:      RateLimit{Burst: 0, RefillInterval: -time.Second},
		Terminal:       Terminal{Cols: -5, Rows: 0, IdleTimeout: 0, SweepInterval: 0},
	}

	cfg.Sanitize(discardLogger())

	defaults := New()
	assert.Equal(t, defaults.Port, cfg.Port)
	assert.Equal(t, defaults.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, defaults.SendBuffer, cfg.SendBuffer)
	assert.Equal(t, defaults.RateLimit, cfg.RateLimit)
	assert.Equal(t, defaults.Terminal.Cols, cfg.Terminal.Cols)
	assert.Equal(t, defaults.Terminal.Rows, cfg.Terminal.Rows)
	assert.Equal(t, defaults.Terminal.Shell, cfg.Terminal.Shell)
	assert.Equal(t, defaults.Terminal.IdleTimeout, cfg.Terminal.IdleTimeout)
	assert.Equal(t, defaults.Terminal.SweepInterval, cfg.Terminal.SweepInterval)
}
