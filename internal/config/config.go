// Package config defines runtime settings for the relaycore service:
// defaults, environment overrides, and validation with repair.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// RateLimit defines the parameters for per-connection event rate limiting.
type RateLimit struct {
	Burst          int           `env:"RELAYCORE_RATE_LIMIT_BURST"`
	RefillInterval time.Duration `env:"RELAYCORE_RATE_LIMIT_REFILL_INTERVAL"`
}

// Terminal holds defaults and limits for terminal sessions.
type Terminal struct {
	Shell         string        `env:"RELAYCORE_TERMINAL_SHELL"`
	HomeDir       string        `env:"RELAYCORE_TERMINAL_HOME"`
	User          string        `env:"RELAYCORE_TERMINAL_USER"`
	Cols          int           `env:"RELAYCORE_TERMINAL_COLS"`
	Rows          int           `env:"RELAYCORE_TERMINAL_ROWS"`
	IdleTimeout   time.Duration `env:"RELAYCORE_TERMINAL_IDLE_TIMEOUT"`
	SweepInterval time.Duration `env:"RELAYCORE_TERMINAL_SWEEP_INTERVAL"`
	DisablePTY    bool          `env:"RELAYCORE_TERMINAL_DISABLE_PTY"`
}

// Config holds the full server configuration including security controls.
type Config struct {
	Port           string     `env:"RELAYCORE_PORT"`
	AllowedOrigins []string   `env:"RELAYCORE_ALLOWED_ORIGINS"`
	AuthSecret     string     `env:"RELAYCORE_AUTH_SECRET"`
	MaxMessageSize int64      `env:"RELAYCORE_MAX_MESSAGE_SIZE"`
	SendBuffer     int        `env:"RELAYCORE_SEND_BUFFER"`
	LogLevel       slog.Level `env:"RELAYCORE_LOG_LEVEL"`
	RateLimit      RateLimit
	Terminal       Terminal
}

// New returns a Config populated with defaults for every setting.
func New() *Config {
	return &Config{
		Port:           ":8080",
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: 4096,
		SendBuffer:     256,
		LogLevel:       slog.LevelInfo,
		RateLimit: RateLimit{
			Burst:          100,
			RefillInterval: time.Second,
		},
		Terminal: Terminal{
			Shell:         "/bin/bash",
			HomeDir:       "/home/user",
			User:          "user",
			Cols:          80,
			Rows:          24,
			IdleTimeout:   30 * time.Minute,
			SweepInterval: time.Minute,
		},
	}
}

// FromEnv returns the default configuration overlaid with RELAYCORE_*
// environment variables and sanitized. Unparseable variables are an error;
// out-of-range values are repaired and logged instead.
func FromEnv(logger *slog.Logger) (*Config, error) {
	cfg := New()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	cfg.Sanitize(logger)
	return cfg, nil
}

// Sanitize repairs out-of-range values in place, logging each correction.
func (c *Config) Sanitize(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := New()

	if c.Port == "" {
		logger.Warn("empty port, using default", "port", defaults.Port)
		c.Port = defaults.Port
	}
	if c.MaxMessageSize <= 0 {
		logger.Warn("invalid max message size, using default", "default", defaults.MaxMessageSize)
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		logger.Warn("invalid send buffer size, using default", "default", defaults.SendBuffer)
		c.SendBuffer = defaults.SendBuffer
	}
	if c.RateLimit.Burst <= 0 {
		logger.Warn("invalid rate limit burst, using default", "default", defaults.RateLimit.Burst)
		c.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		logger.Warn("invalid rate limit refill interval, using default", "default", defaults.RateLimit.RefillInterval)
		c.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	if c.Terminal.Cols <= 0 {
		c.Terminal.Cols = defaults.Terminal.Cols
	}
	if c.Terminal.Rows <= 0 {
		c.Terminal.Rows = defaults.Terminal.Rows
	}
	if c.Terminal.Shell == "" {
		c.Terminal.Shell = defaults.Terminal.Shell
	}
	if c.Terminal.HomeDir == "" {
		c.Terminal.HomeDir = defaults.Terminal.HomeDir
	}
	if c.Terminal.User == "" {
		c.Terminal.User = defaults.Terminal.User
	}
	if c.Terminal.IdleTimeout <= 0 {
		logger.Warn("invalid terminal idle timeout, using default", "default", defaults.Terminal.IdleTimeout)
		c.Terminal.IdleTimeout = defaults.Terminal.IdleTimeout
	}
	if c.Terminal.SweepInterval <= 0 {
		logger.Warn("invalid terminal sweep interval, using default", "default", defaults.Terminal.SweepInterval)
		c.Terminal.SweepInterval = defaults.Terminal.SweepInterval
	}
	if c.AuthSecret == "" {
		logger.Warn("auth secret not configured, all connections will be anonymous")
	}
}
