package api

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/bermanqa/qlog/internal/serverdb"
)

// Config holds the KV server configuration.
type Config struct {
	ListenAddr      string
	Driver          string // sqlite (default), sqlite3 or postgres
	DSN             string // file path for SQLite, connection URL for PostgreSQL
	ShutdownTimeout time.Duration
	LogFormat       string // "json" (default) or "text"
	LogLevel        string // "debug", "info" (default), "warn", "error"
	MaxBodyBytes    int64

	RateLimitWrite int // POSTs per client IP per minute (default: 120)

	CORSAllowedOrigins []string // empty = disabled
}

// fileConfig mirrors Config in the TOML file. Durations are strings ("30s").
type fileConfig struct {
	ListenAddr      string   `toml:"listen_addr"`
	Driver          string   `toml:"driver"`
	DSN             string   `toml:"dsn"`
	ShutdownTimeout string   `toml:"shutdown_timeout"`
	LogFormat       string   `toml:"log_format"`
	LogLevel        string   `toml:"log_level"`
	MaxBodyBytes    int64    `toml:"max_body_bytes"`
	RateLimitWrite  int      `toml:"rate_limit_write"`
	CORSOrigins     []string `toml:"cors_allowed_origins"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8080",
		Driver:          serverdb.DriverSQLite,
		DSN:             "./data/kv.db",
		ShutdownTimeout: 30 * time.Second,
		LogFormat:       "json",
		LogLevel:        "info",
		MaxBodyBytes:    10 << 20,
		RateLimitWrite:  120,
	}
}

// LoadConfig resolves defaults, then the TOML file at path (if non-empty, or
// QLOG_KV_CONFIG), then QLOG_KV_* environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = os.Getenv("QLOG_KV_CONFIG")
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()

	switch cfg.Driver {
	case serverdb.DriverSQLite, serverdb.DriverSQLite3, serverdb.DriverPostgres:
	default:
		return cfg, fmt.Errorf("unsupported driver %q", cfg.Driver)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	setString(&c.ListenAddr, fc.ListenAddr)
	setString(&c.Driver, fc.Driver)
	setString(&c.DSN, fc.DSN)
	setString(&c.LogFormat, fc.LogFormat)
	setString(&c.LogLevel, fc.LogLevel)
	if fc.ShutdownTimeout != "" {
		d, err := time.ParseDuration(fc.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("shutdown_timeout: %w", err)
		}
		c.ShutdownTimeout = d
	}
	if fc.MaxBodyBytes > 0 {
		c.MaxBodyBytes = fc.MaxBodyBytes
	}
	if fc.RateLimitWrite > 0 {
		c.RateLimitWrite = fc.RateLimitWrite
	}
	if len(fc.CORSOrigins) > 0 {
		c.CORSAllowedOrigins = fc.CORSOrigins
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.ListenAddr, os.Getenv("QLOG_KV_LISTEN_ADDR"))
	setString(&c.Driver, os.Getenv("QLOG_KV_DRIVER"))
	setString(&c.DSN, os.Getenv("QLOG_KV_DSN"))
	setString(&c.LogFormat, os.Getenv("QLOG_KV_LOG_FORMAT"))
	setString(&c.LogLevel, os.Getenv("QLOG_KV_LOG_LEVEL"))

	if v := os.Getenv("QLOG_KV_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("QLOG_KV_MAX_BODY_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.MaxBodyBytes = n
		}
	}
	if v := os.Getenv("QLOG_KV_RATE_LIMIT_WRITE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RateLimitWrite = n
		}
	}
	if v := os.Getenv("QLOG_KV_CORS_ALLOWED_ORIGINS"); v != "" {
		c.CORSAllowedOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.CORSAllowedOrigins = append(c.CORSAllowedOrigins, o)
			}
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
