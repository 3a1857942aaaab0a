// Package config loads qlog settings from defaults, an optional config file
// and QLOG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "QLOG"
	configName     = "config"
	defaultRemote  = "http://localhost:8080"
	defaultBucket  = "qlog"
	defaultPrefix  = "reports_"
	defaultAIModel = "claude-sonnet-4-5"
)

// Remote describes the shared key-value bucket.
type Remote struct {
	URL       string
	Bucket    string
	KeyPrefix string
	Timeout   time.Duration
}

// Sync holds orchestrator timing.
type Sync struct {
	Auto        bool
	Debounce    time.Duration
	Interval    time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// AI holds classifier settings.
type AI struct {
	Enabled bool
	APIKey  string
	Model   string
	// Language of the generated summary and findings.
	Language string
}

// Webhook holds status webhook settings.
type Webhook struct {
	URL    string
	Secret string
}

// Log holds daemon logging settings.
type Log struct {
	File   string
	Level  string
	Format string
}

// Config is the resolved configuration, passed explicitly to constructors.
type Config struct {
	Remote  Remote
	Sync    Sync
	AI      AI
	Webhook Webhook
	Log     Log

	// File is the config file that was read, empty when none was found.
	File string
}

var defaults = map[string]any{
	"remote.url":        defaultRemote,
	"remote.bucket":     defaultBucket,
	"remote.key_prefix": defaultPrefix,
	"remote.timeout":    "10s",
	"sync.auto":         true,
	"sync.debounce":     "500ms",
	"sync.interval":     "0s",
	"sync.max_attempts": 3,
	"sync.backoff_base": "500ms",
	"sync.backoff_max":  "5s",
	"ai.enabled":        true,
	"ai.api_key":        "",
	"ai.model":          defaultAIModel,
	"ai.language":       "Hebrew",
	"webhook.url":       "",
	"webhook.secret":    "",
	"log.file":          "",
	"log.level":         "info",
	"log.format":        "text",
}

// Keys returns every recognized configuration key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsKey reports whether key is a recognized configuration key.
func IsKey(key string) bool {
	_, ok := defaults[key]
	return ok
}

// Dir returns ~/.config/qlog, creating it if necessary.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	dir := filepath.Join(home, ".config", "qlog")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	return dir, nil
}

// NewViper returns a viper instance with defaults and environment binding applied.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds command-line flags that override config keys.
// Flags are looked up by name; missing flags are skipped.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"remote":   "remote.url",
		"bucket":   "remote.bucket",
		"debounce": "sync.debounce",
		"interval": "sync.interval",
	}
	for name, key := range bindings {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Read loads the config file into v. An explicit path must exist; otherwise
// ~/.config/qlog/config.{json,yaml,toml} is used when present.
func Read(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := Dir()
		if err != nil {
			return err
		}
		v.SetConfigName(configName)
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load reads configuration from path (or the default location) and resolves it.
func Load(path string) (*Config, error) {
	v := NewViper()
	if err := Read(v, path); err != nil {
		return nil, err
	}
	return FromViper(v)
}

// FromViper resolves a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Remote: Remote{
			URL:       strings.TrimRight(v.GetString("remote.url"), "/"),
			Bucket:    v.GetString("remote.bucket"),
			KeyPrefix: v.GetString("remote.key_prefix"),
			Timeout:   v.GetDuration("remote.timeout"),
		},
		Sync: Sync{
			Auto:        v.GetBool("sync.auto"),
			Debounce:    v.GetDuration("sync.debounce"),
			Interval:    v.GetDuration("sync.interval"),
			MaxAttempts: v.GetInt("sync.max_attempts"),
			BackoffBase: v.GetDuration("sync.backoff_base"),
			BackoffMax:  v.GetDuration("sync.backoff_max"),
		},
		AI: AI{
			Enabled:  v.GetBool("ai.enabled"),
			APIKey:   v.GetString("ai.api_key"),
			Model:    v.GetString("ai.model"),
			Language: v.GetString("ai.language"),
		},
		Webhook: Webhook{
			URL:    v.GetString("webhook.url"),
			Secret: v.GetString("webhook.secret"),
		},
		Log: Log{
			File:   v.GetString("log.file"),
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		File: v.ConfigFileUsed(),
	}
	// ANTHROPIC_API_KEY is honored the way the SDK does when no key is configured
	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Remote.Bucket == "" {
		return fmt.Errorf("remote.bucket must not be empty")
	}
	if c.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive, got %v", c.Remote.Timeout)
	}
	if c.Sync.Debounce < 0 {
		return fmt.Errorf("sync.debounce must not be negative, got %v", c.Sync.Debounce)
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("sync.interval must not be negative, got %v", c.Sync.Interval)
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1, got %d", c.Sync.MaxAttempts)
	}
	if c.Sync.BackoffMax < c.Sync.BackoffBase {
		return fmt.Errorf("sync.backoff_max (%v) is below sync.backoff_base (%v)", c.Sync.BackoffMax, c.Sync.BackoffBase)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Set writes a single key to the config file at path (or the default file),
// preserving other keys already stored there.
func Set(path, key, value string) (string, error) {
	if !IsKey(key) {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	if path == "" {
		dir, err := Dir()
		if err != nil {
			return "", err
		}
		path = existingConfigFile(dir)
		if path == "" {
			path = filepath.Join(dir, configName+".yaml")
		}
	}

	// Only the file layer is rewritten; defaults and env stay out of it.
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("read config: %w", err)
	}
	v.Set(key, value)

	check := NewViper()
	if err := check.MergeConfigMap(v.AllSettings()); err != nil {
		return "", fmt.Errorf("merge config: %w", err)
	}
	if _, err := FromViper(check); err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create config dir: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("write config: %w", err)
	}
	return path, nil
}

func existingConfigFile(dir string) string {
	for _, ext := range []string{"yaml", "yml", "json", "toml"} {
		p := filepath.Join(dir, configName+"."+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
