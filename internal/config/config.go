// Package config provides configuration types and utilities for possync.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Duration is a wrapper around time.Duration that can be marshaled to/from JSON
type Duration time.Duration

// MarshalJSON implements json.Marshaler interface
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler interface
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration format: %w", err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Config represents the main configuration structure
type Config struct {
	DataDir string `json:"data_dir" mapstructure:"data-dir"`

	// CandidateURLs is the ordered list of backend base addresses. The first
	// entry is the preferred (cloud) endpoint, the rest are local-development
	// fallbacks probed in order when the preferred one is unreachable.
	CandidateURLs []string `json:"candidate_urls" mapstructure:"candidate-urls"`

	// ProbeTimeout bounds a single reachability probe.
	ProbeTimeout Duration `json:"probe_timeout,omitempty" mapstructure:"probe-timeout"`

	// RequestTimeout bounds a single gateway request end to end.
	RequestTimeout Duration `json:"request_timeout,omitempty" mapstructure:"request-timeout"`

	// MaxRetries is the number of retries (attempts - 1) for database-critical
	// field updates.
	MaxRetries int `json:"max_retries,omitempty" mapstructure:"max-retries"`

	// BaseRetryDelay is the first inter-attempt delay; subsequent delays
	// double per attempt.
	BaseRetryDelay Duration `json:"base_retry_delay,omitempty" mapstructure:"base-retry-delay"`

	// FallbackLogin holds the degraded-mode credentials used when a request
	// hits 401 with no token cached at all. Empty username disables the path.
	FallbackLogin *FallbackLoginConfig `json:"fallback_login,omitempty" mapstructure:"fallback-login"`

	// Logging configuration
	Logging *LogConfig `json:"logging,omitempty" mapstructure:"logging"`
}

// FallbackLoginConfig is the credential pair for degraded-mode auto-login.
type FallbackLoginConfig struct {
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
}

// Enabled reports whether degraded-mode auto-login is configured.
func (f *FallbackLoginConfig) Enabled() bool {
	return f != nil && f.Username != ""
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level         string `json:"level" mapstructure:"level"`
	EnableFile    bool   `json:"enable_file" mapstructure:"enable-file"`
	EnableConsole bool   `json:"enable_console" mapstructure:"enable-console"`
	Filename      string `json:"filename,omitempty" mapstructure:"filename"`
	MaxSize       int    `json:"max_size" mapstructure:"max-size"` // megabytes
	MaxBackups    int    `json:"max_backups" mapstructure:"max-backups"`
	MaxAge        int    `json:"max_age" mapstructure:"max-age"` // days
	Compress      bool   `json:"compress" mapstructure:"compress"`
}

// DefaultConfig returns a configuration with usable defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		CandidateURLs: []string{
			"http://localhost:3001",
			"http://10.0.2.2:3001",
		},
		ProbeTimeout:   Duration(DefaultProbeTimeout),
		RequestTimeout: Duration(DefaultRequestTimeout),
		MaxRetries:     DefaultMaxRetries,
		BaseRetryDelay: Duration(InitialBackoffDelay),
		Logging: &LogConfig{
			Level:         "info",
			EnableFile:    true,
			EnableConsole: true,
			Filename:      "main.log",
			MaxSize:       10,
			MaxBackups:    5,
			MaxAge:        30,
			Compress:      true,
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".possync"
	}
	return filepath.Join(home, ".possync")
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if len(c.CandidateURLs) == 0 {
		return fmt.Errorf("at least one candidate URL is required")
	}
	for _, u := range c.CandidateURLs {
		if u == "" {
			return fmt.Errorf("candidate URL must not be empty")
		}
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative")
	}
	if c.ProbeTimeout.Duration() < 0 || c.RequestTimeout.Duration() < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// applyDefaults fills zero-valued fields after loading from file.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = Duration(DefaultProbeTimeout)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.BaseRetryDelay == 0 {
		c.BaseRetryDelay = Duration(InitialBackoffDelay)
	}
	if c.Logging == nil {
		c.Logging = DefaultConfig().Logging
	}
}

// LoadFromFile loads configuration from a JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// SaveConfig writes configuration to a JSON file.
func SaveConfig(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default location of the config file.
func DefaultConfigPath() string {
	return filepath.Join(defaultDataDir(), "possync.json")
}
