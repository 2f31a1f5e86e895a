// Package config holds the host configuration of the extension runtime.
//
// Configuration is layered: built-in defaults, then an optional TOML file,
// then KAIRO_* environment variables. Later layers win.
//
//	[extensions]
//	dir = ".kairo/extensions"
//	max_source_bytes = 512000
//	initialize_timeout = "10s"
//	call_timeout = "5s"
//
//	[log]
//	level = "info"
//	max_entries = 500
//	console = false
//
//	[policy]
//	allow_dynamic_code = true
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/kairo/internal/extension/security"
)

// Default values.
const (
	DefaultExtensionsDir     = ".kairo/extensions"
	DefaultInitializeTimeout = "10s"
	DefaultCallTimeout       = "5s"
	DefaultLogLevel          = "info"
	DefaultMaxEntries        = 500
)

// Config is the full host configuration.
type Config struct {
	Extensions ExtensionsConfig `toml:"extensions"`
	Log        LogConfig        `toml:"log"`
	Policy     PolicyConfig     `toml:"policy"`
}

// ExtensionsConfig controls where extensions live and how much they may use.
type ExtensionsConfig struct {
	// Dir is the extensions directory, relative to the vault unless absolute.
	Dir string `toml:"dir" env:"KAIRO_EXTENSIONS_DIR"`

	MaxSourceBytes int `toml:"max_source_bytes" env:"KAIRO_MAX_SOURCE_BYTES"`

	// Durations use time.ParseDuration syntax.
	InitializeTimeout string `toml:"initialize_timeout" env:"KAIRO_INITIALIZE_TIMEOUT"`
	CallTimeout       string `toml:"call_timeout" env:"KAIRO_CALL_TIMEOUT"`
}

// LogConfig controls the log store and the diagnostic channel.
type LogConfig struct {
	Level      string `toml:"level" env:"KAIRO_LOG_LEVEL"`
	MaxEntries int    `toml:"max_entries" env:"KAIRO_MAX_LOGS"`
	Console    bool   `toml:"console" env:"KAIRO_CONSOLE"`
}

// PolicyConfig is the host security policy.
type PolicyConfig struct {
	AllowDynamicCode bool `toml:"allow_dynamic_code" env:"KAIRO_ALLOW_DYNAMIC_CODE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Extensions: ExtensionsConfig{
			Dir:               DefaultExtensionsDir,
			MaxSourceBytes:    security.DefaultMaxSourceBytes,
			InitializeTimeout: DefaultInitializeTimeout,
			CallTimeout:       DefaultCallTimeout,
		},
		Log: LogConfig{
			Level:      DefaultLogLevel,
			MaxEntries: DefaultMaxEntries,
		},
		Policy: PolicyConfig{
			AllowDynamicCode: true,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Extensions.Dir) == "" {
		return &ValidationError{Path: "extensions.dir", Message: "must not be empty", Value: c.Extensions.Dir}
	}
	if c.Extensions.MaxSourceBytes <= 0 {
		return &ValidationError{Path: "extensions.max_source_bytes", Message: "must be positive", Value: c.Extensions.MaxSourceBytes}
	}
	if _, err := positiveDuration("extensions.initialize_timeout", c.Extensions.InitializeTimeout); err != nil {
		return err
	}
	if _, err := positiveDuration("extensions.call_timeout", c.Extensions.CallTimeout); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil || c.Log.Level == "" {
		return &ValidationError{Path: "log.level", Message: "unknown level", Value: c.Log.Level}
	}
	if c.Log.MaxEntries <= 0 {
		return &ValidationError{Path: "log.max_entries", Message: "must be positive", Value: c.Log.MaxEntries}
	}
	return nil
}

// Limits converts the extension settings into sandbox limits. Invalid
// durations fall back to the defaults; call Validate first to reject them.
func (c *Config) Limits() security.Limits {
	limits := security.DefaultLimits()
	limits.MaxSourceBytes = c.Extensions.MaxSourceBytes
	if d, err := time.ParseDuration(c.Extensions.InitializeTimeout); err == nil {
		limits.InitializeTimeout = d
	}
	if d, err := time.ParseDuration(c.Extensions.CallTimeout); err == nil {
		limits.CallTimeout = d
	}
	return limits.Normalize()
}

// LogLevel returns the configured diagnostic level.
func (c *Config) LogLevel() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func positiveDuration(path, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, &ValidationError{Path: path, Message: fmt.Sprintf("invalid duration: %v", err), Value: value}
	}
	if d <= 0 {
		return 0, &ValidationError{Path: path, Message: "must be positive", Value: value}
	}
	return d, nil
}
