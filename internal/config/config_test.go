package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kairo.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}

	limits := cfg.Limits()
	if limits.MaxSourceBytes != 512000 {
		t.Errorf("MaxSourceBytes = %d, want 512000", limits.MaxSourceBytes)
	}
	if limits.InitializeTimeout != 10*time.Second {
		t.Errorf("InitializeTimeout = %v, want 10s", limits.InitializeTimeout)
	}
	if limits.CallTimeout != 5*time.Second {
		t.Errorf("CallTimeout = %v, want 5s", limits.CallTimeout)
	}
	if !cfg.Policy.AllowDynamicCode {
		t.Error("dynamic code should be allowed by default")
	}
	if cfg.LogLevel() != zerolog.InfoLevel {
		t.Errorf("LogLevel() = %v, want info", cfg.LogLevel())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Extensions.Dir != DefaultExtensionsDir {
		t.Errorf("Dir = %q, want %q", cfg.Extensions.Dir, DefaultExtensionsDir)
	}
	if cfg.Log.MaxEntries != DefaultMaxEntries {
		t.Errorf("MaxEntries = %d, want %d", cfg.Log.MaxEntries, DefaultMaxEntries)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[extensions]
dir = "plugins"
call_timeout = "250ms"

[log]
level = "debug"
console = true

[policy]
allow_dynamic_code = false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Extensions.Dir != "plugins" {
		t.Errorf("Dir = %q", cfg.Extensions.Dir)
	}
	if got := cfg.Limits().CallTimeout; got != 250*time.Millisecond {
		t.Errorf("CallTimeout = %v, want 250ms", got)
	}
	if cfg.Extensions.InitializeTimeout != DefaultInitializeTimeout {
		t.Errorf("absent keys should keep defaults, got %q", cfg.Extensions.InitializeTimeout)
	}
	if cfg.LogLevel() != zerolog.DebugLevel || !cfg.Log.Console {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.Policy.AllowDynamicCode {
		t.Error("allow_dynamic_code should be false")
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
[extensions]
dir = "plugins"
max_source_bytes = 1000
`)
	t.Setenv("KAIRO_EXTENSIONS_DIR", "/srv/ext")
	t.Setenv("KAIRO_INITIALIZE_TIMEOUT", "2s")
	t.Setenv("KAIRO_MAX_LOGS", "50")
	t.Setenv("KAIRO_ALLOW_DYNAMIC_CODE", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Extensions.Dir != "/srv/ext" {
		t.Errorf("Dir = %q, want env value", cfg.Extensions.Dir)
	}
	if cfg.Extensions.MaxSourceBytes != 1000 {
		t.Errorf("MaxSourceBytes = %d, want file value", cfg.Extensions.MaxSourceBytes)
	}
	if cfg.Limits().InitializeTimeout != 2*time.Second {
		t.Errorf("InitializeTimeout = %v", cfg.Limits().InitializeTimeout)
	}
	if cfg.Log.MaxEntries != 50 {
		t.Errorf("MaxEntries = %d", cfg.Log.MaxEntries)
	}
	if cfg.Policy.AllowDynamicCode {
		t.Error("env should disable dynamic code")
	}
}

func TestLoadBadEnvValue(t *testing.T) {
	t.Setenv("KAIRO_MAX_SOURCE_BYTES", "lots")

	_, err := Load("")
	if !errors.Is(err, ErrEnvironment) {
		t.Fatalf("Load() error = %v, want ErrEnvironment", err)
	}
}

func TestLoadParseError(t *testing.T) {
	path := writeConfig(t, "[extensions]\ndir = \n")

	_, err := Load(path)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Load() error = %v, want *ParseError", err)
	}
	if perr.Path != path {
		t.Errorf("Path = %q, want %q", perr.Path, path)
	}
	if perr.Line == 0 {
		t.Error("parse error should carry a line number")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"empty dir", func(c *Config) { c.Extensions.Dir = " " }, "extensions.dir"},
		{"zero source limit", func(c *Config) { c.Extensions.MaxSourceBytes = 0 }, "extensions.max_source_bytes"},
		{"bad initialize timeout", func(c *Config) { c.Extensions.InitializeTimeout = "soon" }, "extensions.initialize_timeout"},
		{"negative call timeout", func(c *Config) { c.Extensions.CallTimeout = "-1s" }, "extensions.call_timeout"},
		{"unknown level", func(c *Config) { c.Log.Level = "chatty" }, "log.level"},
		{"empty level", func(c *Config) { c.Log.Level = "" }, "log.level"},
		{"zero max entries", func(c *Config) { c.Log.MaxEntries = 0 }, "log.max_entries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			var verr *ValidationError
			if err := cfg.Validate(); !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want *ValidationError", err)
			}
			if verr.Path != tt.path {
				t.Errorf("Path = %q, want %q", verr.Path, tt.path)
			}
		})
	}
}
