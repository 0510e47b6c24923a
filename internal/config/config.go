// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

// Package config loads daemon configuration from a YAML file with
// command-line flag overrides, layered over built-in defaults.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/vesselrun/vessel/internal/hook"
	"github.com/vesselrun/vessel/internal/sandbox"
	"github.com/vesselrun/vessel/internal/xdg"
)

// CodeInvalid is the error code for rejected configuration.
const CodeInvalid = "CONFIG_INVALID"

// Config is the full daemon configuration.
type Config struct {
	Plugins PluginsConfig `koanf:"plugins"`
	Sandbox SandboxConfig `koanf:"sandbox"`
	Hooks   HooksConfig   `koanf:"hooks"`
	Backend BackendConfig `koanf:"backend"`
	Audit   AuditConfig   `koanf:"audit"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
}

// PluginsConfig configures plugin discovery and lifecycle.
type PluginsConfig struct {
	// Dir is the directory scanned for plugin subdirectories.
	Dir string `koanf:"dir"`
	// MaxPlugins caps concurrently loaded plugins.
	MaxPlugins int `koanf:"max-plugins"`
	// HotReload enables the reload operation.
	HotReload bool `koanf:"hot-reload"`
	// AutoLoad loads every discovered plugin at daemon start.
	AutoLoad bool `koanf:"auto-load"`
	// RequireSignature rejects manifests without a valid detached signature.
	RequireSignature bool `koanf:"require-signature"`
	// SigningKey is the hex-encoded Ed25519 public key manifests are
	// verified against. Required when RequireSignature is set.
	SigningKey string `koanf:"signing-key"`
}

// SandboxConfig configures the security sandbox.
type SandboxConfig struct {
	Root           string   `koanf:"root"`
	Enabled        bool     `koanf:"enabled"`
	FilesystemMode string   `koanf:"filesystem-mode"`
	NetworkMode    string   `koanf:"network-mode"`
	AllowedPaths   []string `koanf:"allowed-paths"`
	// MonitorInterval is how often resource usage is sampled.
	MonitorInterval time.Duration `koanf:"monitor-interval"`
}

// HooksConfig configures event dispatch.
type HooksConfig struct {
	// TimeoutStrategy is skip, retry, or abort.
	TimeoutStrategy string `koanf:"timeout-strategy"`
	// DefaultTimeout applies to subscriptions without their own timeout.
	DefaultTimeout time.Duration `koanf:"default-timeout"`
}

// BackendConfig configures container routing.
type BackendConfig struct {
	// RulesFile points at a routing rules document. Empty means route
	// everything to the default backend.
	RulesFile string `koanf:"rules-file"`
	// Default is the backend name used when no rule matches.
	Default string `koanf:"default"`
}

// AuditConfig configures the violation store.
type AuditConfig struct {
	// DBPath is the sqlite database file. Empty disables persistence.
	DBPath string `koanf:"db-path"`
}

// MetricsConfig configures the observability HTTP server.
type MetricsConfig struct {
	// Addr is the listen address. Empty disables the server.
	Addr string `koanf:"addr"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Format is json or text.
	Format string `koanf:"format"`
	// Level is debug, info, warn, or error.
	Level string `koanf:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Plugins: PluginsConfig{
			Dir:        xdg.PluginsDir(),
			MaxPlugins: 64,
			AutoLoad:   true,
		},
		Sandbox: SandboxConfig{
			Root:            filepath.Join(xdg.StateDir(), "sandboxes"),
			Enabled:         true,
			FilesystemMode:  string(sandbox.FilesystemIsolated),
			NetworkMode:     string(sandbox.NetworkRestricted),
			MonitorInterval: 10 * time.Second,
		},
		Hooks: HooksConfig{
			TimeoutStrategy: string(hook.TimeoutSkip),
			DefaultTimeout:  5 * time.Second,
		},
		Backend: BackendConfig{
			Default: "noop",
		},
		Audit: AuditConfig{
			DBPath: filepath.Join(xdg.StateDir(), "audit", "violations.db"),
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9100",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
	}
}

// Load layers a YAML file and flag overrides over the defaults. path may
// be empty; flags may be nil. The result is validated.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	cfg := Default()
	errb := oops.Code(CodeInvalid)

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, errb.With("path", path).Wrapf(err, "loading config file")
		}
	}
	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, errb.Wrapf(err, "applying flag overrides")
		}
	}

	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, errb.Wrapf(err, "unmarshaling config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values and cross-field requirements.
func (c *Config) Validate() error {
	errb := oops.Code(CodeInvalid)

	if c.Plugins.Dir == "" {
		return errb.New("plugins.dir is required")
	}
	if c.Plugins.MaxPlugins <= 0 {
		return errb.With("max_plugins", c.Plugins.MaxPlugins).New("plugins.max-plugins must be positive")
	}
	if c.Plugins.RequireSignature && c.Plugins.SigningKey == "" {
		return errb.New("plugins.signing-key is required when plugins.require-signature is set")
	}

	sbCfg := c.SandboxConfig()
	if err := sbCfg.Validate(); err != nil {
		return err
	}
	if c.Sandbox.MonitorInterval <= 0 {
		return errb.With("interval", c.Sandbox.MonitorInterval.String()).
			New("sandbox.monitor-interval must be positive")
	}

	if _, err := hook.ParseTimeoutStrategy(c.Hooks.TimeoutStrategy); err != nil {
		return err
	}
	if c.Hooks.DefaultTimeout <= 0 {
		return errb.New("hooks.default-timeout must be positive")
	}

	if c.Backend.Default == "" {
		return errb.New("backend.default is required")
	}
	if c.Backend.RulesFile != "" {
		if _, err := os.Stat(c.Backend.RulesFile); err != nil {
			return errb.With("path", c.Backend.RulesFile).Wrapf(err, "backend.rules-file is not readable")
		}
	}

	switch c.Log.Format {
	case "json", "text":
	default:
		return errb.With("format", c.Log.Format).New("log.format must be json or text")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return errb.With("level", c.Log.Level).New("log.level must be debug, info, warn, or error")
	}

	return nil
}

// SandboxConfig converts the sandbox section to the sandbox package's
// config type.
func (c *Config) SandboxConfig() sandbox.Config {
	return sandbox.Config{
		Root:           c.Sandbox.Root,
		Enabled:        c.Sandbox.Enabled,
		FilesystemMode: sandbox.FilesystemMode(c.Sandbox.FilesystemMode),
		NetworkMode:    sandbox.NetworkMode(c.Sandbox.NetworkMode),
		AllowedPaths:   c.Sandbox.AllowedPaths,
	}
}

// TimeoutStrategy returns the parsed hook timeout strategy. Call only
// after Validate.
func (c *Config) TimeoutStrategy() hook.TimeoutStrategy {
	strategy, err := hook.ParseTimeoutStrategy(c.Hooks.TimeoutStrategy)
	if err != nil {
		return hook.TimeoutSkip
	}
	return strategy
}

// RoutingRules reads the rules file, falling back to a bare default rule.
func (c *Config) RoutingRules() (string, error) {
	if c.Backend.RulesFile == "" {
		return "default " + c.Backend.Default + ";", nil
	}
	data, err := os.ReadFile(c.Backend.RulesFile)
	if err != nil {
		return "", oops.Code(CodeInvalid).With("path", c.Backend.RulesFile).Wrapf(err, "reading rules file")
	}
	return string(data), nil
}
