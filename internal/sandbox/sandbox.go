// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

// Package sandbox provides capability-gated, resource-bounded isolation per
// plugin. Every file, network, and command access a plugin attempts is routed
// through here; the capability check always precedes the access, and checks
// stay active even when OS-level enforcement is disabled.
package sandbox

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/vesselrun/vessel/internal/capability"
	"github.com/vesselrun/vessel/internal/sandbox/isolation"
	"github.com/vesselrun/vessel/internal/xdg"
)

// FilesystemMode selects how far file access may reach.
type FilesystemMode string

// Filesystem access modes.
const (
	// FilesystemIsolated confines access strictly to the plugin's own directory.
	FilesystemIsolated FilesystemMode = "isolated"
	// FilesystemReadOnly additionally forbids write and execute access.
	FilesystemReadOnly FilesystemMode = "read_only"
	// FilesystemReadWrite also allows paths matching the configured allow-list.
	FilesystemReadWrite FilesystemMode = "read_write"
)

// NetworkMode selects how far network access may reach.
type NetworkMode string

// Network access modes.
const (
	// NetworkNone applies no restriction beyond capability checks.
	NetworkNone NetworkMode = "none"
	// NetworkRestricted allows outbound connections only.
	NetworkRestricted NetworkMode = "restricted"
	// NetworkIsolated denies all network access regardless of capability.
	NetworkIsolated NetworkMode = "isolated"
)

// namePattern matches valid plugin names: lowercase start, lowercase letters,
// digits, or hyphens, not ending with a hyphen.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// Config configures the sandbox manager.
type Config struct {
	// Root is the directory all per-plugin sandbox directories live under.
	Root string
	// Enabled controls OS-level isolation. Capability checks apply either way.
	Enabled bool
	// FilesystemMode defaults to FilesystemIsolated.
	FilesystemMode FilesystemMode
	// NetworkMode defaults to NetworkRestricted.
	NetworkMode NetworkMode
	// AllowedPaths are glob patterns reachable under FilesystemReadWrite.
	AllowedPaths []string
}

func (c *Config) applyDefaults() {
	if c.Root == "" {
		c.Root = filepath.Join(xdg.StateDir(), "sandboxes")
	}
	if c.FilesystemMode == "" {
		c.FilesystemMode = FilesystemIsolated
	}
	if c.NetworkMode == "" {
		c.NetworkMode = NetworkRestricted
	}
}

// Validate checks mode names and allow-list syntax.
func (c *Config) Validate() error {
	switch c.FilesystemMode {
	case FilesystemIsolated, FilesystemReadOnly, FilesystemReadWrite:
	default:
		return oops.Code(CodeConfigInvalid).
			With("filesystem_mode", string(c.FilesystemMode)).
			New("invalid filesystem mode")
	}
	switch c.NetworkMode {
	case NetworkNone, NetworkRestricted, NetworkIsolated:
	default:
		return oops.Code(CodeConfigInvalid).
			With("network_mode", string(c.NetworkMode)).
			New("invalid network mode")
	}
	for _, pattern := range c.AllowedPaths {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return oops.Code(CodeConfigInvalid).
				With("pattern", pattern).
				Wrap(err)
		}
	}
	return nil
}

// Sandbox is the isolation boundary around one loaded plugin. Exactly one
// exists per loaded plugin; it is destroyed exactly once, on unload.
type Sandbox struct {
	plugin    string
	caps      capability.Set
	req       capability.ResourceRequirements
	workDir   string
	handles   isolation.Handles
	enforced  bool
	createdAt time.Time
}

// Plugin returns the owning plugin name.
func (s *Sandbox) Plugin() string { return s.plugin }

// WorkDir returns the sandbox's private working directory.
func (s *Sandbox) WorkDir() string { return s.workDir }

// Capabilities returns the declared capability set.
func (s *Sandbox) Capabilities() capability.Set { return s.caps }

// Requirements returns the declared resource limits.
func (s *Sandbox) Requirements() capability.ResourceRequirements { return s.req }

// Enforced reports whether OS-level isolation backs this sandbox.
func (s *Sandbox) Enforced() bool { return s.enforced }

// Manager owns the sandbox table, the violation log, and the isolation
// collaborator. Safe for concurrent use.
type Manager struct {
	cfg        Config
	isolator   isolation.Isolator
	violations *ViolationLog
	allowed    []glob.Glob

	mu        sync.RWMutex
	sandboxes map[string]*Sandbox
}

// NewManager creates a sandbox manager. sink may be nil; when isolation is
// disabled in cfg, the Noop isolator replaces the given one so every sandbox
// is a usable no-op handle.
func NewManager(cfg Config, isolator isolation.Isolator, sink ViolationSink) (*Manager, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled || isolator == nil {
		isolator = isolation.Noop{}
	}

	allowed := make([]glob.Glob, 0, len(cfg.AllowedPaths))
	for _, pattern := range cfg.AllowedPaths {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, oops.Code(CodeConfigInvalid).With("pattern", pattern).Wrap(err)
		}
		allowed = append(allowed, g)
	}

	if err := os.MkdirAll(cfg.Root, 0o700); err != nil {
		return nil, oops.Code(CodeConfigInvalid).
			With("root", cfg.Root).
			Hint("failed to create sandbox root").
			Wrap(err)
	}

	return &Manager{
		cfg:        cfg,
		isolator:   isolator,
		violations: NewViolationLog(sink),
		allowed:    allowed,
		sandboxes:  make(map[string]*Sandbox),
	}, nil
}

// Violations exposes the append-only violation log.
func (m *Manager) Violations() *ViolationLog { return m.violations }

// Create provisions a sandbox for the plugin: validates the name, rejects
// duplicates, creates the private working directory under the root, and
// establishes OS isolation when enabled. When isolation is disabled the
// returned sandbox is a no-op handle with capability checks fully active.
func (m *Manager) Create(ctx context.Context, plugin string, caps capability.Set, req capability.ResourceRequirements) (*Sandbox, error) {
	if !namePattern.MatchString(plugin) {
		return nil, oops.Code(CodeConfigInvalid).
			With("plugin", plugin).
			New("invalid plugin name")
	}

	m.mu.Lock()
	if _, exists := m.sandboxes[plugin]; exists {
		m.mu.Unlock()
		return nil, oops.Code(CodeSandboxExists).
			With("plugin", plugin).
			Errorf("sandbox for plugin %q already exists", plugin)
	}
	// Reserve the slot so concurrent creates for the same name collide here,
	// not on the filesystem.
	m.sandboxes[plugin] = nil
	m.mu.Unlock()

	workDir := filepath.Join(m.cfg.Root, plugin)
	sb, err := m.provision(ctx, plugin, workDir, caps, req)
	if err != nil {
		m.mu.Lock()
		delete(m.sandboxes, plugin)
		m.mu.Unlock()
		return nil, err
	}

	m.mu.Lock()
	m.sandboxes[plugin] = sb
	m.mu.Unlock()

	activeSandboxes.Inc()
	slog.Info("sandbox created",
		"plugin", plugin,
		"work_dir", workDir,
		"enforced", sb.enforced,
		"capabilities", caps.String())
	return sb, nil
}

func (m *Manager) provision(ctx context.Context, plugin, workDir string, caps capability.Set, req capability.ResourceRequirements) (*Sandbox, error) {
	if err := os.MkdirAll(workDir, 0o700); err != nil {
		return nil, oops.Code(CodeIsolationSetup).
			With("plugin", plugin).
			With("work_dir", workDir).
			Hint("failed to create sandbox directory").
			Wrap(err)
	}

	var handles isolation.Handles
	if m.cfg.Enabled {
		var err error
		handles, err = m.isolator.Setup(ctx, plugin, req)
		if err != nil {
			_ = os.RemoveAll(workDir) //nolint:errcheck // setup error takes precedence
			return nil, oops.Code(CodeIsolationSetup).
				With("plugin", plugin).
				Wrap(err)
		}
	}

	return &Sandbox{
		plugin:    plugin,
		caps:      caps,
		req:       req,
		workDir:   workDir,
		handles:   handles,
		enforced:  m.cfg.Enabled,
		createdAt: time.Now().UTC(),
	}, nil
}

// Destroy tears down isolation, deletes the working directory tree, and
// removes the sandbox record. A second Destroy for the same plugin returns
// SANDBOX_NOT_FOUND.
func (m *Manager) Destroy(ctx context.Context, plugin string) error {
	m.mu.Lock()
	sb, ok := m.sandboxes[plugin]
	if ok {
		delete(m.sandboxes, plugin)
	}
	m.mu.Unlock()

	if !ok || sb == nil {
		return oops.Code(CodeSandboxNotFound).
			With("plugin", plugin).
			Errorf("no sandbox for plugin %q", plugin)
	}

	var firstErr error
	if sb.enforced {
		if err := m.isolator.Teardown(ctx, sb.handles); err != nil {
			firstErr = oops.Code(CodeIsolationSetup).
				With("plugin", plugin).
				Hint("isolation teardown failed").
				Wrap(err)
		}
	}
	if err := os.RemoveAll(sb.workDir); err != nil && firstErr == nil {
		firstErr = oops.Code(CodeIsolationSetup).
			With("plugin", plugin).
			With("work_dir", sb.workDir).
			Hint("failed to remove sandbox directory").
			Wrap(err)
	}

	activeSandboxes.Dec()
	slog.Info("sandbox destroyed", "plugin", plugin)
	return firstErr
}

// Get returns the sandbox for a plugin.
func (m *Manager) Get(plugin string) (*Sandbox, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sb, ok := m.sandboxes[plugin]
	return sb, ok && sb != nil
}

// Count returns the number of active sandboxes.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sandboxes)
}

// requireCapability is the gate every sandboxed access passes first. A denial
// is recorded as a capability violation and returned as PERMISSION_DENIED.
func (m *Manager) requireCapability(ctx context.Context, sb *Sandbox, c capability.Capability, detail string) error {
	if sb.caps.Has(c) {
		return nil
	}
	capabilityDenials.WithLabelValues(sb.plugin, c.String()).Inc()
	m.violations.Append(ctx, sb.plugin, ViolationCapability, SeverityMedium, detail)
	return oops.Code(CodePermissionDenied).
		With("plugin", sb.plugin).
		With("capability", c.String()).
		Errorf("plugin %q lacks capability %q", sb.plugin, c.String())
}

// lookup fetches the sandbox or returns SANDBOX_NOT_FOUND.
func (m *Manager) lookup(plugin string) (*Sandbox, error) {
	sb, ok := m.Get(plugin)
	if !ok {
		return nil, oops.Code(CodeSandboxNotFound).
			With("plugin", plugin).
			Errorf("no sandbox for plugin %q", plugin)
	}
	return sb, nil
}
