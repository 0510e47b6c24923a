// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package plugin

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"

	"github.com/vesselrun/vessel/internal/hook"
	"github.com/vesselrun/vessel/internal/sandbox"
)

// DefaultMaxPlugins caps how many plugins may be loaded at once.
const DefaultMaxPlugins = 64

// ManagerConfig holds plugin manager settings.
type ManagerConfig struct {
	// MaxPlugins caps concurrently loaded plugins. Zero means
	// DefaultMaxPlugins.
	MaxPlugins int

	// HotReload enables Reload. Disabled by default.
	HotReload bool

	// HostVersion is the running host version, checked against each
	// manifest's min-host-version.
	HostVersion *semver.Version
}

// record tracks one known plugin through its lifecycle.
type record struct {
	manifest *Manifest
	dir      string
	state    State
	health   Health
	pctx     *Context
	loadedAt time.Time
}

// Info is a snapshot of a plugin's status.
type Info struct {
	Name             string
	Version          string
	Type             Type
	State            State
	Health           Health
	ProvidesCommands bool
	LoadedAt         time.Time
}

// Manager owns plugin discovery, dependency ordering, and lifecycle.
//
// Plugins live in two tables: pending holds validated-but-not-loaded
// plugins (including ones that were unloaded or failed), loaded holds
// running ones. Unload moves a plugin back to pending so it can be
// loaded again without rediscovery.
type Manager struct {
	cfg      ManagerConfig
	source   ManifestSource
	verifier SignatureVerifier
	hosts    map[Type]Host
	bus      *hook.Bus
	sandbox  *sandbox.Manager

	mu      sync.RWMutex
	pending map[string]*record
	loaded  map[string]*record
}

// NewManager creates a plugin manager. The hosts map binds each plugin
// type to its runtime; plugins of an unbound type fail to load.
func NewManager(cfg ManagerConfig, source ManifestSource, verifier SignatureVerifier, hosts map[Type]Host, bus *hook.Bus, sb *sandbox.Manager) *Manager {
	if cfg.MaxPlugins <= 0 {
		cfg.MaxPlugins = DefaultMaxPlugins
	}
	if cfg.HostVersion == nil {
		cfg.HostVersion = semver.MustParse("0.0.0")
	}
	if verifier == nil {
		verifier = NoopVerifier{}
	}
	return &Manager{
		cfg:      cfg,
		source:   source,
		verifier: verifier,
		hosts:    hosts,
		bus:      bus,
		sandbox:  sb,
		pending:  make(map[string]*record),
		loaded:   make(map[string]*record),
	}
}

// Discover scans the manifest source and validates what it finds.
// Invalid manifests are logged and skipped; duplicates of an already
// known plugin are skipped with a warning. Returns the names of newly
// discovered plugins in sorted order.
func (m *Manager) Discover(_ context.Context) ([]string, error) {
	files, err := m.source.Manifests()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var added []string
	for _, file := range files {
		manifest, err := ParseManifest(file.Data)
		if err != nil {
			slog.Warn("skipping plugin with invalid manifest", "dir", file.Dir, "error", err)
			continue
		}
		if _, ok := m.loaded[manifest.Name]; ok {
			slog.Warn("skipping duplicate of loaded plugin", "plugin", manifest.Name, "dir", file.Dir)
			continue
		}
		if prev, ok := m.pending[manifest.Name]; ok && prev.dir != file.Dir {
			slog.Warn("skipping duplicate plugin name", "plugin", manifest.Name, "dir", file.Dir, "existing", prev.dir)
			continue
		}
		if err := m.verifier.Verify(manifest, file.Dir); err != nil {
			slog.Warn("skipping plugin with bad signature", "plugin", manifest.Name, "error", err)
			continue
		}

		m.pending[manifest.Name] = &record{
			manifest: manifest,
			dir:      file.Dir,
			state:    StateValidated,
			health:   HealthUnknown,
		}
		added = append(added, manifest.Name)
	}

	sort.Strings(added)
	return added, nil
}

// LoadOrder resolves the dependency order across all pending plugins.
func (m *Manager) LoadOrder() ([]string, error) {
	m.mu.RLock()
	manifests := make([]*Manifest, 0, len(m.pending))
	for _, rec := range m.pending {
		manifests = append(manifests, rec.manifest)
	}
	m.mu.RUnlock()

	// Loaded plugins satisfy dependencies without reordering.
	m.mu.RLock()
	for _, rec := range m.loaded {
		manifests = append(manifests, rec.manifest)
	}
	loadedSet := make(map[string]bool, len(m.loaded))
	for name := range m.loaded {
		loadedSet[name] = true
	}
	m.mu.RUnlock()

	order, err := ResolveLoadOrder(manifests)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(order))
	for _, mf := range order {
		if !loadedSet[mf.Name] {
			names = append(names, mf.Name)
		}
	}
	return names, nil
}

// Load loads a pending plugin: dependency check, sandbox creation, host
// load, and hook registration. On any failure every completed step is
// unwound and the plugin is marked failed.
func (m *Manager) Load(ctx context.Context, name string) error {
	m.mu.Lock()
	if _, ok := m.loaded[name]; ok {
		m.mu.Unlock()
		return oops.Code(CodeAlreadyLoaded).With("plugin", name).Errorf("plugin %s is already loaded", name)
	}
	rec, ok := m.pending[name]
	if !ok {
		m.mu.Unlock()
		return oops.Code(CodeNotFound).With("plugin", name).Errorf("plugin %s is not known", name)
	}
	if len(m.loaded) >= m.cfg.MaxPlugins {
		m.mu.Unlock()
		return oops.Code(CodeMaxPlugins).
			With("plugin", name).
			With("max", m.cfg.MaxPlugins).
			Errorf("plugin limit reached")
	}
	for _, dep := range rec.manifest.Dependencies {
		if dep.Optional {
			continue
		}
		if _, ok := m.loaded[dep.Name]; !ok {
			m.mu.Unlock()
			return oops.Code(CodeDependencyMissing).
				With("plugin", name).
				With("dependency", dep.Name).
				Errorf("plugin %s requires %s, which is not loaded", name, dep.Name)
		}
	}
	// Reserve the slot so concurrent loads of the same plugin serialize.
	delete(m.pending, name)
	advance(rec, StateLoading)
	m.mu.Unlock()

	if err := m.loadRecord(ctx, rec); err != nil {
		m.mu.Lock()
		advance(rec, StateFailed)
		rec.pctx = nil
		m.pending[name] = rec
		m.mu.Unlock()
		loadFailures.WithLabelValues(name, failureCode(err)).Inc()
		return err
	}

	m.mu.Lock()
	advance(rec, StateLoaded)
	rec.loadedAt = time.Now()
	m.loaded[name] = rec
	m.mu.Unlock()

	loadedPlugins.Inc()
	slog.Info("loaded plugin",
		"plugin", name,
		"type", rec.manifest.Type,
		"version", rec.manifest.Version)

	if m.bus != nil {
		m.bus.Dispatch(ctx, hook.NewEvent("plugin.loaded", map[string]string{
			"plugin":  name,
			"version": rec.manifest.Version,
		}))
	}
	return nil
}

// loadRecord performs the fallible part of Load, unwinding completed
// steps on error.
func (m *Manager) loadRecord(ctx context.Context, rec *record) error {
	start := time.Now()
	name := rec.manifest.Name
	errb := oops.Code(CodeLoadFailed).With("plugin", name)

	if err := rec.manifest.CompatibleWith(m.cfg.HostVersion); err != nil {
		return err
	}

	host, ok := m.hosts[rec.manifest.Type]
	if !ok {
		return errb.Errorf("no host for plugin type %q", rec.manifest.Type)
	}

	caps, err := rec.manifest.CapabilitySet()
	if err != nil {
		return err
	}
	req := rec.manifest.Resources.WithDefaults()

	sb, err := m.sandbox.Create(ctx, name, caps, req)
	if err != nil {
		return err
	}

	pctx := NewContext(name, rec.manifest.Version, sb.WorkDir(), caps)

	if err := host.Load(ctx, rec.manifest, rec.dir, pctx); err != nil {
		pctx.Invalidate()
		if derr := m.sandbox.Destroy(ctx, name); derr != nil {
			slog.Error("failed to destroy sandbox during load unwind", "plugin", name, "error", derr)
		}
		return errb.Wrapf(err, "host load failed")
	}

	if err := m.registerSubscriptions(host, rec.manifest); err != nil {
		if uerr := host.Unload(ctx, name); uerr != nil {
			slog.Error("failed to unload plugin during load unwind", "plugin", name, "error", uerr)
		}
		pctx.Invalidate()
		if derr := m.sandbox.Destroy(ctx, name); derr != nil {
			slog.Error("failed to destroy sandbox during load unwind", "plugin", name, "error", derr)
		}
		return err
	}

	rec.pctx = pctx
	rec.health = HealthUnknown
	loadDuration.Observe(time.Since(start).Seconds())
	return nil
}

// registerSubscriptions wires the manifest's event subscriptions into the
// hook bus. Callbacks refuse delivery once the plugin context dies, which
// closes the race between unload and an in-flight dispatch.
func (m *Manager) registerSubscriptions(host Host, manifest *Manifest) error {
	if m.bus == nil || len(manifest.Events) == 0 {
		return nil
	}
	name := manifest.Name
	for _, sub := range manifest.Events {
		prio, err := hook.ParsePriority(sub.Priority)
		if err != nil {
			return err
		}
		reg := hook.Registration{
			Plugin:   name,
			Event:    sub.Event,
			Priority: prio,
			Enabled:  true,
			Timeout:  time.Duration(sub.TimeoutMs) * time.Millisecond,
			Callback: func(ctx context.Context, evt hook.Event) error {
				m.mu.RLock()
				rec, ok := m.loaded[name]
				alive := ok && rec.pctx != nil && rec.pctx.Valid()
				m.mu.RUnlock()
				if !alive {
					return nil
				}
				return host.DeliverEvent(ctx, name, evt)
			},
		}
		if err := m.bus.Register(reg); err != nil {
			m.bus.UnregisterPlugin(name)
			return err
		}
	}
	return nil
}

// LoadAll discovers all plugins and loads them in dependency order.
// Individual load failures are logged and skipped so one bad plugin does
// not keep the host down; callers needing strict behavior use Load.
func (m *Manager) LoadAll(ctx context.Context) error {
	if _, err := m.Discover(ctx); err != nil {
		return err
	}
	order, err := m.LoadOrder()
	if err != nil {
		return err
	}
	for _, name := range order {
		if err := m.Load(ctx, name); err != nil {
			slog.Error("failed to load plugin", "plugin", name, "error", err)
		}
	}
	return nil
}

// Unload stops a loaded plugin and returns its metadata to the pending
// table so it can be loaded again. Loaded plugins that depend on it keep
// running; the broken edge is logged.
func (m *Manager) Unload(ctx context.Context, name string) error {
	m.mu.Lock()
	rec, ok := m.loaded[name]
	if !ok {
		m.mu.Unlock()
		return oops.Code(CodeNotFound).With("plugin", name).Errorf("plugin %s is not loaded", name)
	}
	advance(rec, StateUnloading)
	loadedManifests := make([]*Manifest, 0, len(m.loaded))
	for _, r := range m.loaded {
		loadedManifests = append(loadedManifests, r.manifest)
	}
	m.mu.Unlock()

	if deps := Dependents(loadedManifests, name); len(deps) > 0 {
		slog.Warn("unloading plugin with loaded dependents", "plugin", name, "dependents", deps)
	}

	host := m.hosts[rec.manifest.Type]
	if err := host.Unload(ctx, name); err != nil {
		slog.Error("plugin deinit failed during unload", "plugin", name, "error", err)
	}

	if m.bus != nil {
		m.bus.UnregisterPlugin(name)
	}
	if rec.pctx != nil {
		rec.pctx.Invalidate()
	}
	if err := m.sandbox.Destroy(ctx, name); err != nil {
		slog.Error("failed to destroy sandbox", "plugin", name, "error", err)
	}

	m.mu.Lock()
	delete(m.loaded, name)
	advance(rec, StateUnloaded)
	rec.pctx = nil
	rec.health = HealthUnknown
	m.pending[name] = rec
	m.mu.Unlock()

	loadedPlugins.Dec()
	slog.Info("unloaded plugin", "plugin", name)

	if m.bus != nil {
		m.bus.Dispatch(ctx, hook.NewEvent("plugin.unloaded", map[string]string{"plugin": name}))
	}
	return nil
}

// Reload re-reads a loaded plugin's manifest from disk and swaps the
// running instance for a fresh one. The plugin is suspended during the
// swap and resumed afterwards so it can restore soft state; if the new
// manifest fails validation the old instance resumes untouched.
func (m *Manager) Reload(ctx context.Context, name string) error {
	if !m.cfg.HotReload {
		return oops.Code(CodeHotReloadDisabled).With("plugin", name).New("hot reload is disabled")
	}

	m.mu.RLock()
	rec, ok := m.loaded[name]
	m.mu.RUnlock()
	if !ok {
		return oops.Code(CodeNotFound).With("plugin", name).Errorf("plugin %s is not loaded", name)
	}

	host := m.hosts[rec.manifest.Type]
	if err := host.Suspend(ctx, name); err != nil {
		return oops.Code(CodeLoadFailed).With("plugin", name).Wrapf(err, "suspend failed")
	}
	m.setState(rec, StateSuspended)

	fresh, err := m.rereadManifest(rec)
	if err != nil {
		if rerr := host.Resume(ctx, name); rerr != nil {
			slog.Error("failed to resume plugin after rejected reload", "plugin", name, "error", rerr)
		} else {
			m.setState(rec, StateLoaded)
		}
		return err
	}

	if err := m.Unload(ctx, name); err != nil {
		return err
	}

	m.mu.Lock()
	pend := m.pending[name]
	pend.manifest = fresh
	advance(pend, StateValidated)
	m.mu.Unlock()

	if err := m.Load(ctx, name); err != nil {
		return err
	}
	// The reloaded manifest may have changed the plugin type.
	if err := m.hosts[fresh.Type].Resume(ctx, name); err != nil {
		slog.Warn("plugin resume hook failed after reload", "plugin", name, "error", err)
	}
	return nil
}

// rereadManifest loads and validates plugin.yaml from the record's
// directory, enforcing the same checks as discovery.
func (m *Manager) rereadManifest(rec *record) (*Manifest, error) {
	data, err := readManifestFile(rec.dir)
	if err != nil {
		return nil, err
	}
	fresh, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	if fresh.Name != rec.manifest.Name {
		return nil, oops.Code(CodeManifestInvalid).
			With("plugin", rec.manifest.Name).
			With("new_name", fresh.Name).
			New("reloaded manifest changed the plugin name")
	}
	if err := m.verifier.Verify(fresh, rec.dir); err != nil {
		return nil, err
	}
	return fresh, nil
}

// ShutdownAll unloads every plugin in reverse dependency order after
// giving each a pre-shutdown notification, then closes the hosts.
func (m *Manager) ShutdownAll(ctx context.Context) error {
	m.mu.RLock()
	manifests := make([]*Manifest, 0, len(m.loaded))
	for _, rec := range m.loaded {
		manifests = append(manifests, rec.manifest)
	}
	m.mu.RUnlock()

	order, err := ResolveLoadOrder(manifests)
	if err != nil {
		// Loaded plugins always resolve; a failure here means state
		// corruption, so fall back to arbitrary order.
		slog.Error("failed to order plugins for shutdown", "error", err)
		order = manifests
	}

	var firstErr error
	for _, mf := range ReverseOrder(order) {
		host := m.hosts[mf.Type]
		if err := host.PreShutdown(ctx, mf.Name); err != nil {
			slog.Warn("plugin pre-shutdown hook failed", "plugin", mf.Name, "error", err)
		}
		if err := m.Unload(ctx, mf.Name); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, host := range m.hosts {
		if err := host.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HealthCheck probes one loaded plugin. Unknown plugins report
// HealthUnknown with a PLUGIN_NOT_FOUND error.
func (m *Manager) HealthCheck(ctx context.Context, name string) (Health, error) {
	m.mu.RLock()
	rec, ok := m.loaded[name]
	m.mu.RUnlock()
	if !ok {
		return HealthUnknown, oops.Code(CodeNotFound).With("plugin", name).Errorf("plugin %s is not loaded", name)
	}

	host := m.hosts[rec.manifest.Type]
	health, err := host.HealthCheck(ctx, name)
	if err != nil {
		health = HealthUnhealthy
	}

	m.mu.Lock()
	rec.health = health
	m.mu.Unlock()
	healthChecks.WithLabelValues(name, string(health)).Inc()
	return health, err
}

// HealthCheckAll probes every loaded plugin and returns the results by
// name.
func (m *Manager) HealthCheckAll(ctx context.Context) map[string]Health {
	m.mu.RLock()
	names := make([]string, 0, len(m.loaded))
	for name := range m.loaded {
		names = append(names, name)
	}
	m.mu.RUnlock()

	out := make(map[string]Health, len(names))
	for _, name := range names {
		health, _ := m.HealthCheck(ctx, name)
		out[name] = health
	}
	return out
}

// PublishEvent dispatches an event through the hook bus. The report
// describes delivery to subscribed plugins.
func (m *Manager) PublishEvent(ctx context.Context, event string, payload map[string]string) hook.Report {
	if m.bus == nil {
		return hook.Report{}
	}
	return m.bus.Dispatch(ctx, hook.NewEvent(event, payload))
}

// Plugins returns status snapshots for every known plugin, loaded and
// pending, sorted by name.
func (m *Manager) Plugins() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.loaded)+len(m.pending))
	for _, rec := range m.loaded {
		infos = append(infos, infoFor(rec))
	}
	for _, rec := range m.pending {
		infos = append(infos, infoFor(rec))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Loaded returns the names of loaded plugins in sorted order.
func (m *Manager) Loaded() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.loaded))
	for name := range m.loaded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ContextFor returns the live execution context for a loaded plugin.
func (m *Manager) ContextFor(name string) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.loaded[name]
	if !ok || rec.pctx == nil {
		return nil, false
	}
	return rec.pctx, true
}

func (m *Manager) setState(rec *record, s State) {
	m.mu.Lock()
	advance(rec, s)
	m.mu.Unlock()
}

// advance moves a record through the lifecycle, enforcing the transition
// table. An illegal move means manager state corruption; it is refused
// and logged rather than applied. Caller holds m.mu.
func advance(rec *record, to State) {
	next, err := Transition(rec.manifest.Name, rec.state, to)
	if err != nil {
		slog.Error("refused illegal plugin state transition",
			"plugin", rec.manifest.Name,
			"from", string(rec.state),
			"to", string(to))
		return
	}
	rec.state = next
	stateTransitions.WithLabelValues(rec.manifest.Name, string(next)).Inc()
}

// failureCode extracts the error code for the load-failure metric label.
func failureCode(err error) string {
	if oerr, ok := oops.AsOops(err); ok {
		if code, ok := oerr.Code().(string); ok && code != "" {
			return code
		}
	}
	return "unknown"
}

func infoFor(rec *record) Info {
	return Info{
		Name:             rec.manifest.Name,
		Version:          rec.manifest.Version,
		Type:             rec.manifest.Type,
		State:            rec.state,
		Health:           rec.health,
		ProvidesCommands: rec.manifest.ProvidesCommands,
		LoadedAt:         rec.loadedAt,
	}
}
