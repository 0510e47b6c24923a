// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

// Package goplugin provides a Host implementation for binary plugins
// using HashiCorp's go-plugin framework over net/rpc.
package goplugin

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/samber/oops"

	"github.com/vesselrun/vessel/internal/hook"
	"github.com/vesselrun/vessel/internal/plugin"
	"github.com/vesselrun/vessel/pkg/sdk"
)

// Compile-time interface check.
var _ plugin.Host = (*Host)(nil)

// PluginClient wraps a go-plugin client for testability.
type PluginClient interface {
	// Client returns the client protocol used to dispense the hooks.
	Client() (hashiplug.ClientProtocol, error)
	// Kill terminates the plugin process.
	Kill()
}

// ClientFactory creates plugin clients.
type ClientFactory interface {
	// NewClient creates a client for the given executable path. The
	// process runs with the sandbox work dir as its working directory.
	NewClient(execPath, workDir string) PluginClient
}

// DefaultClientFactory launches real plugin processes.
type DefaultClientFactory struct{}

// NewClient creates a real go-plugin client.
func (DefaultClientFactory) NewClient(execPath, workDir string) PluginClient {
	cmd := exec.Command(execPath) // #nosec G204 -- execPath comes from a validated manifest
	cmd.Dir = workDir
	return hashiplug.NewClient(&hashiplug.ClientConfig{
		HandshakeConfig:  sdk.Handshake,
		Plugins:          sdk.PluginMap(nil),
		Cmd:              cmd,
		AllowedProtocols: []hashiplug.Protocol{hashiplug.ProtocolNetRPC},
	})
}

// loadedPlugin holds one running plugin process.
type loadedPlugin struct {
	manifest *plugin.Manifest
	pctx     *plugin.Context
	client   PluginClient
	hooks    sdk.Hooks
}

// Host manages binary plugins as supervised child processes.
type Host struct {
	factory ClientFactory
	plugins map[string]*loadedPlugin
	mu      sync.RWMutex
	closed  bool
}

// NewHost creates a binary plugin host.
func NewHost() *Host {
	return &Host{
		factory: DefaultClientFactory{},
		plugins: make(map[string]*loadedPlugin),
	}
}

// NewHostWithFactory creates a host with a custom client factory, used in
// tests. Panics if factory is nil.
func NewHostWithFactory(factory ClientFactory) *Host {
	if factory == nil {
		panic("goplugin: factory cannot be nil")
	}
	return &Host{
		factory: factory,
		plugins: make(map[string]*loadedPlugin),
	}
}

// Load starts the plugin process, dispenses its hooks, and calls Init.
func (h *Host) Load(_ context.Context, manifest *plugin.Manifest, dir string, pctx *plugin.Context) error {
	errb := oops.In("goplugin").With("plugin", manifest.Name).With("operation", "load")

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errb.New("host is closed")
	}
	if _, ok := h.plugins[manifest.Name]; ok {
		h.mu.Unlock()
		return errb.New("plugin already loaded")
	}
	h.mu.Unlock()

	execPath := filepath.Join(dir, manifest.BinaryPlugin.Executable)
	if _, err := os.Stat(execPath); err != nil {
		return errb.With("path", execPath).Wrapf(err, "plugin executable not found")
	}

	client := h.factory.NewClient(execPath, pctx.WorkDir())

	proto, err := client.Client()
	if err != nil {
		client.Kill()
		return errb.Wrapf(err, "failed to connect to plugin process")
	}

	raw, err := proto.Dispense(sdk.PluginName)
	if err != nil {
		client.Kill()
		return errb.Wrapf(err, "failed to dispense hooks")
	}

	hooks, ok := raw.(sdk.Hooks)
	if !ok {
		client.Kill()
		return errb.Errorf("plugin does not implement the hooks interface")
	}

	info := sdk.PluginInfo{
		Name:         manifest.Name,
		Version:      manifest.Version,
		WorkDir:      pctx.WorkDir(),
		Capabilities: pctx.Capabilities().List(),
	}
	if err := hooks.Init(info); err != nil && !sdk.IsNotImplemented(err) {
		client.Kill()
		return errb.Wrapf(err, "plugin init failed")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		client.Kill()
		return errb.New("host is closed")
	}
	h.plugins[manifest.Name] = &loadedPlugin{
		manifest: manifest,
		pctx:     pctx,
		client:   client,
		hooks:    hooks,
	}
	return nil
}

// Unload calls the plugin's Deinit hook and kills the process. Deinit
// failures are logged so unload always completes.
func (h *Host) Unload(_ context.Context, name string) error {
	h.mu.Lock()
	p, ok := h.plugins[name]
	if !ok {
		h.mu.Unlock()
		return oops.In("goplugin").With("plugin", name).With("operation", "unload").New("plugin not loaded")
	}
	delete(h.plugins, name)
	h.mu.Unlock()

	if err := p.hooks.Deinit(); err != nil && !sdk.IsNotImplemented(err) {
		slog.Warn("plugin deinit failed", "plugin", name, "error", err)
	}
	p.client.Kill()
	return nil
}

// Suspend calls the plugin's Suspend hook.
func (h *Host) Suspend(_ context.Context, name string) error {
	return h.callOptional(name, "suspend", func(hooks sdk.Hooks) error { return hooks.Suspend() })
}

// Resume calls the plugin's Resume hook.
func (h *Host) Resume(_ context.Context, name string) error {
	return h.callOptional(name, "resume", func(hooks sdk.Hooks) error { return hooks.Resume() })
}

// PreShutdown calls the plugin's PreShutdown hook.
func (h *Host) PreShutdown(_ context.Context, name string) error {
	return h.callOptional(name, "pre_shutdown", func(hooks sdk.Hooks) error { return hooks.PreShutdown() })
}

// HealthCheck probes the plugin. Plugins without a health hook report
// HealthUnknown.
func (h *Host) HealthCheck(_ context.Context, name string) (plugin.Health, error) {
	p, err := h.lookup(name)
	if err != nil {
		return plugin.HealthUnknown, err
	}

	health, err := p.hooks.HealthCheck()
	switch {
	case sdk.IsNotImplemented(err):
		return plugin.HealthUnknown, nil
	case err != nil:
		return plugin.HealthUnhealthy, oops.In("goplugin").With("plugin", name).With("operation", "health_check").Wrap(err)
	case health == sdk.HealthHealthy:
		return plugin.HealthHealthy, nil
	default:
		return plugin.HealthUnhealthy, nil
	}
}

// DeliverEvent forwards a hook event to the plugin process.
//
// The read lock is released before the rpc call so one slow plugin does
// not serialize the others; a concurrent Unload makes the call fail when
// the process dies, which callers already handle.
func (h *Host) DeliverEvent(_ context.Context, name string, event hook.Event) error {
	p, err := h.lookup(name)
	if err != nil {
		return err
	}

	evt := sdk.Event{
		ID:      event.ID,
		Name:    event.Name,
		Time:    event.Time.UnixMilli(),
		Payload: event.Payload,
	}
	if err := p.hooks.HandleEvent(evt); err != nil && !sdk.IsNotImplemented(err) {
		return oops.In("goplugin").With("plugin", name).With("operation", "handle_event").With("event", event.Name).Wrap(err)
	}
	return nil
}

// Plugins returns names of all loaded plugins.
func (h *Host) Plugins() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.plugins))
	for name := range h.plugins {
		names = append(names, name)
	}
	return names
}

// Close kills every plugin process.
func (h *Host) Close(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for _, p := range h.plugins {
		p.client.Kill()
	}
	clear(h.plugins)
	return nil
}

func (h *Host) lookup(name string) (*loadedPlugin, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.plugins[name]
	if !ok {
		return nil, oops.In("goplugin").With("plugin", name).New("plugin not loaded")
	}
	return p, nil
}

// callOptional invokes an optional lifecycle hook, mapping
// ErrNotImplemented to success.
func (h *Host) callOptional(name, op string, fn func(sdk.Hooks) error) error {
	p, err := h.lookup(name)
	if err != nil {
		return err
	}
	if err := fn(p.hooks); err != nil && !sdk.IsNotImplemented(err) {
		return oops.In("goplugin").With("plugin", name).With("operation", op).Wrap(err)
	}
	return nil
}
