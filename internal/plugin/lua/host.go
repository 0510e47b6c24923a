// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package lua

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/vesselrun/vessel/internal/hook"
	plugins "github.com/vesselrun/vessel/internal/plugin"
)

// Compile-time interface check.
var _ plugins.Host = (*Host)(nil)

// Lifecycle hook globals a plugin script may define. All are optional.
const (
	fnInit        = "on_init"
	fnDeinit      = "on_deinit"
	fnHealthCheck = "health_check"
	fnSuspend     = "on_suspend"
	fnResume      = "on_resume"
	fnPreShutdown = "pre_shutdown"
	fnEvent       = "on_event"
)

// luaPlugin holds one plugin's persistent interpreter state. The state
// survives across calls so scripts can keep values between events; LState
// is not goroutine safe, so every call holds mu.
type luaPlugin struct {
	manifest *plugins.Manifest
	pctx     *plugins.Context
	state    *lua.LState
	mu       sync.Mutex
}

// Host runs Lua plugins in-process on sandboxed interpreter states.
type Host struct {
	factory *StateFactory
	plugins map[string]*luaPlugin
	mu      sync.RWMutex
	closed  bool
}

// NewHost creates a Lua plugin host.
func NewHost() *Host {
	return &Host{
		factory: NewStateFactory(),
		plugins: make(map[string]*luaPlugin),
	}
}

// Load reads the plugin's entry script, runs it in a fresh sandboxed
// state, and calls its on_init hook if defined.
func (h *Host) Load(ctx context.Context, manifest *plugins.Manifest, dir string, pctx *plugins.Context) error {
	errb := oops.In("lua").With("plugin", manifest.Name).With("operation", "load")

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

	entryPath := filepath.Join(dir, manifest.LuaPlugin.Entry)
	code, err := os.ReadFile(filepath.Clean(entryPath))
	if err != nil {
		return errb.With("path", entryPath).Hint("failed to read entry file").Wrap(err)
	}

	L, err := h.factory.NewState(ctx)
	if err != nil {
		return errb.Hint("failed to create state").Wrap(err)
	}

	registerVesselAPI(L, pctx)

	L.SetContext(ctx)
	if err := L.DoString(string(code)); err != nil {
		L.Close()
		return errb.With("entry", manifest.LuaPlugin.Entry).Hint("script error").Wrap(err)
	}

	p := &luaPlugin{manifest: manifest, pctx: pctx, state: L}
	if _, err := p.call(ctx, fnInit); err != nil {
		L.Close()
		return errb.Hint("on_init failed").Wrap(err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		L.Close()
		return errb.New("host is closed")
	}
	h.plugins[manifest.Name] = p
	return nil
}

// Unload runs the plugin's on_deinit hook and discards its state. Deinit
// failures are logged, not returned, so unload always completes.
func (h *Host) Unload(ctx context.Context, name string) error {
	h.mu.Lock()
	p, ok := h.plugins[name]
	if !ok {
		h.mu.Unlock()
		return oops.In("lua").With("plugin", name).With("operation", "unload").New("plugin not loaded")
	}
	delete(h.plugins, name)
	h.mu.Unlock()

	if _, err := p.call(ctx, fnDeinit); err != nil {
		slog.Warn("plugin on_deinit failed", "plugin", name, "error", err)
	}

	p.mu.Lock()
	p.state.Close()
	p.mu.Unlock()
	return nil
}

// Suspend calls the plugin's on_suspend hook.
func (h *Host) Suspend(ctx context.Context, name string) error {
	return h.callHook(ctx, name, fnSuspend)
}

// Resume calls the plugin's on_resume hook.
func (h *Host) Resume(ctx context.Context, name string) error {
	return h.callHook(ctx, name, fnResume)
}

// PreShutdown calls the plugin's pre_shutdown hook.
func (h *Host) PreShutdown(ctx context.Context, name string) error {
	return h.callHook(ctx, name, fnPreShutdown)
}

// HealthCheck calls the plugin's health_check hook. Plugins without one
// report HealthUnknown. The hook may return a boolean or the strings
// "healthy"/"unhealthy".
func (h *Host) HealthCheck(ctx context.Context, name string) (plugins.Health, error) {
	p, err := h.lookup(name)
	if err != nil {
		return plugins.HealthUnknown, err
	}

	ret, err := p.call(ctx, fnHealthCheck)
	if err != nil {
		return plugins.HealthUnhealthy, oops.In("lua").With("plugin", name).With("operation", "health_check").Wrap(err)
	}
	if ret == nil {
		return plugins.HealthUnknown, nil
	}

	switch v := ret.(type) {
	case lua.LBool:
		if bool(v) {
			return plugins.HealthHealthy, nil
		}
		return plugins.HealthUnhealthy, nil
	case lua.LString:
		if string(v) == "healthy" {
			return plugins.HealthHealthy, nil
		}
		return plugins.HealthUnhealthy, nil
	default:
		return plugins.HealthUnknown, nil
	}
}

// DeliverEvent calls the plugin's on_event hook with an event table.
// Plugins without on_event ignore events.
func (h *Host) DeliverEvent(ctx context.Context, name string, event hook.Event) error {
	p, err := h.lookup(name)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	L := p.state
	fn := L.GetGlobal(fnEvent)
	if fn.Type() == lua.LTNil {
		slog.Debug("plugin has no on_event handler", "plugin", name, "event", event.Name)
		return nil
	}

	L.SetContext(ctx)
	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, buildEventTable(L, event)); err != nil {
		return oops.In("lua").With("plugin", name).With("operation", "on_event").With("event", event.Name).Wrap(err)
	}
	return nil
}

// Plugins returns names of loaded plugins.
func (h *Host) Plugins() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.plugins))
	for name := range h.plugins {
		names = append(names, name)
	}
	return names
}

// Close shuts down the host and every plugin state.
func (h *Host) Close(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for _, p := range h.plugins {
		p.mu.Lock()
		p.state.Close()
		p.mu.Unlock()
	}
	h.plugins = nil
	return nil
}

func (h *Host) lookup(name string) (*luaPlugin, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	p, ok := h.plugins[name]
	if !ok {
		return nil, oops.In("lua").With("plugin", name).New("plugin not loaded")
	}
	return p, nil
}

// callHook invokes an optional lifecycle global, treating absence as
// success.
func (h *Host) callHook(ctx context.Context, name, fn string) error {
	p, err := h.lookup(name)
	if err != nil {
		return err
	}
	if _, err := p.call(ctx, fn); err != nil {
		return oops.In("lua").With("plugin", name).With("operation", fn).Wrap(err)
	}
	return nil
}

// call invokes a global function if defined, returning its single result.
// A nil result with nil error means the hook is not defined.
func (p *luaPlugin) call(ctx context.Context, fn string) (lua.LValue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	L := p.state
	val := L.GetGlobal(fn)
	if val.Type() == lua.LTNil {
		return nil, nil
	}

	L.SetContext(ctx)
	if err := L.CallByParam(lua.P{
		Fn:      val,
		NRet:    1,
		Protect: true,
	}); err != nil {
		return nil, err
	}

	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// registerVesselAPI installs the vessel.* table: plugin identity fields
// and a structured log function. Capability checks stay host-side; the
// table only exposes what the context grants implicitly.
func registerVesselAPI(L *lua.LState, pctx *plugins.Context) {
	t := L.NewTable()
	L.SetField(t, "plugin", lua.LString(pctx.Name()))
	L.SetField(t, "version", lua.LString(pctx.Version()))
	L.SetField(t, "work_dir", lua.LString(pctx.WorkDir()))
	L.SetField(t, "log", L.NewFunction(func(ls *lua.LState) int {
		level := ls.CheckString(1)
		msg := ls.CheckString(2)
		attrs := []any{"plugin", pctx.Name()}
		switch level {
		case "debug":
			slog.Debug(msg, attrs...)
		case "warn":
			slog.Warn(msg, attrs...)
		case "error":
			slog.Error(msg, attrs...)
		default:
			slog.Info(msg, attrs...)
		}
		return 0
	}))
	L.SetGlobal("vessel", t)
}

func buildEventTable(L *lua.LState, event hook.Event) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "id", lua.LString(event.ID))
	L.SetField(t, "name", lua.LString(event.Name))
	L.SetField(t, "time", lua.LNumber(event.Time.Unix()))
	payload := L.NewTable()
	for k, v := range event.Payload {
		L.SetField(payload, k, lua.LString(v))
	}
	L.SetField(t, "payload", payload)
	return t
}
