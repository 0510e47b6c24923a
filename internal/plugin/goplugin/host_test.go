// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package goplugin_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	hashiplug "github.com/hashicorp/go-plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselrun/vessel/internal/hook"
	"github.com/vesselrun/vessel/internal/plugin"
	"github.com/vesselrun/vessel/internal/plugin/goplugin"
	"github.com/vesselrun/vessel/pkg/sdk"
)

// fakeHooks records calls made through the client.
type fakeHooks struct {
	sdk.BaseHooks
	mu     sync.Mutex
	inits  []sdk.PluginInfo
	events []sdk.Event
	deinit int
	health string
	err    error
}

func (f *fakeHooks) Init(info sdk.PluginInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits = append(f.inits, info)
	return f.err
}

func (f *fakeHooks) Deinit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deinit++
	return f.err
}

func (f *fakeHooks) HealthCheck() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.health == "" && f.err == nil {
		return "", sdk.ErrNotImplemented
	}
	return f.health, f.err
}

func (f *fakeHooks) HandleEvent(evt sdk.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.err
}

// fakeProtocol dispenses the fake hooks in place of a live connection.
type fakeProtocol struct {
	hooks       sdk.Hooks
	dispenseErr error
}

func (f *fakeProtocol) Close() error { return nil }
func (f *fakeProtocol) Dispense(name string) (any, error) {
	if f.dispenseErr != nil {
		return nil, f.dispenseErr
	}
	if name != sdk.PluginName {
		return nil, errors.New("unknown plugin " + name)
	}
	return f.hooks, nil
}
func (f *fakeProtocol) Ping() error { return nil }

type fakeClient struct {
	proto     hashiplug.ClientProtocol
	clientErr error
	killed    int
}

func (f *fakeClient) Client() (hashiplug.ClientProtocol, error) {
	if f.clientErr != nil {
		return nil, f.clientErr
	}
	return f.proto, nil
}

func (f *fakeClient) Kill() { f.killed++ }

type fakeFactory struct {
	client   *fakeClient
	lastPath string
	lastDir  string
}

func (f *fakeFactory) NewClient(execPath, workDir string) goplugin.PluginClient {
	f.lastPath = execPath
	f.lastDir = workDir
	return f.client
}

func binaryFixture(t *testing.T) (*plugin.Manifest, string, *plugin.Context) {
	t.Helper()
	dir := t.TempDir()
	exe := filepath.Join(dir, "scanner")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o700)) //nolint:gosec // test fixture must be executable

	m := &plugin.Manifest{
		Name:         "scanner",
		Version:      "1.0.0",
		APIVersion:   "1.0.0",
		Type:         plugin.TypeBinary,
		Capabilities: []string{"network.client"},
		BinaryPlugin: &plugin.BinaryConfig{Executable: "scanner"},
	}
	require.NoError(t, m.Validate())

	caps, err := m.CapabilitySet()
	require.NoError(t, err)
	pctx := plugin.NewContext("scanner", "1.0.0", filepath.Join(dir, "work"), caps)
	return m, dir, pctx
}

func loadedHost(t *testing.T, hooks *fakeHooks) (*goplugin.Host, *fakeFactory) {
	t.Helper()
	factory := &fakeFactory{client: &fakeClient{proto: &fakeProtocol{hooks: hooks}}}
	h := goplugin.NewHostWithFactory(factory)
	t.Cleanup(func() { _ = h.Close(context.Background()) })

	m, dir, pctx := binaryFixture(t)
	require.NoError(t, h.Load(context.Background(), m, dir, pctx))
	return h, factory
}

func TestHost_Load_InitsPlugin(t *testing.T) {
	hooks := &fakeHooks{}
	h, factory := loadedHost(t, hooks)

	assert.Equal(t, []string{"scanner"}, h.Plugins())
	require.Len(t, hooks.inits, 1)
	assert.Equal(t, "scanner", hooks.inits[0].Name)
	assert.Equal(t, []string{"network.client"}, hooks.inits[0].Capabilities)
	assert.Contains(t, factory.lastPath, "scanner")
	assert.Equal(t, hooks.inits[0].WorkDir, factory.lastDir)
}

func TestHost_Load_MissingExecutable(t *testing.T) {
	factory := &fakeFactory{client: &fakeClient{proto: &fakeProtocol{hooks: &fakeHooks{}}}}
	h := goplugin.NewHostWithFactory(factory)

	m, dir, pctx := binaryFixture(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "scanner")))

	err := h.Load(context.Background(), m, dir, pctx)
	assert.Error(t, err)
}

func TestHost_Load_ConnectFailureKillsProcess(t *testing.T) {
	client := &fakeClient{clientErr: errors.New("handshake failed")}
	factory := &fakeFactory{client: client}
	h := goplugin.NewHostWithFactory(factory)

	m, dir, pctx := binaryFixture(t)
	err := h.Load(context.Background(), m, dir, pctx)
	require.Error(t, err)
	assert.Equal(t, 1, client.killed)
	assert.Empty(t, h.Plugins())
}

func TestHost_Load_InitFailureKillsProcess(t *testing.T) {
	hooks := &fakeHooks{err: errors.New("bad config")}
	client := &fakeClient{proto: &fakeProtocol{hooks: hooks}}
	h := goplugin.NewHostWithFactory(&fakeFactory{client: client})

	m, dir, pctx := binaryFixture(t)
	err := h.Load(context.Background(), m, dir, pctx)
	require.Error(t, err)
	assert.Equal(t, 1, client.killed)
}

func TestHost_Load_Duplicate(t *testing.T) {
	h, _ := loadedHost(t, &fakeHooks{})
	m, dir, pctx := binaryFixture(t)
	assert.Error(t, h.Load(context.Background(), m, dir, pctx))
}

func TestHost_DeliverEvent(t *testing.T) {
	hooks := &fakeHooks{}
	h, _ := loadedHost(t, hooks)

	evt := hook.NewEvent("container.pre_start", map[string]string{"container": "c1"})
	require.NoError(t, h.DeliverEvent(context.Background(), "scanner", evt))

	require.Len(t, hooks.events, 1)
	assert.Equal(t, evt.ID, hooks.events[0].ID)
	assert.Equal(t, "container.pre_start", hooks.events[0].Name)
	assert.Equal(t, "c1", hooks.events[0].Payload["container"])
}

func TestHost_HealthCheck(t *testing.T) {
	tests := []struct {
		name  string
		hooks *fakeHooks
		want  plugin.Health
	}{
		{name: "healthy", hooks: &fakeHooks{health: sdk.HealthHealthy}, want: plugin.HealthHealthy},
		{name: "unhealthy", hooks: &fakeHooks{health: sdk.HealthUnhealthy}, want: plugin.HealthUnhealthy},
		{name: "not implemented", hooks: &fakeHooks{}, want: plugin.HealthUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := loadedHost(t, tt.hooks)
			health, err := h.HealthCheck(context.Background(), "scanner")
			require.NoError(t, err)
			assert.Equal(t, tt.want, health)
		})
	}
}

func TestHost_OptionalHooksNotImplementedOK(t *testing.T) {
	h, _ := loadedHost(t, &fakeHooks{})
	ctx := context.Background()
	assert.NoError(t, h.Suspend(ctx, "scanner"))
	assert.NoError(t, h.Resume(ctx, "scanner"))
	assert.NoError(t, h.PreShutdown(ctx, "scanner"))
}

func TestHost_Unload_KillsProcess(t *testing.T) {
	hooks := &fakeHooks{}
	factory := &fakeFactory{client: &fakeClient{proto: &fakeProtocol{hooks: hooks}}}
	h := goplugin.NewHostWithFactory(factory)

	m, dir, pctx := binaryFixture(t)
	require.NoError(t, h.Load(context.Background(), m, dir, pctx))

	require.NoError(t, h.Unload(context.Background(), "scanner"))
	assert.Equal(t, 1, hooks.deinit)
	assert.Equal(t, 1, factory.client.killed)
	assert.Empty(t, h.Plugins())

	assert.Error(t, h.Unload(context.Background(), "scanner"))
}

func TestHost_UnknownPlugin(t *testing.T) {
	h := goplugin.NewHostWithFactory(&fakeFactory{client: &fakeClient{}})
	ctx := context.Background()

	assert.Error(t, h.DeliverEvent(ctx, "ghost", hook.NewEvent("x", nil)))
	health, err := h.HealthCheck(ctx, "ghost")
	assert.Error(t, err)
	assert.Equal(t, plugin.HealthUnknown, health)
}

func TestHost_Close(t *testing.T) {
	factory := &fakeFactory{client: &fakeClient{proto: &fakeProtocol{hooks: &fakeHooks{}}}}
	h := goplugin.NewHostWithFactory(factory)

	m, dir, pctx := binaryFixture(t)
	require.NoError(t, h.Load(context.Background(), m, dir, pctx))

	require.NoError(t, h.Close(context.Background()))
	assert.Equal(t, 1, factory.client.killed)
	assert.Empty(t, h.Plugins())

	// Load after close is rejected.
	m2, dir2, pctx2 := binaryFixture(t)
	assert.Error(t, h.Load(context.Background(), m2, dir2, pctx2))
}
