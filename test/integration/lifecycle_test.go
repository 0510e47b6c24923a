// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

//go:build integration

package integration

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/vesselrun/vessel/internal/audit"
	"github.com/vesselrun/vessel/internal/backend"
	"github.com/vesselrun/vessel/internal/hook"
	"github.com/vesselrun/vessel/internal/plugin"
	"github.com/vesselrun/vessel/internal/plugin/lua"
	"github.com/vesselrun/vessel/internal/sandbox"
)

const dbPluginManifest = `
name: db
version: 1.0.0
api-version: 1.0.0
type: lua
capabilities:
  - filesystem.read
events:
  - event: container.post_create
lua-plugin:
  entry: main.lua
`

const dbPluginScript = `
created = 0

function on_event(event)
  created = created + 1
end

function health_check()
  return "healthy"
end
`

const webPluginManifest = `
name: web
version: 1.0.0
api-version: 1.0.0
type: lua
dependencies:
  - name: db
lua-plugin:
  entry: main.lua
`

const webPluginScript = `
function health_check()
  return "healthy"
end
`

var _ = Describe("Plugin lifecycle", func() {
	var (
		ctx     context.Context
		tmp     string
		store   *audit.Store
		sb      *sandbox.Manager
		bus     *hook.Bus
		manager *plugin.Manager
		service *backend.Service
	)

	writePlugin := func(name, manifest, script string) {
		dir := filepath.Join(tmp, "plugins", name)
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "plugin.yaml"), []byte(manifest), 0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "main.lua"), []byte(script), 0o600)).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		tmp = GinkgoT().TempDir()

		writePlugin("db", dbPluginManifest, dbPluginScript)
		writePlugin("web", webPluginManifest, webPluginScript)

		var err error
		store, err = audit.Open(filepath.Join(tmp, "audit", "violations.db"))
		Expect(err).NotTo(HaveOccurred())

		sb, err = sandbox.NewManager(sandbox.Config{
			Root:    filepath.Join(tmp, "sandboxes"),
			Enabled: false,
		}, nil, store)
		Expect(err).NotTo(HaveOccurred())

		bus = hook.NewBus(hook.TimeoutSkip)
		manager = plugin.NewManager(plugin.ManagerConfig{},
			plugin.NewDirSource(filepath.Join(tmp, "plugins")),
			plugin.NoopVerifier{},
			map[plugin.Type]plugin.Host{plugin.TypeLua: lua.NewHost()},
			bus, sb)

		rules := `default noop;`
		router, err := backend.NewRouter(rules, map[string]backend.Backend{
			"noop": backend.NewMemory("noop"),
		})
		Expect(err).NotTo(HaveOccurred())
		service = backend.NewService(router, bus)
	})

	AfterEach(func() {
		Expect(manager.ShutdownAll(ctx)).To(Succeed())
		Expect(store.Close()).To(Succeed())
	})

	It("loads plugins in dependency order and reports health", func() {
		Expect(manager.LoadAll(ctx)).To(Succeed())
		Expect(manager.Loaded()).To(ConsistOf("db", "web"))

		health := manager.HealthCheckAll(ctx)
		Expect(health).To(HaveKeyWithValue("db", plugin.HealthHealthy))
		Expect(health).To(HaveKeyWithValue("web", plugin.HealthHealthy))
	})

	It("delivers container events to subscribed plugins", func() {
		Expect(manager.LoadAll(ctx)).To(Succeed())

		spec := backend.ContainerSpec{Name: "demo", Image: "registry.local/demo:1"}
		Expect(service.Create(ctx, spec)).To(Succeed())

		stats, ok := bus.Stats(backend.EventPostCreate, "db")
		Expect(ok).To(BeTrue())
		Expect(stats.Executions).To(BeEquivalentTo(1))
		Expect(stats.Failures).To(BeZero())
	})

	It("stops delivering events after unload and loads again cleanly", func() {
		Expect(manager.LoadAll(ctx)).To(Succeed())

		Expect(manager.Unload(ctx, "web")).To(Succeed())
		Expect(manager.Unload(ctx, "db")).To(Succeed())

		Expect(service.Create(ctx, backend.ContainerSpec{Name: "after"})).To(Succeed())
		report := manager.PublishEvent(ctx, backend.EventPostCreate, nil)
		Expect(report.Invoked).To(BeZero())

		Expect(manager.Load(ctx, "db")).To(Succeed())
		Expect(manager.Loaded()).To(ConsistOf("db"))
	})

	It("records capability violations durably", func() {
		Expect(manager.LoadAll(ctx)).To(Succeed())

		// db only holds filesystem.read; writing is a violation.
		err := sb.ValidateFileAccess(ctx, "db", filepath.Join(tmp, "out.txt"), sandbox.AccessWrite)
		Expect(err).To(HaveOccurred())

		violations, qerr := store.Violations(ctx, audit.Filter{Plugin: "db"})
		Expect(qerr).NotTo(HaveOccurred())
		Expect(violations).NotTo(BeEmpty())
		Expect(violations[0].Plugin).To(Equal("db"))
	})
})
