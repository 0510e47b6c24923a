// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vesselrun/vessel/internal/audit"
	"github.com/vesselrun/vessel/internal/backend"
	"github.com/vesselrun/vessel/internal/config"
	"github.com/vesselrun/vessel/internal/hook"
	"github.com/vesselrun/vessel/internal/logging"
	"github.com/vesselrun/vessel/internal/observability"
	"github.com/vesselrun/vessel/internal/plugin"
	"github.com/vesselrun/vessel/internal/plugin/goplugin"
	"github.com/vesselrun/vessel/internal/plugin/lua"
	"github.com/vesselrun/vessel/internal/sandbox"
	"github.com/vesselrun/vessel/internal/version"
)

const shutdownTimeout = 10 * time.Second

// NewDaemonCmd creates the daemon subcommand.
func NewDaemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the Vessel host",
		Long: `Run the Vessel host: discover and load plugins, enforce the security
sandbox, and route container operations to the configured backends.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg, cmd)
		},
	}

	// Flag names mirror config keys so they override the file directly.
	defaults := config.Default()
	cmd.Flags().String("plugins.dir", defaults.Plugins.Dir, "plugin directory")
	cmd.Flags().Int("plugins.max-plugins", defaults.Plugins.MaxPlugins, "maximum loaded plugins")
	cmd.Flags().Bool("plugins.hot-reload", defaults.Plugins.HotReload, "enable plugin hot reload")
	cmd.Flags().Bool("plugins.auto-load", defaults.Plugins.AutoLoad, "load discovered plugins at start")
	cmd.Flags().String("sandbox.root", defaults.Sandbox.Root, "sandbox root directory")
	cmd.Flags().Bool("sandbox.enabled", defaults.Sandbox.Enabled, "enable OS-level sandbox isolation")
	cmd.Flags().String("audit.db-path", defaults.Audit.DBPath, "violation database path (empty = disabled)")
	cmd.Flags().String("metrics.addr", defaults.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	cmd.Flags().String("log.format", defaults.Log.Format, "log format (json or text)")

	return cmd
}

// daemon holds the wired host components.
type daemon struct {
	cfg     config.Config
	store   *audit.Store
	sandbox *sandbox.Manager
	bus     *hook.Bus
	manager *plugin.Manager
	service *backend.Service
	ready   atomic.Bool
}

// markReady flips the readiness probe once plugin startup has finished.
func (d *daemon) markReady() { d.ready.Store(true) }

// isReady backs the observability server's readiness endpoint.
func (d *daemon) isReady() bool { return d.ready.Load() }

// buildDaemon wires the host from configuration. The caller owns closing
// the returned daemon.
func buildDaemon(cfg config.Config) (*daemon, error) {
	d := &daemon{cfg: cfg}

	var sink sandbox.ViolationSink
	if cfg.Audit.DBPath != "" {
		store, err := audit.Open(cfg.Audit.DBPath)
		if err != nil {
			return nil, err
		}
		d.store = store
		sink = store
	}

	sb, err := sandbox.NewManager(cfg.SandboxConfig(), nil, sink)
	if err != nil {
		d.close()
		return nil, err
	}
	d.sandbox = sb

	d.bus = hook.NewBus(cfg.TimeoutStrategy())

	rulesText, err := cfg.RoutingRules()
	if err != nil {
		d.close()
		return nil, err
	}
	rules, err := backend.ParseRules(rulesText)
	if err != nil {
		d.close()
		return nil, err
	}
	// No runtime adapters ship yet; every routed backend is memory-backed.
	backends := make(map[string]backend.Backend)
	for _, name := range rules.Backends() {
		backends[name] = backend.NewMemory(name)
	}
	router, err := backend.NewRouter(rulesText, backends)
	if err != nil {
		d.close()
		return nil, err
	}
	d.service = backend.NewService(router, d.bus)

	var verifier plugin.SignatureVerifier = plugin.NoopVerifier{}
	if cfg.Plugins.RequireSignature {
		verifier, err = plugin.NewEd25519Verifier(cfg.Plugins.SigningKey)
		if err != nil {
			d.close()
			return nil, err
		}
	}

	hosts := map[plugin.Type]plugin.Host{
		plugin.TypeLua:    lua.NewHost(),
		plugin.TypeBinary: goplugin.NewHost(),
	}
	d.manager = plugin.NewManager(plugin.ManagerConfig{
		MaxPlugins:  cfg.Plugins.MaxPlugins,
		HotReload:   cfg.Plugins.HotReload,
		HostVersion: version.Host(),
	}, plugin.NewDirSource(cfg.Plugins.Dir), verifier, hosts, d.bus, sb)

	return d, nil
}

func (d *daemon) close() {
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			slog.Warn("error closing audit store", "error", err)
		}
	}
}

func runDaemon(ctx context.Context, cfg config.Config, cmd *cobra.Command) error {
	logging.SetDefault("vessel", version.Version, cfg.Log.Format)

	slog.Info("starting vessel daemon",
		"version", version.Version,
		"plugin_dir", cfg.Plugins.Dir,
		"sandbox_enabled", cfg.Sandbox.Enabled,
	)

	d, err := buildDaemon(cfg)
	if err != nil {
		return err
	}
	defer d.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if cfg.Plugins.AutoLoad {
		if err := d.manager.LoadAll(ctx); err != nil {
			slog.Warn("plugin auto-load reported failures", "error", err)
		}
	}
	d.markReady()

	go d.sandbox.Monitor(ctx, cfg.Sandbox.MonitorInterval)

	var obsServer *observability.Server
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, d.isReady)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return err
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Vessel daemon started")
	slog.Info("vessel daemon ready", "plugins_loaded", len(d.manager.Loaded()))

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	slog.Info("shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := d.manager.ShutdownAll(shutdownCtx); err != nil {
		slog.Warn("error during plugin shutdown", "error", err)
	}
	if err := d.bus.Drain(shutdownCtx); err != nil {
		slog.Warn("error draining hook bus", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels the daemon context when a server reports an
// error, triggering graceful shutdown. Exits when the channel closes or
// the context ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
