// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package plugin

import (
	"context"

	"github.com/vesselrun/vessel/internal/hook"
)

// Host manages a specific plugin runtime type.
type Host interface {
	// Load initializes a plugin from its manifest. The execution context
	// carries the plugin's identity and granted capabilities.
	Load(ctx context.Context, manifest *Manifest, dir string, pctx *Context) error

	// Unload tears down a plugin, running its deinit hook first.
	Unload(ctx context.Context, name string) error

	// Suspend pauses a plugin ahead of a hot reload.
	Suspend(ctx context.Context, name string) error

	// Resume unpauses a suspended plugin.
	Resume(ctx context.Context, name string) error

	// PreShutdown notifies a plugin of imminent host shutdown.
	PreShutdown(ctx context.Context, name string) error

	// HealthCheck probes a plugin. Plugins without a health hook report
	// HealthUnknown.
	HealthCheck(ctx context.Context, name string) (Health, error)

	// DeliverEvent sends a hook event to a plugin.
	DeliverEvent(ctx context.Context, name string, event hook.Event) error

	// Plugins returns names of all plugins this host has loaded.
	Plugins() []string

	// Close shuts down the host and all its plugins.
	Close(ctx context.Context) error
}
