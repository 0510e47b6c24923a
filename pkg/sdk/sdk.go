// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

// Package sdk provides the SDK for building Vessel binary plugins.
//
// Binary plugins run as child processes and talk to the vessel host over
// net/rpc using the HashiCorp go-plugin framework. A plugin implements
// the Hooks interface and hands it to Serve:
//
//	package main
//
//	import "github.com/vesselrun/vessel/pkg/sdk"
//
//	type Scanner struct{ sdk.BaseHooks }
//
//	func (s *Scanner) HandleEvent(evt sdk.Event) error {
//		// inspect evt.Payload["container"]
//		return nil
//	}
//
//	func main() {
//		sdk.Serve(&Scanner{})
//	}
//
// Lifecycle hooks a plugin does not care about can be left to BaseHooks,
// which returns ErrNotImplemented; the host treats that as "hook absent".
package sdk

import (
	"errors"

	hashiplug "github.com/hashicorp/go-plugin"
)

// ErrNotImplemented marks an optional hook the plugin does not provide.
// The host treats it as success (or HealthUnknown for HealthCheck).
var ErrNotImplemented = errors.New("sdk: hook not implemented")

// notImplementedMsg matches ErrNotImplemented across the rpc boundary,
// where errors arrive as strings.
const notImplementedMsg = "sdk: hook not implemented"

// IsNotImplemented reports whether an error, possibly received over rpc,
// is ErrNotImplemented.
func IsNotImplemented(err error) bool {
	return err != nil && (errors.Is(err, ErrNotImplemented) || err.Error() == notImplementedMsg)
}

// PluginInfo describes the plugin instance to itself at init time.
type PluginInfo struct {
	// Name is the plugin name from the manifest.
	Name string
	// Version is the plugin version from the manifest.
	Version string
	// WorkDir is the sandbox working directory the plugin may write to.
	WorkDir string
	// Capabilities lists the granted capability names.
	Capabilities []string
}

// Event is a hook event delivered to the plugin.
type Event struct {
	// ID is the unique event identifier (ULID string).
	ID string
	// Name is the event name (e.g. "container.pre_start").
	Name string
	// Time is the event time in Unix milliseconds.
	Time int64
	// Payload carries event data as string key/value pairs.
	Payload map[string]string
}

// Health values a HealthCheck may return.
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// Hooks is the contract between the vessel host and a binary plugin.
// Every method may be called from the host at any point in the plugin's
// lifetime; implementations must be safe for concurrent use.
type Hooks interface {
	// Init is called once after the process starts, before any events.
	Init(info PluginInfo) error

	// Deinit is called before the host stops the plugin process.
	Deinit() error

	// HealthCheck reports HealthHealthy or HealthUnhealthy.
	HealthCheck() (string, error)

	// Suspend pauses work ahead of a hot reload.
	Suspend() error

	// Resume continues after Suspend.
	Resume() error

	// PreShutdown warns of imminent host shutdown.
	PreShutdown() error

	// HandleEvent processes one hook event.
	HandleEvent(evt Event) error
}

// BaseHooks implements every optional hook with ErrNotImplemented.
// Embed it and override what the plugin needs.
type BaseHooks struct{}

// Init implements Hooks.
func (BaseHooks) Init(PluginInfo) error { return nil }

// Deinit implements Hooks.
func (BaseHooks) Deinit() error { return nil }

// HealthCheck implements Hooks.
func (BaseHooks) HealthCheck() (string, error) { return "", ErrNotImplemented }

// Suspend implements Hooks.
func (BaseHooks) Suspend() error { return ErrNotImplemented }

// Resume implements Hooks.
func (BaseHooks) Resume() error { return ErrNotImplemented }

// PreShutdown implements Hooks.
func (BaseHooks) PreShutdown() error { return ErrNotImplemented }

// HandleEvent implements Hooks.
func (BaseHooks) HandleEvent(Event) error { return nil }

// Handshake is shared by host and plugins so both sides agree on the
// protocol. The cookie is an identity check, not a security measure.
var Handshake = hashiplug.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "VESSEL_PLUGIN",
	MagicCookieValue: "0194b7e6-vessel-hooks",
}

// PluginName is the dispense key for the hooks plugin.
const PluginName = "hooks"

// PluginMap returns the go-plugin map serving the given implementation.
// Hosts pass nil.
func PluginMap(impl Hooks) map[string]hashiplug.Plugin {
	return map[string]hashiplug.Plugin{
		PluginName: &HooksPlugin{Impl: impl},
	}
}

// Serve runs the plugin side. It blocks for the life of the process.
func Serve(impl Hooks) {
	hashiplug.Serve(&hashiplug.ServeConfig{
		HandshakeConfig: Handshake,
		Plugins:         PluginMap(impl),
	})
}
