// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package sdk

import (
	"errors"
	"net/rpc"

	hashiplug "github.com/hashicorp/go-plugin"
)

// HooksPlugin is the go-plugin shim for the Hooks interface over net/rpc.
// Impl is set on the plugin side; the host side leaves it nil.
type HooksPlugin struct {
	Impl Hooks
}

// Server returns the rpc server wrapping the plugin implementation.
func (p *HooksPlugin) Server(*hashiplug.MuxBroker) (any, error) {
	if p.Impl == nil {
		return nil, errors.New("sdk: plugin implementation is nil")
	}
	return &HooksRPCServer{impl: p.Impl}, nil
}

// Client returns the host-side proxy implementing Hooks.
func (p *HooksPlugin) Client(_ *hashiplug.MuxBroker, c *rpc.Client) (any, error) {
	return &HooksRPCClient{client: c}, nil
}

// HooksRPCServer adapts a Hooks implementation to net/rpc. Exported
// because go-plugin serves it by reflection.
type HooksRPCServer struct {
	impl Hooks
}

// Init forwards to the implementation.
func (s *HooksRPCServer) Init(info PluginInfo, _ *struct{}) error {
	return s.impl.Init(info)
}

// Deinit forwards to the implementation.
func (s *HooksRPCServer) Deinit(_ struct{}, _ *struct{}) error {
	return s.impl.Deinit()
}

// HealthCheck forwards to the implementation.
func (s *HooksRPCServer) HealthCheck(_ struct{}, resp *string) error {
	health, err := s.impl.HealthCheck()
	*resp = health
	return err
}

// Suspend forwards to the implementation.
func (s *HooksRPCServer) Suspend(_ struct{}, _ *struct{}) error {
	return s.impl.Suspend()
}

// Resume forwards to the implementation.
func (s *HooksRPCServer) Resume(_ struct{}, _ *struct{}) error {
	return s.impl.Resume()
}

// PreShutdown forwards to the implementation.
func (s *HooksRPCServer) PreShutdown(_ struct{}, _ *struct{}) error {
	return s.impl.PreShutdown()
}

// HandleEvent forwards to the implementation.
func (s *HooksRPCServer) HandleEvent(evt Event, _ *struct{}) error {
	return s.impl.HandleEvent(evt)
}

// HooksRPCClient is the host-side Hooks proxy.
type HooksRPCClient struct {
	client *rpc.Client
}

var _ Hooks = (*HooksRPCClient)(nil)

// Init implements Hooks.
func (c *HooksRPCClient) Init(info PluginInfo) error {
	return c.client.Call("Plugin.Init", info, new(struct{}))
}

// Deinit implements Hooks.
func (c *HooksRPCClient) Deinit() error {
	return c.client.Call("Plugin.Deinit", struct{}{}, new(struct{}))
}

// HealthCheck implements Hooks.
func (c *HooksRPCClient) HealthCheck() (string, error) {
	var health string
	err := c.client.Call("Plugin.HealthCheck", struct{}{}, &health)
	return health, err
}

// Suspend implements Hooks.
func (c *HooksRPCClient) Suspend() error {
	return c.client.Call("Plugin.Suspend", struct{}{}, new(struct{}))
}

// Resume implements Hooks.
func (c *HooksRPCClient) Resume() error {
	return c.client.Call("Plugin.Resume", struct{}{}, new(struct{}))
}

// PreShutdown implements Hooks.
func (c *HooksRPCClient) PreShutdown() error {
	return c.client.Call("Plugin.PreShutdown", struct{}{}, new(struct{}))
}

// HandleEvent implements Hooks.
func (c *HooksRPCClient) HandleEvent(evt Event) error {
	return c.client.Call("Plugin.HandleEvent", evt, new(struct{}))
}
