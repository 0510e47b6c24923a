// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package backend

import (
	"context"
	"log/slog"
	"sync"

	"github.com/samber/oops"

	"github.com/vesselrun/vessel/internal/hook"
)

// Lifecycle event names published through the hook bus. Pre events fire
// before the backend operation, post events only after it succeeds.
const (
	EventPreCreate  = "container.pre_create"
	EventPostCreate = "container.post_create"
	EventPreStart   = "container.pre_start"
	EventPostStart  = "container.post_start"
	EventPreStop    = "container.pre_stop"
	EventPostStop   = "container.post_stop"
	EventPreDelete  = "container.pre_delete"
	EventPostDelete = "container.post_delete"
	EventPreExec    = "container.pre_exec"
	EventPostExec   = "container.post_exec"
)

// Service routes container operations through the rule table and publishes
// lifecycle events so plugins can observe them. Hook failures are counted
// by the bus but never fail the container operation.
type Service struct {
	router *Router
	bus    *hook.Bus

	mu       sync.RWMutex
	assigned map[string]Backend
}

// NewService wraps a router. bus may be nil when no plugins are hosted.
func NewService(router *Router, bus *hook.Bus) *Service {
	return &Service{
		router:   router,
		bus:      bus,
		assigned: make(map[string]Backend),
	}
}

// Create routes the spec to a backend and creates the container.
func (s *Service) Create(ctx context.Context, spec ContainerSpec) error {
	b, err := s.router.Select(spec)
	if err != nil {
		return err
	}

	payload := map[string]string{
		"container": spec.Name,
		"image":     spec.Image,
		"backend":   b.Name(),
	}
	s.publish(ctx, EventPreCreate, payload)

	if err := b.Create(ctx, spec); err != nil {
		return oops.In("backend").With("backend", b.Name()).Wrap(err)
	}

	s.mu.Lock()
	s.assigned[spec.Name] = b
	s.mu.Unlock()

	s.publish(ctx, EventPostCreate, payload)
	slog.Info("container created", "container", spec.Name, "backend", b.Name())
	return nil
}

// Start starts a previously created container.
func (s *Service) Start(ctx context.Context, name string) error {
	return s.lifecycle(ctx, name, EventPreStart, EventPostStart, func(b Backend) error {
		return b.Start(ctx, name)
	})
}

// Stop stops a running container.
func (s *Service) Stop(ctx context.Context, name string) error {
	return s.lifecycle(ctx, name, EventPreStop, EventPostStop, func(b Backend) error {
		return b.Stop(ctx, name)
	})
}

// Delete removes a stopped container and releases its routing assignment.
func (s *Service) Delete(ctx context.Context, name string) error {
	err := s.lifecycle(ctx, name, EventPreDelete, EventPostDelete, func(b Backend) error {
		return b.Delete(ctx, name)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.assigned, name)
	s.mu.Unlock()
	return nil
}

// Exec runs a command inside a running container.
func (s *Service) Exec(ctx context.Context, name string, cmd []string) (string, error) {
	b, err := s.backendFor(name)
	if err != nil {
		return "", err
	}

	payload := map[string]string{"container": name, "backend": b.Name()}
	s.publish(ctx, EventPreExec, payload)

	out, err := b.Exec(ctx, name, cmd)
	if err != nil {
		return "", oops.In("backend").With("backend", b.Name()).Wrap(err)
	}

	s.publish(ctx, EventPostExec, payload)
	return out, nil
}

// List aggregates containers across every registered backend.
func (s *Service) List(ctx context.Context) ([]ContainerInfo, error) {
	var out []ContainerInfo
	for _, b := range s.router.Backends() {
		infos, err := b.List(ctx)
		if err != nil {
			return nil, oops.In("backend").With("backend", b.Name()).Wrap(err)
		}
		out = append(out, infos...)
	}
	return out, nil
}

// Info returns the owning backend's view of one container.
func (s *Service) Info(ctx context.Context, name string) (ContainerInfo, error) {
	b, err := s.backendFor(name)
	if err != nil {
		return ContainerInfo{}, err
	}
	return b.Info(ctx, name)
}

func (s *Service) lifecycle(ctx context.Context, name, pre, post string, op func(Backend) error) error {
	b, err := s.backendFor(name)
	if err != nil {
		return err
	}

	payload := map[string]string{"container": name, "backend": b.Name()}
	s.publish(ctx, pre, payload)

	if err := op(b); err != nil {
		return oops.In("backend").With("backend", b.Name()).Wrap(err)
	}

	s.publish(ctx, post, payload)
	return nil
}

// backendFor resolves the backend owning name, preferring the assignment
// recorded at create time and falling back to asking each backend.
func (s *Service) backendFor(name string) (Backend, error) {
	s.mu.RLock()
	b, ok := s.assigned[name]
	s.mu.RUnlock()
	if ok {
		return b, nil
	}

	for _, candidate := range s.router.Backends() {
		if _, err := candidate.Info(context.Background(), name); err == nil {
			return candidate, nil
		}
	}
	return nil, oops.Code(CodeContainerNotFound).With("container", name).Errorf("container not found")
}

func (s *Service) publish(ctx context.Context, event string, payload map[string]string) {
	if s.bus == nil {
		return
	}
	report := s.bus.Dispatch(ctx, hook.NewEvent(event, payload))
	if report.Failed > 0 || report.TimedOut > 0 {
		slog.Warn("container event hooks reported failures",
			"event", event,
			"failed", report.Failed,
			"timed_out", report.TimedOut)
	}
}
