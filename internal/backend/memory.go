// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package backend

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/oops"
)

// Memory is an in-memory backend. It tracks container state without
// running anything and backs the default "noop" routing target on hosts
// with no runtime adapters configured.
type Memory struct {
	name string

	mu         sync.RWMutex
	containers map[string]*memContainer
}

type memContainer struct {
	spec      ContainerSpec
	state     ContainerState
	createdAt time.Time
}

// NewMemory creates an in-memory backend with the given routing name.
func NewMemory(name string) *Memory {
	return &Memory{name: name, containers: make(map[string]*memContainer)}
}

func (m *Memory) Name() string { return m.name }

func (m *Memory) Create(_ context.Context, spec ContainerSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.containers[spec.Name]; ok {
		return oops.Code(CodeContainerExists).With("container", spec.Name).Errorf("container already exists")
	}
	m.containers[spec.Name] = &memContainer{
		spec:      spec,
		state:     StateCreated,
		createdAt: time.Now().UTC(),
	}
	return nil
}

func (m *Memory) Start(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(name)
	if err != nil {
		return err
	}
	if c.state == StateRunning {
		return oops.Code(CodeContainerState).With("container", name).Errorf("container already running")
	}
	c.state = StateRunning
	return nil
}

func (m *Memory) Stop(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(name)
	if err != nil {
		return err
	}
	if c.state != StateRunning {
		return oops.Code(CodeContainerState).With("container", name).Errorf("container not running")
	}
	c.state = StateStopped
	return nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, err := m.get(name)
	if err != nil {
		return err
	}
	if c.state == StateRunning {
		return oops.Code(CodeContainerState).With("container", name).Errorf("cannot delete running container")
	}
	delete(m.containers, name)
	return nil
}

func (m *Memory) Exec(_ context.Context, name string, cmd []string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.get(name)
	if err != nil {
		return "", err
	}
	if c.state != StateRunning {
		return "", oops.Code(CodeContainerState).With("container", name).Errorf("container not running")
	}
	// Nothing actually runs; echo the command back so callers see output.
	return strings.Join(cmd, " ") + "\n", nil
}

func (m *Memory) List(_ context.Context) ([]ContainerInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ContainerInfo, 0, len(m.containers))
	for name, c := range m.containers {
		out = append(out, m.info(name, c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) Info(_ context.Context, name string) (ContainerInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, err := m.get(name)
	if err != nil {
		return ContainerInfo{}, err
	}
	return m.info(name, c), nil
}

func (m *Memory) get(name string) (*memContainer, error) {
	c, ok := m.containers[name]
	if !ok {
		return nil, oops.Code(CodeContainerNotFound).With("container", name).Errorf("container not found")
	}
	return c, nil
}

func (m *Memory) info(name string, c *memContainer) ContainerInfo {
	return ContainerInfo{
		Name:      name,
		Backend:   m.name,
		State:     c.state,
		Spec:      c.spec,
		CreatedAt: c.createdAt,
	}
}
