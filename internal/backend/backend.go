// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

// Package backend routes container operations to interchangeable OCI
// runtimes. The routing table is declared in a small rules DSL; concrete
// runtime adapters plug in behind the Backend interface.
package backend

import (
	"context"
	"time"
)

// ContainerSpec describes a container to create.
type ContainerSpec struct {
	Name        string
	Image       string
	Runtime     string
	OS          string
	Arch        string
	Annotations map[string]string
}

// ContainerState is the lifecycle state a backend reports for a container.
type ContainerState string

// Container states.
const (
	StateCreated ContainerState = "created"
	StateRunning ContainerState = "running"
	StateStopped ContainerState = "stopped"
)

// ContainerInfo is a backend's view of one container.
type ContainerInfo struct {
	Name      string
	Backend   string
	State     ContainerState
	Spec      ContainerSpec
	CreatedAt time.Time
}

// Backend is a container runtime adapter.
type Backend interface {
	// Name identifies the backend in routing rules and container info.
	Name() string
	Create(ctx context.Context, spec ContainerSpec) error
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Delete(ctx context.Context, name string) error
	// Exec runs a command inside a running container and returns its
	// combined output.
	Exec(ctx context.Context, name string, cmd []string) (string, error)
	List(ctx context.Context) ([]ContainerInfo, error)
	Info(ctx context.Context, name string) (ContainerInfo, error)
}
