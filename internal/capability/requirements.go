// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package capability

import (
	"fmt"
	"time"
)

// Default resource limits applied when a manifest omits a field.
const (
	DefaultMaxMemoryMB           = 128
	DefaultMaxCPUPercent         = 25
	DefaultMaxFileDescriptors    = 64
	DefaultMaxThreads            = 8
	DefaultTimeoutSeconds        = 30
	DefaultMaxNetworkConnections = 16
	DefaultMaxDiskMB             = 256
)

// ResourceRequirements are the quantitative limits a plugin declares. They
// size the sandbox's isolation limits and are the threshold the usage monitor
// judges observed consumption against.
type ResourceRequirements struct {
	MaxMemoryMB           uint64 `yaml:"max-memory-mb,omitempty" json:"max-memory-mb,omitempty"`
	MaxCPUPercent         uint64 `yaml:"max-cpu-percent,omitempty" json:"max-cpu-percent,omitempty"`
	MaxFileDescriptors    uint64 `yaml:"max-file-descriptors,omitempty" json:"max-file-descriptors,omitempty"`
	MaxThreads            uint64 `yaml:"max-threads,omitempty" json:"max-threads,omitempty"`
	TimeoutSeconds        uint64 `yaml:"timeout-seconds,omitempty" json:"timeout-seconds,omitempty"`
	MaxNetworkConnections uint64 `yaml:"max-network-connections,omitempty" json:"max-network-connections,omitempty"`
	MaxDiskMB             uint64 `yaml:"max-disk-mb,omitempty" json:"max-disk-mb,omitempty"`
}

// DefaultRequirements returns the host defaults.
func DefaultRequirements() ResourceRequirements {
	return ResourceRequirements{
		MaxMemoryMB:           DefaultMaxMemoryMB,
		MaxCPUPercent:         DefaultMaxCPUPercent,
		MaxFileDescriptors:    DefaultMaxFileDescriptors,
		MaxThreads:            DefaultMaxThreads,
		TimeoutSeconds:        DefaultTimeoutSeconds,
		MaxNetworkConnections: DefaultMaxNetworkConnections,
		MaxDiskMB:             DefaultMaxDiskMB,
	}
}

// WithDefaults fills zero fields from the host defaults.
func (r ResourceRequirements) WithDefaults() ResourceRequirements {
	d := DefaultRequirements()
	if r.MaxMemoryMB == 0 {
		r.MaxMemoryMB = d.MaxMemoryMB
	}
	if r.MaxCPUPercent == 0 {
		r.MaxCPUPercent = d.MaxCPUPercent
	}
	if r.MaxFileDescriptors == 0 {
		r.MaxFileDescriptors = d.MaxFileDescriptors
	}
	if r.MaxThreads == 0 {
		r.MaxThreads = d.MaxThreads
	}
	if r.TimeoutSeconds == 0 {
		r.TimeoutSeconds = d.TimeoutSeconds
	}
	if r.MaxNetworkConnections == 0 {
		r.MaxNetworkConnections = d.MaxNetworkConnections
	}
	if r.MaxDiskMB == 0 {
		r.MaxDiskMB = d.MaxDiskMB
	}
	return r
}

// Validate checks requirement bounds.
func (r ResourceRequirements) Validate() error {
	if r.MaxCPUPercent > 100 {
		return fmt.Errorf("max-cpu-percent must be <= 100, got %d", r.MaxCPUPercent)
	}
	return nil
}

// Timeout returns the operation timeout as a duration.
func (r ResourceRequirements) Timeout() time.Duration {
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// Usage is one observed resource sample for a sandboxed plugin.
type Usage struct {
	MemoryMB           uint64
	CPUPercent         uint64
	FileDescriptors    uint64
	Threads            uint64
	NetworkConnections uint64
	DiskMB             uint64
	SampledAt          time.Time
}

// Exceeds returns the names of limits the sample breaches, empty when the
// sample is within bounds.
func (u Usage) Exceeds(r ResourceRequirements) []string {
	var over []string
	if r.MaxMemoryMB > 0 && u.MemoryMB > r.MaxMemoryMB {
		over = append(over, "memory")
	}
	if r.MaxCPUPercent > 0 && u.CPUPercent > r.MaxCPUPercent {
		over = append(over, "cpu")
	}
	if r.MaxFileDescriptors > 0 && u.FileDescriptors > r.MaxFileDescriptors {
		over = append(over, "file_descriptors")
	}
	if r.MaxThreads > 0 && u.Threads > r.MaxThreads {
		over = append(over, "threads")
	}
	if r.MaxNetworkConnections > 0 && u.NetworkConnections > r.MaxNetworkConnections {
		over = append(over, "network_connections")
	}
	if r.MaxDiskMB > 0 && u.DiskMB > r.MaxDiskMB {
		over = append(over, "disk")
	}
	return over
}
