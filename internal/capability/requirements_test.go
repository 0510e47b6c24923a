// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package capability_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselrun/vessel/internal/capability"
)

func TestResourceRequirements_WithDefaults(t *testing.T) {
	r := capability.ResourceRequirements{MaxMemoryMB: 512}.WithDefaults()

	assert.Equal(t, uint64(512), r.MaxMemoryMB, "declared value kept")
	assert.Equal(t, uint64(capability.DefaultMaxCPUPercent), r.MaxCPUPercent)
	assert.Equal(t, uint64(capability.DefaultMaxThreads), r.MaxThreads)
	assert.Equal(t, uint64(capability.DefaultTimeoutSeconds), r.TimeoutSeconds)
}

func TestResourceRequirements_Validate(t *testing.T) {
	require.NoError(t, capability.DefaultRequirements().Validate())

	bad := capability.ResourceRequirements{MaxCPUPercent: 150}
	require.Error(t, bad.Validate())
}

func TestResourceRequirements_Timeout(t *testing.T) {
	r := capability.ResourceRequirements{TimeoutSeconds: 7}
	assert.Equal(t, 7*time.Second, r.Timeout())
}

func TestUsage_Exceeds(t *testing.T) {
	req := capability.ResourceRequirements{
		MaxMemoryMB:        100,
		MaxCPUPercent:      50,
		MaxFileDescriptors: 10,
	}

	tests := []struct {
		name  string
		usage capability.Usage
		want  []string
	}{
		{
			name:  "within bounds",
			usage: capability.Usage{MemoryMB: 99, CPUPercent: 50, FileDescriptors: 10},
			want:  nil,
		},
		{
			name:  "memory over",
			usage: capability.Usage{MemoryMB: 101},
			want:  []string{"memory"},
		},
		{
			name:  "multiple over",
			usage: capability.Usage{MemoryMB: 200, CPUPercent: 90, FileDescriptors: 11},
			want:  []string{"memory", "cpu", "file_descriptors"},
		},
		{
			name:  "unset limit never breached",
			usage: capability.Usage{Threads: 999, DiskMB: 999},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.usage.Exceeds(req))
		})
	}
}
