// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

// Package isolation is the boundary to the host OS isolation mechanisms.
// The sandbox calls this interface to establish namespaces, cgroups, and
// seccomp filters and to sample resource usage; kernel mechanics live behind
// it, not in this module.
package isolation

import (
	"context"

	"github.com/vesselrun/vessel/internal/capability"
)

// Handles are the opaque references an Isolator hands back for one plugin.
// The sandbox stores and returns them verbatim; only the issuing Isolator
// interprets them.
type Handles struct {
	Namespace     string
	CgroupPath    string
	SeccompFilter string
}

// Isolator provisions and tears down OS-level isolation for one plugin.
type Isolator interface {
	// Setup establishes isolation sized by the plugin's declared limits.
	Setup(ctx context.Context, plugin string, req capability.ResourceRequirements) (Handles, error)

	// Teardown releases the handles. Must be safe to call with handles from
	// a failed Setup.
	Teardown(ctx context.Context, handles Handles) error

	// Sample reports current resource consumption for the isolated plugin.
	Sample(ctx context.Context, handles Handles) (capability.Usage, error)
}

// Noop is the isolator used when sandbox enforcement is globally disabled.
// It grants empty handles and reports zero usage; logical capability checks
// in the sandbox stay fully active.
type Noop struct{}

// Setup returns empty handles.
func (Noop) Setup(_ context.Context, _ string, _ capability.ResourceRequirements) (Handles, error) {
	return Handles{}, nil
}

// Teardown does nothing.
func (Noop) Teardown(_ context.Context, _ Handles) error { return nil }

// Sample reports zero usage.
func (Noop) Sample(_ context.Context, _ Handles) (capability.Usage, error) {
	return capability.Usage{}, nil
}
