// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package sandbox

import (
	"context"
	"fmt"

	"github.com/samber/oops"

	"github.com/vesselrun/vessel/internal/capability"
)

// NetworkOp is the kind of network access being validated.
type NetworkOp string

// Network operations.
const (
	NetworkConnect NetworkOp = "connect"
	NetworkBind    NetworkOp = "bind"
	NetworkListen  NetworkOp = "listen"
)

func (op NetworkOp) requiredCapability() (capability.Capability, error) {
	switch op {
	case NetworkConnect:
		return capability.NetworkClient, nil
	case NetworkBind, NetworkListen:
		return capability.NetworkServer, nil
	default:
		return 0, fmt.Errorf("unknown network operation %q", op)
	}
}

// ValidateNetworkAccess checks a network operation for the plugin. The
// capability check runs first (network.client for outbound connects,
// network.server for bind/listen); the sandbox's network mode then constrains
// further: restricted permits outbound only, isolated denies everything
// regardless of capability.
func (m *Manager) ValidateNetworkAccess(ctx context.Context, plugin string, op NetworkOp) error {
	sb, err := m.lookup(plugin)
	if err != nil {
		return err
	}

	required, err := op.requiredCapability()
	if err != nil {
		return oops.Code(CodeConfigInvalid).With("plugin", plugin).Wrap(err)
	}
	if err := m.requireCapability(ctx, sb, required,
		fmt.Sprintf("network %s denied: missing %s", op, required)); err != nil {
		return err
	}

	switch m.cfg.NetworkMode {
	case NetworkIsolated:
		m.violations.Append(ctx, plugin, ViolationNetworkAccess, SeverityMedium,
			fmt.Sprintf("network %s denied: network is isolated", op))
		return oops.Code(CodeIsolationViolated).
			With("plugin", plugin).
			With("operation", string(op)).
			New("network access is isolated")
	case NetworkRestricted:
		if op != NetworkConnect {
			m.violations.Append(ctx, plugin, ViolationNetworkAccess, SeverityMedium,
				fmt.Sprintf("network %s denied: only outbound connections allowed", op))
			return oops.Code(CodeIsolationViolated).
				With("plugin", plugin).
				With("operation", string(op)).
				New("network mode restricts to outbound connections")
		}
	case NetworkNone:
	}
	return nil
}
