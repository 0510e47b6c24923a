// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultMonitorInterval paces the periodic resource-usage pass.
const DefaultMonitorInterval = 30 * time.Second

// SampleUsage takes one resource-usage snapshot across all active sandboxes
// and records a high-severity violation for every limit a plugin exceeds.
// This is detection, not enforcement: actual limiting belongs to the OS
// isolation mechanism. Sampling failures for one plugin are logged and do not
// stop the pass.
func (m *Manager) SampleUsage(ctx context.Context) {
	m.mu.RLock()
	snapshot := make([]*Sandbox, 0, len(m.sandboxes))
	for _, sb := range m.sandboxes {
		if sb != nil {
			snapshot = append(snapshot, sb)
		}
	}
	m.mu.RUnlock()

	for _, sb := range snapshot {
		usage, err := m.isolator.Sample(ctx, sb.handles)
		if err != nil {
			slog.Warn("failed to sample sandbox resource usage",
				"plugin", sb.plugin,
				"error", err)
			continue
		}
		for _, limit := range usage.Exceeds(sb.req) {
			m.violations.Append(ctx, sb.plugin, ViolationResourceLimit, SeverityHigh,
				fmt.Sprintf("resource limit exceeded: %s (memory=%dMB cpu=%d%% fds=%d threads=%d conns=%d disk=%dMB)",
					limit, usage.MemoryMB, usage.CPUPercent, usage.FileDescriptors,
					usage.Threads, usage.NetworkConnections, usage.DiskMB))
		}
	}
}

// Monitor runs the periodic usage pass until the context is canceled.
func (m *Manager) Monitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SampleUsage(ctx)
		}
	}
}
