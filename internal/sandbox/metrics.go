// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package sandbox

import (
	"github.com/prometheus/client_golang/prometheus"
)

// capabilityDenials counts capability check failures by plugin and capability.
// Use RegisterMetrics to register this with a Prometheus registry.
var capabilityDenials = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vessel_sandbox_capability_denials_total",
		Help: "Total number of denied capability checks",
	},
	[]string{"plugin", "capability"},
)

// violationsTotal counts recorded security violations by kind and severity.
// Use RegisterMetrics to register this with a Prometheus registry.
var violationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vessel_sandbox_violations_total",
		Help: "Total number of recorded security violations",
	},
	[]string{"kind", "severity"},
)

// commandExecutions counts host commands run on behalf of plugins.
// Use RegisterMetrics to register this with a Prometheus registry.
var commandExecutions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vessel_sandbox_command_executions_total",
		Help: "Total number of host commands executed for plugins",
	},
	[]string{"plugin", "status"},
)

// activeSandboxes tracks the number of live sandboxes.
// Use RegisterMetrics to register this with a Prometheus registry.
var activeSandboxes = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "vessel_sandbox_active",
		Help: "Number of active plugin sandboxes",
	},
)

// RegisterMetrics registers sandbox package metrics with the given Prometheus
// registry. Must be called at startup to make metrics available on /metrics.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(capabilityDenials)
	reg.MustRegister(violationsTotal)
	reg.MustRegister(commandExecutions)
	reg.MustRegister(activeSandboxes)
}
