// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package hook

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Status label values for hook dispatch metrics.
const (
	statusSuccess = "success"
	statusFailure = "failure"
	statusTimeout = "timeout"
)

// dispatches counts hook callback invocations by event and outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var dispatches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vessel_hook_dispatches_total",
		Help: "Total number of hook callback invocations",
	},
	[]string{"event", "status"},
)

// dispatchDuration is the histogram for hook callback durations.
// Use RegisterMetrics to register this with a Prometheus registry.
var dispatchDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "vessel_hook_dispatch_duration_seconds",
		Help:    "Hook callback duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"event"},
)

// reentrancySkips counts dispatches skipped by the reentrancy guard.
// Use RegisterMetrics to register this with a Prometheus registry.
var reentrancySkips = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "vessel_hook_reentrancy_skips_total",
		Help: "Total number of hook dispatches skipped because the plugin was mid-execution",
	},
	[]string{"plugin"},
)

// RegisterMetrics registers hook package metrics with the given Prometheus
// registry. Must be called at startup to make metrics available on /metrics.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(dispatches)
	reg.MustRegister(dispatchDuration)
	reg.MustRegister(reentrancySkips)
}
