// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package plugin

import "github.com/prometheus/client_golang/prometheus"

var (
	loadedPlugins = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vessel_plugins_loaded",
		Help: "Number of plugins currently loaded.",
	})

	stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vessel_plugin_state_transitions_total",
		Help: "Plugin lifecycle state transitions.",
	}, []string{"plugin", "state"})

	loadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vessel_plugin_load_duration_seconds",
		Help:    "Time spent loading a plugin, including sandbox setup.",
		Buckets: prometheus.DefBuckets,
	})

	loadFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vessel_plugin_load_failures_total",
		Help: "Plugin load failures by error code.",
	}, []string{"plugin", "code"})

	healthChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vessel_plugin_health_checks_total",
		Help: "Plugin health probe results.",
	}, []string{"plugin", "health"})
)

// RegisterMetrics registers plugin manager metrics with the registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(loadedPlugins, stateTransitions, loadDuration, loadFailures, healthChecks)
}
