// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package plugin

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status constants for plugin metrics.
const (
	StatusSuccess        = "success"
	StatusError          = "error"
	StatusNotFound       = "not_found"
	StatusDenied         = "denied"
	StatusNotAFunction   = "not_a_function"
	StatusNotLoaded      = "not_loaded"
	StatusStateCorrupted = "state_corrupted"
)

// LabelUnknown replaces object and method labels that name nothing
// registered.
const LabelUnknown = "unknown"

// CallsTotal counts plugin calls.
// Use RegisterMetrics to register this with a Prometheus registry.
var CallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jucid_plugin_calls_total",
		Help: "Total number of plugin method calls",
	},
	[]string{"plugin", "method", "status"},
)

// CallDuration is the histogram of plugin call duration.
// Use RegisterMetrics to register this with a Prometheus registry.
var CallDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "jucid_plugin_call_duration_seconds",
		Help:    "Plugin method call duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"plugin"},
)

// LoadsTotal counts plugin loads.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoadsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jucid_plugin_loads_total",
		Help: "Total number of plugin loads by outcome",
	},
	[]string{"plugin", "status"},
)

// RegisterMetrics registers plugin metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(CallsTotal)
	reg.MustRegister(CallDuration)
	reg.MustRegister(LoadsTotal)
}

// RecordCall increments the call counter and observes the call duration.
func RecordCall(plugin, method, status string, duration time.Duration) {
	CallsTotal.WithLabelValues(plugin, method, status).Inc()
	CallDuration.WithLabelValues(plugin).Observe(duration.Seconds())
}

// RecordLoad increments the load counter.
func RecordLoad(plugin, status string) {
	LoadsTotal.WithLabelValues(plugin, status).Inc()
}

// callStatus maps a call error to a metrics status.
func callStatus(code string, err error) string {
	if err == nil {
		return StatusSuccess
	}
	switch code {
	case CodeObjectNotFound:
		return StatusNotFound
	case CodeAccessDenied:
		return StatusDenied
	case CodeNotAFunction:
		return StatusNotAFunction
	case CodeNotLoaded:
		return StatusNotLoaded
	case CodeStateCorrupted:
		return StatusStateCorrupted
	default:
		return StatusError
	}
}
