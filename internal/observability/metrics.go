// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the daemon-level collectors. Per-call plugin metrics live
// in the plugin package and are attached through NewServer's register funcs.
type Metrics struct {
	ReloadsTotal  *prometheus.CounterVec
	PluginsLoaded prometheus.Gauge
}

// NewMetrics builds the daemon collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jucid_reloads_total",
			Help: "Total number of plugin directory reloads by status",
		}, []string{"status"}),
		PluginsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "jucid_plugins_loaded",
			Help: "Number of plugin objects currently registered",
		}),
	}
	reg.MustRegister(m.ReloadsTotal, m.PluginsLoaded)
	return m
}

// RecordReload counts one finished reload with the given status.
func (m *Metrics) RecordReload(status string) {
	m.ReloadsTotal.WithLabelValues(status).Inc()
}

// SetPluginsLoaded reports how many objects the registry currently holds.
func (m *Metrics) SetPluginsLoaded(n int) {
	m.PluginsLoaded.Set(float64(n))
}
