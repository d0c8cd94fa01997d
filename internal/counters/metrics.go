// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package counters

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all bridge Prometheus metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	EventsTotal            *prometheus.CounterVec
	InvalidJSONTotal       prometheus.Counter
	FingerprintWritesTotal prometheus.Counter
	EnrichedTotal          prometheus.Counter
	EnrichTruncatedTotal   prometheus.Counter
	DHCPWritesTotal        prometheus.Counter
	NDPEmittedTotal        *prometheus.CounterVec
	NDPSkippedTotal        *prometheus.CounterVec
	HealthTotal            prometheus.Counter
	RedisErrorsTotal       prometheus.Counter
	SinkDeliveredTotal     *prometheus.CounterVec
	SinkErrorsTotal        *prometheus.CounterVec

	LastEventUnix prometheus.Gauge
}

// NewMetrics creates and registers the bridge metric set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meer_events_total",
			Help: "Total number of events decoded, by event type",
		}, []string{"type"}),
		InvalidJSONTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meer_invalid_json_total",
			Help: "Total number of input lines dropped as invalid JSON",
		}),
		FingerprintWritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meer_fingerprint_writes_total",
			Help: "Total number of fingerprint rule alerts written to the correlation store",
		}),
		EnrichedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meer_enriched_total",
			Help: "Total number of alerts that received correlation data",
		}),
		EnrichTruncatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meer_enrich_truncated_total",
			Help: "Total number of alerts whose enrichment stopped at the payload bound",
		}),
		DHCPWritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meer_dhcp_writes_total",
			Help: "Total number of dhcp correlation records stored",
		}),
		NDPEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meer_ndp_emitted_total",
			Help: "Total number of NDP observations emitted, by observation type",
		}, []string{"type"}),
		NDPSkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meer_ndp_skipped_total",
			Help: "Total number of NDP observations suppressed by dedup, by observation type",
		}, []string{"type"}),
		HealthTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meer_health_total",
			Help: "Total number of health check alerts consumed",
		}),
		RedisErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "meer_redis_errors_total",
			Help: "Total number of failed correlation store operations",
		}),
		SinkDeliveredTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meer_sink_delivered_total",
			Help: "Total number of events delivered, by sink",
		}, []string{"sink"}),
		SinkErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meer_sink_errors_total",
			Help: "Total number of failed deliveries, by sink",
		}, []string{"sink"}),

		LastEventUnix: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "meer_last_event_timestamp_seconds",
			Help: "Unix time of the last event decoded",
		}),
	}

	m.registry.MustRegister(
		m.EventsTotal,
		m.InvalidJSONTotal,
		m.FingerprintWritesTotal,
		m.EnrichedTotal,
		m.EnrichTruncatedTotal,
		m.DHCPWritesTotal,
		m.NDPEmittedTotal,
		m.NDPSkippedTotal,
		m.HealthTotal,
		m.RedisErrorsTotal,
		m.SinkDeliveredTotal,
		m.SinkErrorsTotal,
		m.LastEventUnix,
	)

	return m
}

// Registry exposes the private registry for /metrics and for the stats
// gauges to hook into.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
