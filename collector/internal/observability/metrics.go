// Package observability exposes the collector's own internal Prometheus
// metrics: ingest throughput, per-status outcomes, and sink latency. It is
// a secondary surface — distinct from the events the collector stores —
// intended for operators running the collector fleet itself.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for collector self-monitoring. It
// uses a custom registry to avoid polluting the global default.
type Metrics struct {
	Registry *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	BatchesReceived *prometheus.CounterVec
	BatchEvents     prometheus.Histogram
	DecodeDuration  prometheus.Histogram
	SinkDuration    prometheus.Histogram

	AuthRejections prometheus.Counter
	DuplicateBatches prometheus.Counter
}

// NewMetrics creates a Metrics instance with all collectors registered on
// a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowmesh_collector_connections_active",
			Help: "Current number of open agent connections.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowmesh_collector_connections_total",
			Help: "Total number of agent connections accepted.",
		}),

		BatchesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowmesh_collector_batches_received_total",
			Help: "Total number of batches received, by outcome status.",
		}, []string{"status"}),
		BatchEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowmesh_collector_batch_events",
			Help:    "Number of events per received batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowmesh_collector_decode_duration_seconds",
			Help:    "Duration of batch checksum verification and decompression.",
			Buckets: prometheus.DefBuckets,
		}),
		SinkDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowmesh_collector_sink_duration_seconds",
			Help:    "Duration of the sink's store_events call.",
			Buckets: prometheus.DefBuckets,
		}),

		AuthRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowmesh_collector_auth_rejections_total",
			Help: "Total number of /ingest upgrades rejected by the auth guard.",
		}),
		DuplicateBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowmesh_collector_duplicate_batches_total",
			Help: "Total number of batch_ids seen more than once.",
		}),
	}

	reg.MustRegister(
		m.ConnectionsActive,
		m.ConnectionsTotal,
		m.BatchesReceived,
		m.BatchEvents,
		m.DecodeDuration,
		m.SinkDuration,
		m.AuthRejections,
		m.DuplicateBatches,
	)

	return m
}

// Handler returns the HTTP handler exposing this registry in Prometheus
// text exposition format, to be mounted at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
