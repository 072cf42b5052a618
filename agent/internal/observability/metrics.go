// Package observability exposes the agent's own internal Prometheus
// metrics: buffer depth, batching throughput, and transport health. It is
// a secondary surface — distinct from the events the agent ships to the
// collector — intended for operators running the agent fleet itself.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for agent self-monitoring. It uses
// a custom registry to avoid polluting the global default.
type Metrics struct {
	Registry *prometheus.Registry

	BufferDepth   prometheus.Gauge
	BufferDropped prometheus.Counter

	BatchesEmitted   *prometheus.CounterVec
	BatchSizeEvents  prometheus.Histogram
	BatchSizeBytes   prometheus.Histogram
	CompressDuration prometheus.Histogram

	TransportState        *prometheus.GaugeVec
	TransportReconnects    prometheus.Counter
	TransportAcksReceived  *prometheus.CounterVec
	TransportAckDuration   prometheus.Histogram

	ProducerEventsTotal *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance with all collectors registered on
// a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		BufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "flowmesh_agent_buffer_depth",
			Help: "Current number of events queued in the ring buffer.",
		}),
		BufferDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowmesh_agent_buffer_dropped_total",
			Help: "Total number of events dropped because the ring buffer was full.",
		}),

		BatchesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowmesh_agent_batches_emitted_total",
			Help: "Total number of batches handed to the transport, by compression scheme.",
		}, []string{"compression"}),
		BatchSizeEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowmesh_agent_batch_size_events",
			Help:    "Number of events per emitted batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		BatchSizeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowmesh_agent_batch_size_bytes",
			Help:    "Compressed size in bytes per emitted batch.",
			Buckets: prometheus.ExponentialBuckets(128, 4, 10),
		}),
		CompressDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowmesh_agent_compress_duration_seconds",
			Help:    "Duration of batch compression.",
			Buckets: prometheus.DefBuckets,
		}),

		TransportState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flowmesh_agent_transport_state",
			Help: "Current transport connection state (1 = active for this label, 0 otherwise).",
		}, []string{"state"}),
		TransportReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowmesh_agent_transport_reconnects_total",
			Help: "Total number of reconnect attempts to the collector.",
		}),
		TransportAcksReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowmesh_agent_transport_acks_total",
			Help: "Total number of ingest acknowledgements received, by status.",
		}, []string{"status"}),
		TransportAckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flowmesh_agent_transport_ack_duration_seconds",
			Help:    "Time from sending a batch to receiving its acknowledgement.",
			Buckets: prometheus.DefBuckets,
		}),

		ProducerEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowmesh_agent_producer_events_total",
			Help: "Total number of events produced, by producer.",
		}, []string{"producer"}),
	}

	reg.MustRegister(
		m.BufferDepth,
		m.BufferDropped,
		m.BatchesEmitted,
		m.BatchSizeEvents,
		m.BatchSizeBytes,
		m.CompressDuration,
		m.TransportState,
		m.TransportReconnects,
		m.TransportAcksReceived,
		m.TransportAckDuration,
		m.ProducerEventsTotal,
	)

	return m
}

// Handler returns the HTTP handler exposing this registry in Prometheus
// text exposition format, to be mounted at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
