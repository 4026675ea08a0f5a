// Package metrics exposes Prometheus instrumentation for the request
// pipeline and chunk store, grounded in the teacher's
// pkg/metrics/prometheus counters/histograms/gauges.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles every metric the server emits. A nil *Registry is safe
// to call methods on — every method no-ops when m is nil, so metrics can
// be disabled with zero overhead and no call-site branching.
type Registry struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	csWriteDuration   prometheus.Histogram
	csReadDuration    prometheus.Histogram
	deletionQueueSize prometheus.Gauge
}

// NewRegistry registers every metric against reg and returns the bundle.
func NewRegistry(reg *prometheus.Registry) *Registry {
	return &Registry{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "warpdrive_operations_total",
				Help: "Total number of object operations by API surface, operation, and status",
			},
			[]string{"surface", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "warpdrive_operation_duration_seconds",
				Help:    "Duration of object operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"surface", "operation"},
		),
		csWriteDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warpdrive_chunkstore_write_duration_seconds",
				Help:    "Duration of chunk store writes in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		csReadDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "warpdrive_chunkstore_read_duration_seconds",
				Help:    "Duration of chunk store reads in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		deletionQueueSize: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "warpdrive_deletion_queue_depth",
				Help: "Number of unprocessed deletion tasks as of the last sweep",
			},
		),
	}
}

// ObserveOperation records a surface/operation outcome and its latency.
func (m *Registry) ObserveOperation(surface, operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(surface, operation, status).Inc()
	m.operationDuration.WithLabelValues(surface, operation).Observe(duration.Seconds())
}

// ObserveChunkStoreWrite records a chunk store write's latency.
func (m *Registry) ObserveChunkStoreWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.csWriteDuration.Observe(duration.Seconds())
}

// ObserveChunkStoreRead records a chunk store read's latency.
func (m *Registry) ObserveChunkStoreRead(duration time.Duration) {
	if m == nil {
		return
	}
	m.csReadDuration.Observe(duration.Seconds())
}

// SetDeletionQueueDepth reports the current unprocessed deletion task count.
func (m *Registry) SetDeletionQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.deletionQueueSize.Set(float64(depth))
}
