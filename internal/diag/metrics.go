// Prometheus mirrors of the pipeline self-diagnostic counters.
package diag

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsEnqueued counts records accepted into the buffer.
	// Labels: kind (traces, logs, metrics)
	RecordsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otelship",
			Subsystem: "pipeline",
			Name:      "records_enqueued_total",
			Help:      "Total number of telemetry records enqueued",
		},
		[]string{"kind"},
	)

	// RecordsDropped counts records evicted due to buffer overflow.
	// Labels: kind
	RecordsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otelship",
			Subsystem: "pipeline",
			Name:      "records_dropped_total",
			Help:      "Total number of telemetry records dropped due to a full buffer",
		},
		[]string{"kind"},
	)

	// BatchesExported counts batches accepted by the collector.
	// Labels: kind
	BatchesExported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otelship",
			Subsystem: "pipeline",
			Name:      "batches_exported_total",
			Help:      "Total number of batches successfully exported",
		},
		[]string{"kind"},
	)

	// BatchesAbandoned counts batches dropped after fatal failures or
	// exhausted retries. Labels: kind, reason (fatal, exhausted, canceled)
	BatchesAbandoned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "otelship",
			Subsystem: "pipeline",
			Name:      "batches_abandoned_total",
			Help:      "Total number of batches abandoned without successful export",
		},
		[]string{"kind", "reason"},
	)

	// ExportDuration tracks the wall time of one batch's export lifecycle,
	// including retries. Labels: kind
	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "otelship",
			Subsystem: "pipeline",
			Name:      "export_duration_seconds",
			Help:      "Duration of batch export attempts including retries",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// BufferFill reports the current buffer occupancy. Labels: kind
	BufferFill = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "otelship",
			Subsystem: "pipeline",
			Name:      "buffer_fill",
			Help:      "Current number of records held in the buffer",
		},
		[]string{"kind"},
	)
)
