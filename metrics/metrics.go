// Package metrics exposes Prometheus instrumentation for ingestion.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackingest_uploads_total",
			Help: "Uploads processed, by detected format and outcome",
		},
		[]string{"format", "status"}, // status: parsed, rejected, failed
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackingest_ingest_duration_seconds",
			Help:    "Wall time from acceptance to final upload status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"format"},
	)

	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackingest_records_written_total",
			Help: "Track records persisted",
		},
		[]string{"format"},
	)

	DecodeWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackingest_decode_warnings_total",
			Help: "Non-fatal problems found while decoding (skipped messages, swallowed fields, CRC mismatches)",
		},
		[]string{"format"},
	)
)

// ObserveIngest records the outcome of one upload. format may be empty when
// the upload was rejected before detection.
func ObserveIngest(format, status string, duration time.Duration, records int) {
	if format == "" {
		format = "unknown"
	}
	IngestTotal.WithLabelValues(format, status).Inc()
	IngestDuration.WithLabelValues(format).Observe(duration.Seconds())
	if records > 0 {
		RecordsWritten.WithLabelValues(format).Add(float64(records))
	}
}

// ObserveWarnings adds n decode warnings for format.
func ObserveWarnings(format string, n int) {
	if n > 0 {
		DecodeWarnings.WithLabelValues(format).Add(float64(n))
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
