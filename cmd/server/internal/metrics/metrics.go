// Package metrics defines the Prometheus collectors for the transcribe
// service. All collectors are registered on the default registry via
// promauto and exposed through /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts transcription requests by final status.
	// Labels: status (success/error)
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcribe_requests_total",
			Help: "Total number of transcription requests by final status",
		},
		[]string{"status"},
	)

	// ErrorsTotal counts request failures by error code.
	// Labels: code (UNSUPPORTED_FORMAT/FILE_TOO_LARGE/STORAGE_ERROR/MODEL_UNAVAILABLE/INFERENCE_ERROR)
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transcribe_errors_total",
			Help: "Total number of transcription request errors by error code",
		},
		[]string{"code"},
	)

	// ModelReady reports whether the inference engine is loaded (0=not ready, 1=ready).
	ModelReady = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "transcribe_model_ready",
			Help: "Inference engine readiness (0=not ready, 1=ready)",
		},
	)

	// InferenceDuration observes wall-clock inference time in seconds.
	// Buckets cover short clips up to long recordings.
	InferenceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transcribe_inference_duration_seconds",
			Help:    "Wall-clock duration of engine invocations in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
	)

	// UploadBytes observes the byte size of successfully ingested uploads.
	UploadBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "transcribe_upload_bytes",
			Help:    "Size in bytes of successfully ingested uploads",
			Buckets: prometheus.ExponentialBuckets(64*1024, 4, 8),
		},
	)

	// CleanupFailuresTotal counts temp artifact deletions that failed.
	// Cleanup failures never fail the request; this counter is how they
	// stay observable.
	CleanupFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "transcribe_cleanup_failures_total",
			Help: "Total number of temp artifact deletions that failed",
		},
	)
)

// RecordRequest records a finished transcription request.
func RecordRequest(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	RequestsTotal.WithLabelValues(status).Inc()
}

// RecordError records a request failure by error code.
func RecordError(code string) {
	ErrorsTotal.WithLabelValues(code).Inc()
}

// SetModelReady publishes engine readiness.
func SetModelReady(ready bool) {
	if ready {
		ModelReady.Set(1)
	} else {
		ModelReady.Set(0)
	}
}
