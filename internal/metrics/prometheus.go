package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the audio recording service
type Metrics struct {
	// Upload metrics
	UploadsReceived   prometheus.Counter
	UploadsStored     prometheus.Counter
	UploadsFailed     *prometheus.CounterVec
	UploadBytes       prometheus.Histogram
	UploadDuration    prometheus.Histogram
	UploadsTruncated  prometheus.Counter
	UploadsIdleCutoff prometheus.Counter
	RawStreamFallback prometheus.Counter

	// Audio payload metrics
	RecordingDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics on the given registerer. Tests pass a
// fresh registry so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Upload metrics
		UploadsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "audio_uploads_received_total",
			Help: "Total number of audio upload requests received",
		}),
		UploadsStored: factory.NewCounter(prometheus.CounterOpts{
			Name: "audio_uploads_stored_total",
			Help: "Total number of uploads persisted to the recordings directory",
		}),
		UploadsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_uploads_failed_total",
			Help: "Total number of rejected or failed uploads",
		}, []string{"reason"}),
		UploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audio_upload_size_bytes",
			Help:    "Size of accepted audio payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 14), // 1KB to ~8MB
		}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audio_upload_handling_duration_seconds",
			Help:    "Time spent reading and storing an upload",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}),
		UploadsTruncated: factory.NewCounter(prometheus.CounterOpts{
			Name: "audio_uploads_truncated_total",
			Help: "Total number of uploads cut off at the safety ceiling",
		}),
		UploadsIdleCutoff: factory.NewCounter(prometheus.CounterOpts{
			Name: "audio_uploads_idle_cutoff_total",
			Help: "Total number of raw-stream uploads ended by the read idle deadline",
		}),
		RawStreamFallback: factory.NewCounter(prometheus.CounterOpts{
			Name: "audio_raw_stream_reads_total",
			Help: "Total number of uploads read from the hijacked raw connection",
		}),

		// Audio payload metrics
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "audio_recording_duration_seconds",
			Help:    "Computed playback duration of stored recordings",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~8 minutes
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "audio_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "audio_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordUploadReceived increments the uploads received counter
func (m *Metrics) RecordUploadReceived() {
	m.UploadsReceived.Inc()
}

// RecordUploadStored records a persisted upload with its payload size,
// handling time, and computed playback duration
func (m *Metrics) RecordUploadStored(sizeBytes int64, handlingSeconds, recordingSeconds float64) {
	m.UploadsStored.Inc()
	m.UploadBytes.Observe(float64(sizeBytes))
	m.UploadDuration.Observe(handlingSeconds)
	m.RecordingDuration.Observe(recordingSeconds)
}

// RecordUploadFailed increments the failure counter for the given reason
func (m *Metrics) RecordUploadFailed(reason string) {
	m.UploadsFailed.WithLabelValues(reason).Inc()
}

// RecordTruncation increments the safety-ceiling truncation counter
func (m *Metrics) RecordTruncation() {
	m.UploadsTruncated.Inc()
}

// RecordIdleCutoff increments the idle-deadline cutoff counter
func (m *Metrics) RecordIdleCutoff() {
	m.UploadsIdleCutoff.Inc()
}

// RecordRawStreamRead increments the raw connection read counter
func (m *Metrics) RecordRawStreamRead() {
	m.RawStreamFallback.Inc()
}

// RecordHTTPRequest records an HTTP request with its duration
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error by type
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
