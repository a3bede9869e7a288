package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the emotion analysis service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Audio ingestion metrics
	AudioRequests prometheus.Counter
	AudioBytes    prometheus.Histogram
	AudioDuration prometheus.Histogram
	TextRequests  prometheus.Counter

	// Analysis metrics
	Analyses          *prometheus.CounterVec
	WindowsDispatched prometheus.Counter
	WindowFailures    prometheus.Counter
	WindowsGated      prometheus.Counter

	// Inference metrics
	InferenceRequests *prometheus.CounterVec
	InferenceFailures *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec

	// Collaborator outcomes
	Notifications  *prometheus.CounterVec
	Memories       *prometheus.CounterVec
	ArchiveUploads *prometheus.CounterVec

	// Scheduled jobs
	JobRuns           *prometheus.CounterVec
	SpoolFilesDeleted prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Audio ingestion metrics
		AudioRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotion_audio_requests_total",
			Help: "Total number of audio payloads received",
		}),
		AudioBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "emotion_audio_payload_bytes",
			Help:    "Size of received audio payloads",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		AudioDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "emotion_audio_duration_seconds",
			Help:    "Duration of received audio payloads",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),
		TextRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotion_text_requests_total",
			Help: "Total number of text analysis requests",
		}),

		// Analysis metrics
		Analyses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_analyses_total",
			Help: "Total number of analyses by mode and outcome",
		}, []string{"mode", "outcome"}),
		WindowsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotion_windows_dispatched_total",
			Help: "Total number of audio windows sent for inference",
		}),
		WindowFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotion_window_failures_total",
			Help: "Total number of audio windows whose inference failed",
		}),
		WindowsGated: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotion_windows_gated_total",
			Help: "Total number of audio windows skipped by the speech gate",
		}),

		// Inference metrics
		InferenceRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_inference_requests_total",
			Help: "Total number of inference API calls",
		}, []string{"mode"}),
		InferenceFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_inference_failures_total",
			Help: "Total number of failed inference API calls",
		}, []string{"mode"}),
		InferenceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emotion_inference_duration_seconds",
			Help:    "Duration of inference API calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}, []string{"mode"}),

		// Collaborator outcomes
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_notifications_total",
			Help: "Total number of notifications attempted",
		}, []string{"outcome"}),
		Memories: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_memories_total",
			Help: "Total number of memory writes attempted",
		}, []string{"outcome"}),
		ArchiveUploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_archive_uploads_total",
			Help: "Total number of cloud storage uploads attempted",
		}, []string{"outcome"}),

		// Scheduled jobs
		JobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_job_runs_total",
			Help: "Total number of scheduled job runs",
		}, []string{"job", "outcome"}),
		SpoolFilesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "emotion_spool_files_deleted_total",
			Help: "Total number of expired audio files removed from the spool",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "emotion_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "emotion_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// RecordAudioReceived records an inbound audio payload
func (m *Metrics) RecordAudioReceived(sizeBytes int, durationSeconds float64) {
	if m == nil {
		return
	}
	m.AudioRequests.Inc()
	m.AudioBytes.Observe(float64(sizeBytes))
	m.AudioDuration.Observe(durationSeconds)
}

// RecordTextReceived increments the text requests counter
func (m *Metrics) RecordTextReceived() {
	if m == nil {
		return
	}
	m.TextRequests.Inc()
}

// RecordAnalysis records the final outcome of an analysis
func (m *Metrics) RecordAnalysis(mode string, ok bool) {
	if m == nil {
		return
	}
	m.Analyses.WithLabelValues(mode, outcome(ok)).Inc()
}

// RecordWindow records a dispatched window and whether it failed
func (m *Metrics) RecordWindow(ok bool) {
	if m == nil {
		return
	}
	m.WindowsDispatched.Inc()
	if !ok {
		m.WindowFailures.Inc()
	}
}

// RecordWindowGated increments the gated windows counter
func (m *Metrics) RecordWindowGated() {
	if m == nil {
		return
	}
	m.WindowsGated.Inc()
}

// RecordInference records one inference API call
func (m *Metrics) RecordInference(mode string, ok bool, durationSeconds float64) {
	if m == nil {
		return
	}
	m.InferenceRequests.WithLabelValues(mode).Inc()
	if !ok {
		m.InferenceFailures.WithLabelValues(mode).Inc()
	}
	m.InferenceDuration.WithLabelValues(mode).Observe(durationSeconds)
}

// RecordNotification records a notification attempt
func (m *Metrics) RecordNotification(ok bool) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome(ok)).Inc()
}

// RecordMemory records a memory write attempt
func (m *Metrics) RecordMemory(ok bool) {
	if m == nil {
		return
	}
	m.Memories.WithLabelValues(outcome(ok)).Inc()
}

// RecordArchiveUpload records a cloud storage upload attempt
func (m *Metrics) RecordArchiveUpload(ok bool) {
	if m == nil {
		return
	}
	m.ArchiveUploads.WithLabelValues(outcome(ok)).Inc()
}

// RecordJobRun records a scheduled job run
func (m *Metrics) RecordJobRun(job string, ok bool) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(job, outcome(ok)).Inc()
}

// RecordSpoolFilesDeleted adds n removed spool files
func (m *Metrics) RecordSpoolFilesDeleted(n int) {
	if m == nil {
		return
	}
	m.SpoolFilesDeleted.Add(float64(n))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
