package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liviaellen/voice-sense-hardware/internal/apperr"
	"github.com/liviaellen/voice-sense-hardware/internal/config"
	"github.com/liviaellen/voice-sense-hardware/internal/inference"
	"github.com/liviaellen/voice-sense-hardware/internal/ingest"
	"github.com/liviaellen/voice-sense-hardware/internal/metrics"
	"github.com/liviaellen/voice-sense-hardware/internal/trigger"
	"github.com/liviaellen/voice-sense-hardware/internal/vad"
)

// ServiceName identifies the service in status responses
const ServiceName = "voice-emotion-analysis"

// SettingsStore reads and updates notification settings
type SettingsStore interface {
	Get() trigger.Settings
	Update(patch []byte) (trigger.Settings, error)
}

// InferenceStats reports inference client statistics
type InferenceStats interface {
	GetStats() inference.ClientStats
}

// SpeechGateStats reports speech gate statistics
type SpeechGateStats interface {
	GetStats() vad.ProcessorStats
}

// Options wires an HTTPServer. Inference may be nil when the API key is missing,
// SpeechGate when the gate is disabled.
type Options struct {
	Config     *config.Config
	Service    *ingest.Service
	Settings   SettingsStore
	Inference  InferenceStats
	SpeechGate SpeechGateStats
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
}

// HTTPServer provides the HTTP API endpoints
type HTTPServer struct {
	server    *http.Server
	router    *mux.Router
	logger    *slog.Logger
	config    *config.Config
	service   *ingest.Service
	settings  SettingsStore
	inference InferenceStats
	gate      SpeechGateStats
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(opts Options) *HTTPServer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		router:    mux.NewRouter(),
		logger:    logger.With(slog.String("component", "http")),
		config:    opts.Config,
		service:   opts.Service,
		settings:  opts.Settings,
		inference: opts.Inference,
		gate:      opts.SpeechGate,
		metrics:   opts.Metrics,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	h.setupRoutes()

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", opts.Config.HTTP.Address, opts.Config.HTTP.Port),
		Handler:      h.router,
		ReadTimeout:  opts.Config.HTTP.GetReadTimeoutDuration(),
		WriteTimeout: opts.Config.HTTP.GetWriteTimeoutDuration(),
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.router
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes() {
	r := h.router

	// Ingest endpoints
	r.HandleFunc("/audio", h.withMetrics("/audio", h.handleAudio)).Methods(http.MethodPost)
	r.HandleFunc("/analyze-text", h.withMetrics("/analyze-text", h.handleAnalyzeText)).Methods(http.MethodPost)

	// Monitoring endpoints
	r.HandleFunc("/health", h.withMetrics("/health", h.handleHealth)).Methods(http.MethodGet)
	r.HandleFunc("/status", h.withMetrics("/status", h.handleStatus)).Methods(http.MethodGet)

	// Notification settings
	r.HandleFunc("/emotion-config", h.withMetrics("/emotion-config", h.handleGetEmotionConfig)).Methods(http.MethodGet)
	r.HandleFunc("/emotion-config", h.withMetrics("/emotion-config", h.handleUpdateEmotionConfig)).Methods(http.MethodPost)

	// Statistics management
	r.HandleFunc("/reset-stats", h.withMetrics("/reset-stats", h.handleResetStats)).Methods(http.MethodPost)
	r.HandleFunc("/save-emotion-memory", h.withMetrics("/save-emotion-memory", h.handleSaveEmotionMemory)).Methods(http.MethodPost)

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	r.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// Root endpoint with API documentation
	r.HandleFunc("/", h.withMetrics("/", h.handleRoot)).Methods(http.MethodGet)
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		// Record error if status code indicates an error
		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// writeJSON writes body with the given status
func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("Failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError maps err onto an HTTP status: validation problems are the
// client's, everything else is reported as an internal error.
func (h *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &maxBytesErr):
		h.writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"detail": fmt.Sprintf("Request body exceeds %d bytes", maxBytesErr.Limit),
		})
	case apperr.IsValidation(err):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"detail": validationDetail(err)})
	default:
		h.logger.Error("Request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"detail": "Internal server error: " + err.Error(),
		})
	}
}

// validationDetail returns the message of the innermost validation cause
func validationDetail(err error) string {
	var v *apperr.ValidationError
	if errors.As(err, &v) && v.Err != nil {
		return capitalize(v.Err.Error())
	}
	return err.Error()
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// queryBool parses an optional boolean query parameter
func queryBool(r *http.Request, name string, def bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}

	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperr.Validation(name, fmt.Errorf("%s must be a boolean, got %q", name, raw))
	}
	return value, nil
}

// handleAudio implements the POST /audio endpoint
func (h *HTTPServer) handleAudio(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	sampleRate, err := strconv.Atoi(query.Get("sample_rate"))
	if err != nil {
		h.writeError(w, r, apperr.Validation("sample_rate", fmt.Errorf("sample_rate must be an integer, got %q", query.Get("sample_rate"))))
		return
	}

	req := ingest.AudioRequest{
		UID:            query.Get("uid"),
		SampleRate:     sampleRate,
		EmotionFilters: query.Get("emotion_filters"),
	}

	if req.AnalyzeEmotion, err = queryBool(r, "analyze_emotion", true); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.SaveToGCS, err = queryBool(r, "save_to_gcs", true); err != nil {
		h.writeError(w, r, err)
		return
	}
	if query.Get("enable_notification") != "" {
		enable, err := queryBool(r, "enable_notification", false)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		req.EnableNotification = &enable
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.Audio.MaxBodyBytes))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req.Body = body

	resp, err := h.service.ProcessAudio(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// textRequest is the body of POST /analyze-text
type textRequest struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// handleAnalyzeText implements the POST /analyze-text endpoint
func (h *HTTPServer) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	var body textRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.config.Audio.MaxBodyBytes))
	if err := decoder.Decode(&body); err != nil {
		h.writeError(w, r, apperr.Validation("body", errors.New("invalid JSON in request body")))
		return
	}

	resp, err := h.service.ProcessText(r.Context(), ingest.TextRequest{
		UID:      r.URL.Query().Get("uid"),
		Text:     body.Text,
		Metadata: body.Metadata,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": ServiceName,
	})
}

// handleStatus implements the /status endpoint
func (h *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"status":  "online",
		"service": ServiceName,
		"uptime":  time.Since(h.startTime).Round(time.Second).String(),
		"configuration": map[string]bool{
			"hume_ai":              h.config.Inference.APIKey != "",
			"google_cloud_storage": h.config.Storage.Bucket != "",
			"omi":                  h.config.Notify.AppID != "" && h.config.Notify.APIKey != "",
		},
		"stats": h.service.Stats().Snapshot(),
	}

	if h.inference != nil {
		status["inference"] = h.inference.GetStats()
	}
	if h.gate != nil {
		status["speech_gate"] = h.gate.GetStats()
	}

	h.writeJSON(w, http.StatusOK, status)
}

// handleGetEmotionConfig implements GET /emotion-config
func (h *HTTPServer) handleGetEmotionConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"current_config": h.settings.Get(),
		"description":    "Automatic notification settings for detected emotions",
	})
}

// handleUpdateEmotionConfig implements POST /emotion-config
func (h *HTTPServer) handleUpdateEmotionConfig(w http.ResponseWriter, r *http.Request) {
	patch, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	settings, err := h.settings.Update(patch)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"message":    "Configuration updated successfully",
		"new_config": settings,
	})
}

// handleResetStats implements POST /reset-stats
func (h *HTTPServer) handleResetStats(w http.ResponseWriter, r *http.Request) {
	recorder := h.service.Stats()
	recorder.Reset()

	h.logger.Info("Statistics reset")

	h.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Statistics reset successfully",
		"stats":   recorder.Snapshot(),
	})
}

// handleSaveEmotionMemory implements POST /save-emotion-memory
func (h *HTTPServer) handleSaveEmotionMemory(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.SaveMemory(r.Context(), r.URL.Query().Get("uid"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{
			"message": "Failed to save emotion memory",
			"error":   err.Error(),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"message": "Emotion memory saved successfully",
		"result": map[string]any{
			"success": true,
			"message": "Memory created successfully",
			"summary": summary,
		},
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	apiDoc := map[string]any{
		"service": "Voice Emotion Analysis Service",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"GET /":                     "API documentation",
			"POST /audio":               "Upload device audio (?sample_rate&uid&analyze_emotion&save_to_gcs&enable_notification&emotion_filters)",
			"POST /analyze-text":        "Analyze emotion in text ({\"text\": ...})",
			"GET /status":               "Service status and statistics",
			"GET /health":               "Service health check",
			"GET /emotion-config":       "Get notification settings",
			"POST /emotion-config":      "Update notification settings",
			"POST /reset-stats":         "Reset statistics",
			"POST /save-emotion-memory": "Save the emotion summary as a memory (?uid)",
			"GET /metrics":              "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	h.writeJSON(w, http.StatusOK, apiDoc)
}
