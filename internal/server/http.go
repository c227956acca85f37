package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/esp-audio/recording-service/internal/config"
	"github.com/esp-audio/recording-service/internal/metrics"
	"github.com/esp-audio/recording-service/internal/storage"
)

const serviceName = "audio-recording-server"

// HTTPServer serves the audio ingestion API
type HTTPServer struct {
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
	config   *config.Config
	store    *storage.Store
	metrics  *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates the HTTP server with all routes configured
func NewHTTPServer(cfg *config.Config, logger *slog.Logger, store *storage.Store, m *metrics.Metrics) *HTTPServer {
	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		store:     store,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:    cfg.Server.ListenAddr(),
		Handler: mux,
		// No full ReadTimeout: unframed uploads are paced by the device and
		// bounded by the raw-stream read deadline instead. Only the request
		// head is held to a clock.
		ReadHeaderTimeout: cfg.Server.GetReadTimeout(),
		WriteTimeout:      cfg.Server.GetWriteTimeout(),
		IdleTimeout:       60 * time.Second,
	}

	return h
}

// setupRoutes configures the API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Audio ingestion endpoint
	mux.HandleFunc("/api/audio", h.withMetrics("/api/audio", h.handleAudio))

	// Health check endpoint
	mux.HandleFunc("/api/health", h.withMetrics("/api/health", h.handleHealth))

	// Recordings listing endpoint
	mux.HandleFunc("/api/recordings", h.withMetrics("/api/recordings", h.handleRecordings))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Wrap the response writer to capture the status code
		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code. It
// forwards Hijack so the ingest handler can take over the connection.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("underlying ResponseWriter does not support hijacking")
	}
	return hj.Hijack()
}

// Start listens on the configured address and begins serving. The listener
// is wrapped with the raw audio filter before being handed to net/http.
func (h *HTTPServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.server.Addr, err)
	}
	h.listener = NewRawAudioListener(ln)

	h.logger.Info("Starting HTTP server",
		slog.String("address", ln.Addr().String()),
		slog.String("recordings_dir", h.store.Dir()),
	)

	go func() {
		if err := h.server.Serve(h.listener); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Addr returns the address the server is listening on. Only valid after Start.
func (h *HTTPServer) Addr() string {
	if h.listener == nil {
		return h.server.Addr
	}
	return h.listener.Addr().String()
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /api/health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":         "healthy",
		"service":        serviceName,
		"recordings_dir": h.store.Dir(),
	}

	writeJSON(w, http.StatusOK, health)
}

// recordingsResponse is the payload of the /api/recordings endpoint
type recordingsResponse struct {
	Status     string              `json:"status"`
	Count      int                 `json:"count"`
	Recordings []storage.Recording `json:"recordings"`
}

// handleRecordings implements the /api/recordings endpoint
func (h *HTTPServer) handleRecordings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recordings, err := h.store.List()
	if err != nil {
		h.logger.Error("Failed to list recordings", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Status:  "error",
			Message: fmt.Sprintf("Server error: %v", err),
		})
		return
	}

	writeJSON(w, http.StatusOK, recordingsResponse{
		Status:     "success",
		Count:      len(recordings),
		Recordings: recordings,
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": serviceName,
		"uptime":  time.Since(h.startTime).String(),
		"endpoints": map[string]interface{}{
			"POST /api/audio":     "Upload raw PCM audio",
			"GET /api/health":     "Service health check",
			"GET /api/recordings": "List stored recordings",
			"GET /metrics":        "Prometheus metrics",
		},
	}

	writeJSON(w, http.StatusOK, apiDoc)
}

// writeJSON encodes v to the response with the given status code
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
