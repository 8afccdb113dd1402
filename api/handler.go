// Package api serves the inbound webhook endpoint and, on a separate
// handler, a small admin surface over the task queue.
//
// Handler, meant for the public listener:
//
//	POST /webhook               webhook, instance taken from the body
//	POST /webhook/{instance}    webhook for a named instance
//	GET  /healthz               liveness
//
// AdminHandler, meant for a private listener:
//
//	GET  /stats                 queue counters
//	GET  /tasks/dead            dead tasks
//	GET  /tasks/{id}            one task
//	POST /tasks/{id}/replay     retry a dead task
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/xraph/evolution/webhook"
)

// Default header names and limits.
const (
	DefaultSignatureHeader = "X-Webhook-Signature"
	DefaultTimestampHeader = "X-Webhook-Timestamp"
	DefaultMaxBodyBytes    = 1 << 20
)

// Config configures the handler. Zero fields take their defaults.
type Config struct {
	SignatureHeader string
	TimestampHeader string
	MaxBodyBytes    int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// Handler is the root HTTP handler.
type Handler struct {
	dispatcher *webhook.Dispatcher
	config     Config
	logger     *slog.Logger
	mux        *http.ServeMux
}

// NewHandler creates a handler that feeds webhooks to d.
func NewHandler(d *webhook.Dispatcher, cfg Config, opts ...Option) *Handler {
	if cfg.SignatureHeader == "" {
		cfg.SignatureHeader = DefaultSignatureHeader
	}
	if cfg.TimestampHeader == "" {
		cfg.TimestampHeader = DefaultTimestampHeader
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	h := &Handler{
		dispatcher: d,
		config:     cfg,
		logger:     slog.Default(),
		mux:        http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	// Webhooks
	h.mux.HandleFunc("POST /webhook", h.receiveWebhook)
	h.mux.HandleFunc("POST /webhook/{instance}", h.receiveWebhook)

	h.mux.HandleFunc("GET /healthz", h.healthz)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	withMiddleware(h.logger, h.mux).ServeHTTP(w, r)
}

func withMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return panicRecovery(logger, logging(logger, next))
}

func logging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func panicRecovery(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// queryInt returns a positive query parameter as int, or defaultVal when it
// is missing, malformed or not positive.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
