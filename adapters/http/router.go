package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/artpar/procgate/adapters/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// HealthChecker is implemented by dependencies readiness depends on.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness reports every failing dependency.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	failing := map[string]string{}
	for name, c := range h.checks {
		if err := c.HealthCheck(ctx); err != nil {
			failing[name] = err.Error()
		}
	}
	if len(failing) > 0 {
		_ = writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"checks": failing,
		})
		return
	}
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// VersionHandler reports the running build.
func VersionHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(VersionResponse{
			Version: version,
			Service: "procgate",
		})
	}
}

// RouterConfig holds optional configuration for the router.
type RouterConfig struct {
	Version string
	Timeout time.Duration
	// Metrics enables the metrics middleware.
	Metrics *metrics.Collector
	// Gatherer backs /metrics; defaults to the global registry.
	Gatherer prometheus.Gatherer
	// JSONRPCHandler is mounted at /jsonrpc when set.
	JSONRPCHandler http.Handler
	// WebsocketHandler is mounted at /ws when set.
	WebsocketHandler http.Handler
}

// NewRouter creates the main HTTP router. Any path not claimed by a
// built-in endpoint is handed to rpc.
func NewRouter(rpc http.Handler, health *HealthHandler, logger zerolog.Logger, cfg RouterConfig) chi.Router {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Timeout))

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	r.Get("/health", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Get("/version", VersionHandler(cfg.Version))

	if cfg.Metrics != nil {
		gatherer := cfg.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	if cfg.JSONRPCHandler != nil {
		r.Handle("/jsonrpc", cfg.JSONRPCHandler)
	}
	if cfg.WebsocketHandler != nil {
		r.Handle("/ws", cfg.WebsocketHandler)
	}

	r.NotFound(rpc.ServeHTTP)
	r.MethodNotAllowed(rpc.ServeHTTP)

	return r
}

// internalPath reports endpoints excluded from request logs and metrics.
func internalPath(path string) bool {
	return strings.HasPrefix(path, "/health") || path == "/metrics"
}

// NewLoggingMiddleware creates middleware that logs HTTP requests.
func NewLoggingMiddleware(logger zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			if internalPath(r.URL.Path) {
				return
			}

			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}

// NewMetricsMiddleware creates middleware that records request metrics.
func NewMetricsMiddleware(m *metrics.Collector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if internalPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			m.RequestDuration.WithLabelValues(r.Method, statusLabel(ww.Status())).
				Observe(time.Since(start).Seconds())
		})
	}
}

// statusLabel returns a string label for the status code.
func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "other"
	}
}
