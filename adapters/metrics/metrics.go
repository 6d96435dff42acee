// Package metrics provides Prometheus metrics for procgate.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "procgate"

// Collector holds all Prometheus metrics for the service.
// It implements ports.Metrics.
type Collector struct {
	// Dispatch metrics
	DispatchTotal     *prometheus.CounterVec
	DispatchDuration  *prometheus.HistogramVec
	DispatchInFlight  prometheus.Gauge
	DispatchUnmatches prometheus.Counter

	// Lazy router metrics
	LazyLoads        *prometheus.CounterVec
	LazyLoadDuration prometheus.Histogram

	// HTTP metrics
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Middleware metrics
	RateLimitHits *prometheus.CounterVec
	AuthFailures  *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a metrics collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Total number of procedure calls by outcome",
			},
			[]string{"procedure", "outcome"},
		),
		DispatchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Procedure execution duration in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"procedure"},
		),
		DispatchInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dispatch_in_flight",
				Help:      "Number of procedure calls currently executing",
			},
		),
		DispatchUnmatches: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_unmatched_total",
				Help:      "Total number of requests no procedure matched",
			},
		),
		LazyLoads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lazy_loads_total",
				Help:      "Total number of lazy router load attempts",
			},
			[]string{"router", "result"},
		),
		LazyLoadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "lazy_load_duration_seconds",
				Help:      "Lazy router load duration in seconds",
				Buckets:   []float64{.001, .01, .05, .1, .5, 1, 5},
			},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Total number of calls rejected by the rate limiter",
			},
			[]string{"procedure"},
		),
		AuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of bearer authentication failures",
			},
			[]string{"reason"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// InFlight adjusts the executing-calls gauge.
func (c *Collector) InFlight(delta int) {
	c.DispatchInFlight.Add(float64(delta))
}

// DispatchFinished records one finished procedure call.
func (c *Collector) DispatchFinished(path, kind string, d time.Duration) {
	path = ProcedureLabel(path)
	outcome := kind
	if outcome == "" {
		outcome = "success"
	}
	c.DispatchTotal.WithLabelValues(path, outcome).Inc()
	if d > 0 {
		c.DispatchDuration.WithLabelValues(path).Observe(d.Seconds())
	}
}

// DispatchUnmatched records a request no procedure matched.
func (c *Collector) DispatchUnmatched() {
	c.DispatchUnmatches.Inc()
}

// LazyLoaded records a lazy router load attempt.
func (c *Collector) LazyLoaded(path string, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.LazyLoads.WithLabelValues(ProcedureLabel(path), result).Inc()
	c.LazyLoadDuration.Observe(d.Seconds())
}

// RateLimited records a call rejected by the rate limiter.
func (c *Collector) RateLimited(path string) {
	c.RateLimitHits.WithLabelValues(ProcedureLabel(path)).Inc()
}

// AuthFailed records a rejected bearer token.
func (c *Collector) AuthFailed(reason string) {
	c.AuthFailures.WithLabelValues(reason).Inc()
}

// ConfigReloaded records a config reload attempt.
func (c *Collector) ConfigReloaded(err error, at time.Time) {
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(at.Unix()))
}

// ProcedureLabel bounds label cardinality. Procedure paths come from the
// router, not from requests, so only the empty path needs a placeholder.
func ProcedureLabel(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return "unknown"
	}
	if len(path) > 80 {
		return path[:80] + "..."
	}
	return path
}
