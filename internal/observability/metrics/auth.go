// Package metrics exposes Prometheus instruments for the auth layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result constants for metric labels.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

const namespace = "enquiry"

// Metrics groups the auth instruments on a private registry.
// All methods are safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	registry    *prometheus.Registry
	decisions   *prometheus.CounterVec
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	guard       *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
}

// New registers the auth instruments plus the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "decisions_total",
			Help:      "Authorization decisions by kind and reason.",
		}, []string{"kind", "reason"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "operations_total",
			Help:      "Auth entry point calls by action and outcome kind.",
		}, []string{"action", "result", "kind"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "operation_duration_seconds",
			Help:      "Auth entry point latency, identity provider calls included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"action"}),
		guard: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guard",
			Name:      "actions_total",
			Help:      "Role consistency guard outcomes on landing surfaces.",
		}, []string{"kind", "elevated"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "rate_limited_total",
			Help:      "Auth requests rejected by the per-client rate limiter.",
		}, []string{"action"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.decisions,
		m.operations,
		m.latency,
		m.guard,
		m.rateLimited,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveDecision counts one gateway decision.
func (m *Metrics) ObserveDecision(kind, reason string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(kind, reason).Inc()
}

// ObserveOperation counts one auth entry point call. kind is the error kind, empty on success.
func (m *Metrics) ObserveOperation(action, kind string, d time.Duration) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if kind != "" {
		result = ResultError
	}
	m.operations.WithLabelValues(action, result, kind).Inc()
	m.latency.WithLabelValues(action).Observe(d.Seconds())
}

// ObserveGuard counts one role consistency guard outcome.
func (m *Metrics) ObserveGuard(kind string, elevated bool) {
	if m == nil {
		return
	}
	m.guard.WithLabelValues(kind, strconv.FormatBool(elevated)).Inc()
}

// ObserveRateLimited counts one rejected request.
func (m *Metrics) ObserveRateLimited(action string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(action).Inc()
}
