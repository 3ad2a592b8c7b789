package internal

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects HTTP request metrics and the inventory mutation counters.
// It implements service.Observer.
type Metrics struct {
	reqTotal     *prometheus.CounterVec
	reqLatency   *prometheus.HistogramVec
	mutations    *prometheus.CounterVec
	auditEntries *prometheus.CounterVec
	registry     *prometheus.Registry
}

// NewMetrics creates a new Metrics instance with a private Prometheus registry
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	reqTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	reqLatency := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	mutations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_mutations_total",
			Help: "Inventory and location mutations by outcome",
		},
		[]string{"entity", "action", "outcome"},
	)

	auditEntries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_audit_entries_total",
			Help: "Audit entries committed, by action type",
		},
		[]string{"action"},
	)

	registry.MustRegister(reqTotal, reqLatency, mutations, auditEntries)

	return &Metrics{
		reqTotal:     reqTotal,
		reqLatency:   reqLatency,
		mutations:    mutations,
		auditEntries: auditEntries,
		registry:     registry,
	}
}

// MutationObserved counts one finished mutation.
func (m *Metrics) MutationObserved(entity, action, outcome string) {
	m.mutations.WithLabelValues(entity, action, outcome).Inc()
}

// AuditEntriesWritten counts committed audit entries.
func (m *Metrics) AuditEntriesWritten(action string, n int) {
	m.auditEntries.WithLabelValues(action).Add(float64(n))
}

// Middleware returns a Chi middleware that collects metrics
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			next.ServeHTTP(rw, r)

			// Label by route pattern to keep asset tags out of the series.
			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					path = pattern
				}
			}

			status := strconv.Itoa(rw.code)
			m.reqTotal.WithLabelValues(r.Method, path, status).Inc()
			m.reqLatency.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler returns an http.Handler that serves Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the HTTP status code for metrics
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.code = code
	sr.ResponseWriter.WriteHeader(code)
}
