package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. Each instance owns its
// registry so tests can build as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ErrorCount      *prometheus.CounterVec

	ApplicationsCreated *prometheus.CounterVec
	StatusTransitions   *prometheus.CounterVec
	RegistrationRetries *prometheus.CounterVec
	StatsCacheLookups   *prometheus.CounterVec
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "method"}),

		ErrorCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_errors_total",
			Help: "Error responses by route, method and error code",
		}, []string{"route", "method", "code"}),

		ApplicationsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_applications_created_total",
			Help: "Applications submitted by kind",
		}, []string{"kind"}),

		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_status_transitions_total",
			Help: "Status changes by kind, previous and new status",
		}, []string{"kind", "from", "to"}),

		RegistrationRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_registration_number_retries_total",
			Help: "Approvals retried after a registration number collision",
		}, []string{"kind"}),

		StatsCacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_stats_cache_lookups_total",
			Help: "Statistics cache lookups by kind and result",
		}, []string{"kind", "result"}), // result: hit, miss, error
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer returns the underlying registry for inspection in tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// RecordRequest counts a request and observes its latency.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestCount.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordError counts an error response by code.
func (m *Metrics) RecordError(route, method, code string) {
	if m == nil {
		return
	}
	m.ErrorCount.WithLabelValues(route, method, code).Inc()
}

// IncApplicationCreated counts a submission.
func (m *Metrics) IncApplicationCreated(kind string) {
	if m != nil {
		m.ApplicationsCreated.WithLabelValues(kind).Inc()
	}
}

// IncStatusTransition counts a status change.
func (m *Metrics) IncStatusTransition(kind, from, to string) {
	if m != nil {
		m.StatusTransitions.WithLabelValues(kind, from, to).Inc()
	}
}

// IncRegistrationRetry counts a registration number collision.
func (m *Metrics) IncRegistrationRetry(kind string) {
	if m != nil {
		m.RegistrationRetries.WithLabelValues(kind).Inc()
	}
}

// IncStatsCacheLookup counts a cache lookup outcome.
func (m *Metrics) IncStatsCacheLookup(kind, result string) {
	if m != nil {
		m.StatsCacheLookups.WithLabelValues(kind, result).Inc()
	}
}
