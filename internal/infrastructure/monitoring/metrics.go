package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tspence/api-key-generator/pkg/apikey"
	"github.com/tspence/api-key-generator/pkg/constants"
)

// Metrics owns the service's Prometheus registry: the key validator's
// collectors plus the transport and audit metrics defined here.
type Metrics struct {
	registry *prometheus.Registry

	APIKey *apikey.Metrics

	HTTPRequests  *prometheus.CounterVec
	HTTPLatency   *prometheus.HistogramVec
	GRPCRequests  *prometheus.CounterVec
	AuditEvents   *prometheus.CounterVec
	StorageErrors *prometheus.CounterVec
}

// NewMetrics creates a registry with process and Go runtime collectors and
// registers every service metric on it.
func NewMetrics() (*Metrics, error) {
	ns := constants.ServiceName
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		APIKey:   apikey.NewMetrics(ns),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency of HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		GRPCRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "grpc",
				Name:      "requests_total",
				Help:      "Total number of gRPC requests.",
			},
			[]string{"method", "code"},
		),
		AuditEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "audit",
				Name:      "events_total",
				Help:      "Audit events by type and delivery result.",
			},
			[]string{"event", "result"},
		),
		StorageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: "storage",
				Name:      "errors_total",
				Help:      "Key storage errors by driver and operation.",
			},
			[]string{"driver", "operation"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests, m.HTTPLatency, m.GRPCRequests, m.AuditEvents, m.StorageErrors,
	)
	if err := m.APIKey.Register(m.registry); err != nil {
		return nil, err
	}
	return m, nil
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordGRPCRequest records a completed unary gRPC call.
func (m *Metrics) RecordGRPCRequest(method, code string) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
}

// RecordAuditEvent records an audit event delivery attempt.
func (m *Metrics) RecordAuditEvent(event constants.AuditEventType, err error) {
	result := "delivered"
	if err != nil {
		result = "failed"
	}
	m.AuditEvents.WithLabelValues(string(event), result).Inc()
}

// RecordStorageError records a failed storage operation.
func (m *Metrics) RecordStorageError(driver, operation string) {
	m.StorageErrors.WithLabelValues(driver, operation).Inc()
}
