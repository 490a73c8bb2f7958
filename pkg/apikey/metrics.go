package apikey

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for key generation, validation and caching.
// A nil *Metrics records nothing.
type Metrics struct {
	validationTotal    *prometheus.CounterVec
	validationDuration *prometheus.HistogramVec
	generationTotal    *prometheus.CounterVec
	generationDuration *prometheus.HistogramVec
	cacheLookups       *prometheus.CounterVec
	cacheRefreshes     *prometheus.CounterVec
	cacheEntries       prometheus.Gauge
}

// NewMetrics creates the metric collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "apikeygen"
	}

	return &Metrics{
		validationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "apikey",
				Name:      "validation_total",
				Help:      "Total number of API key validation attempts",
			},
			[]string{"status", "reason"},
		),
		validationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "apikey",
				Name:      "validation_duration_seconds",
				Help:      "API key validation duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"status", "reason"},
		),
		generationTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "apikey",
				Name:      "generation_total",
				Help:      "Total number of API key generation attempts",
			},
			[]string{"hash", "status"},
		),
		generationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "apikey",
				Name:      "generation_duration_seconds",
				Help:      "API key generation duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"hash"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "apikey",
				Name:      "cache_lookups_total",
				Help:      "Cached validator lookups by age tier (miss, fresh, stale, expired)",
			},
			[]string{"tier"},
		),
		cacheRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "apikey",
				Name:      "cache_refresh_total",
				Help:      "Cache revalidations by mode and result",
			},
			[]string{"mode", "result"},
		),
		cacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "apikey",
				Name:      "cache_entries",
				Help:      "Number of entries held by the cached validator",
			},
		),
	}
}

// Collectors returns every collector, for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.validationTotal,
		m.validationDuration,
		m.generationTotal,
		m.generationDuration,
		m.cacheLookups,
		m.cacheRefreshes,
		m.cacheEntries,
	}
}

// Register registers the collectors with reg. Collectors that are already
// registered are ignored, so the call is safe to repeat.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// RecordValidation records a validation attempt.
func (m *Metrics) RecordValidation(status, reason string, duration time.Duration) {
	if m == nil {
		return
	}
	m.validationTotal.WithLabelValues(status, reason).Inc()
	m.validationDuration.WithLabelValues(status, reason).Observe(duration.Seconds())
}

// RecordGeneration records a generation attempt.
func (m *Metrics) RecordGeneration(hash HashKind, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.generationTotal.WithLabelValues(hash.String(), status).Inc()
	m.generationDuration.WithLabelValues(hash.String()).Observe(duration.Seconds())
}

// RecordCacheLookup records which age tier served a cached lookup.
func (m *Metrics) RecordCacheLookup(tier string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(tier).Inc()
}

// RecordCacheRefresh records a revalidation of a cached entry.
func (m *Metrics) RecordCacheRefresh(mode string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.cacheRefreshes.WithLabelValues(mode, result).Inc()
}

// SetCacheEntries reports the cache size.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}
