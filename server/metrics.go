package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the HTTP service.
type Metrics struct {
	Conversions  *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics with the provided registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	conversions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "querycraft_conversions_total",
		Help: "Conversion requests by direction and outcome",
	}, []string{"direction", "outcome"})

	cacheLookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "querycraft_cache_lookups_total",
		Help: "Result cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "querycraft_request_duration_seconds",
		Help:    "Time spent serving conversion requests",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"direction"})

	reg.MustRegister(conversions, cacheLookups, duration)

	return &Metrics{
		Conversions:  conversions,
		CacheLookups: cacheLookups,
		Duration:     duration,
	}
}
