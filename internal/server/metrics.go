package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the Prometheus instruments on a private registry so multiple
// servers can coexist in one process.
type metrics struct {
	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	hits          prometheus.Counter
	misses        prometheus.Counter
	invalidations prometheus.Counter
	duration      *prometheus.HistogramVec
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &metrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cadabra_requests_total",
			Help: "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
		hits: factory.NewCounter(prometheus.CounterOpts{
			Name: "cadabra_hits_total",
			Help: "Cache lookups that returned a stored result.",
		}),
		misses: factory.NewCounter(prometheus.CounterOpts{
			Name: "cadabra_misses_total",
			Help: "Cache lookups that found no entry.",
		}),
		invalidations: factory.NewCounter(prometheus.CounterOpts{
			Name: "cadabra_invalidations_total",
			Help: "Cache entries removed by writes and table clears.",
		}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cadabra_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}
