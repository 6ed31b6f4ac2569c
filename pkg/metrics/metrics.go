// Package metrics defines the Prometheus collectors for the search service
// and exposes a scrape handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/resilience"
)

// Metrics holds all collectors. Every field is registered by New.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	RateLimitedTotal     prometheus.Counter

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	IndexLoadsTotal     *prometheus.CounterVec
	IndexLoadDuration   prometheus.Histogram
	IndexRecords        prometheus.Gauge
	IndexTokens         prometheus.Gauge
	IndexGeneration     prometheus.Gauge
	CircuitBreakerState *prometheus.GaugeVec

	AnalyticsEventsDropped prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them with reg. A nil reg uses
// the process-wide default registry.
func New(reg prometheus.Registerer) *Metrics {
	gatherer := prometheus.DefaultGatherer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		}),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by result type (hit, zero_result, invalid, error).",
			},
			[]string{"result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "search_results_count",
			Help:    "Number of results returned per search query.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of query cache hits.",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of query cache misses.",
		}),
		IndexLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_loads_total",
				Help: "Index load attempts by status.",
			},
			[]string{"status"},
		),
		IndexLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "index_load_duration_seconds",
			Help:    "Time to fetch, decode and build the index.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		IndexRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "index_records",
			Help: "Records in the live index.",
		}),
		IndexTokens: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "index_tokens",
			Help: "Distinct tokens in the live index.",
		}),
		IndexGeneration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "index_generation",
			Help: "Generation number of the live index.",
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		AnalyticsEventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analytics_events_dropped_total",
			Help: "Query events dropped because the collector buffer was full.",
		}),
		gatherer: gatherer,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.RateLimitedTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexLoadsTotal,
		m.IndexLoadDuration,
		m.IndexRecords,
		m.IndexTokens,
		m.IndexGeneration,
		m.CircuitBreakerState,
		m.AnalyticsEventsDropped,
	)
	return m
}

// ObserveBreaker matches resilience.CircuitBreakerConfig.OnStateChange.
func (m *Metrics) ObserveBreaker(name string, state resilience.State) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler serves the registry New registered with.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
