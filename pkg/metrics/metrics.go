// Package metrics defines the Prometheus collectors for indexing runs and the
// lookup API, and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the indexer.
type Metrics struct {
	FilesDiscoveredTotal prometheus.Counter
	FilesIndexedTotal    prometheus.Counter
	TokensIndexedTotal   prometheus.Counter
	ItemErrorsTotal      *prometheus.CounterVec
	QueueDepth           prometheus.Gauge
	PipelineState        prometheus.Gauge
	IndexTerms           prometheus.Gauge
	IndexFiles           prometheus.Gauge
	RunDuration          prometheus.Histogram
	RunsTotal            *prometheus.CounterVec

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	LookupQueriesTotal   *prometheus.CounterVec
	LookupLatency        *prometheus.HistogramVec
	CacheHitsTotal       *prometheus.CounterVec
	CacheMissesTotal     prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg. Tests
// pass a fresh prometheus.NewRegistry() so repeated construction does not
// panic.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FilesDiscoveredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_files_discovered_total",
				Help: "Files accepted by crawlers and queued for indexing.",
			},
		),
		FilesIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_files_indexed_total",
				Help: "Files fully read and merged into the index.",
			},
		),
		TokensIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "indexer_tokens_indexed_total",
				Help: "Distinct (file, token) pairs merged into the index.",
			},
		),
		ItemErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_item_errors_total",
				Help: "Skipped directory entries and files by error kind.",
			},
			[]string{"kind"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_queue_depth",
				Help: "Files discovered but not yet taken by a worker.",
			},
		),
		PipelineState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_pipeline_state",
				Help: "Current run state (0=idle, 1=crawling, 2=draining, 3=done).",
			},
		),
		IndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_index_terms",
				Help: "Distinct tokens in the most recently completed index.",
			},
		),
		IndexFiles: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexer_index_files",
				Help: "Files in the most recently completed index.",
			},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "indexer_run_duration_seconds",
				Help:    "Wall time of pipeline runs.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_runs_total",
				Help: "Pipeline runs by outcome (completed, interrupted, failed).",
			},
			[]string{"outcome"},
		),
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
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		LookupQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lookup_queries_total",
				Help: "Lookup queries by result type (hit, zero_result, error).",
			},
			[]string{"result_type"},
		),
		LookupLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lookup_latency_seconds",
				Help:    "Lookup latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"cache_status"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lookup_cache_hits_total",
				Help: "Lookup cache hits by tier (local, redis).",
			},
			[]string{"tier"},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "lookup_cache_misses_total",
				Help: "Lookup cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.FilesDiscoveredTotal,
		m.FilesIndexedTotal,
		m.TokensIndexedTotal,
		m.ItemErrorsTotal,
		m.QueueDepth,
		m.PipelineState,
		m.IndexTerms,
		m.IndexFiles,
		m.RunDuration,
		m.RunsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.LookupQueriesTotal,
		m.LookupLatency,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// HandlerFor returns a scrape handler for a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
