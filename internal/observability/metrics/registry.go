// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingest metrics track feed polling
var (
	// FeedIngestDuration measures time to ingest one source
	FeedIngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "feed_ingest_duration_seconds",
			Help:    "Time taken to ingest a feed source",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	// FeedIngestErrors counts failed source ingests
	FeedIngestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_ingest_errors_total",
			Help: "Total number of feed ingest errors",
		},
		[]string{"error_type"}, // fetch_failed, parse_failed, store_failed
	)

	// FeedFetchFallbacks counts fetches that succeeded only with the bare URL
	FeedFetchFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "feed_fetch_fallbacks_total",
			Help: "Total number of feed fetches served by the bare URL fallback",
		},
	)

	// ArticlesIngestedTotal counts feed entries by outcome
	ArticlesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_ingested_total",
			Help: "Total number of feed entries seen during ingest",
		},
		[]string{"result"}, // inserted, duplicate
	)

	// FeedCacheRequests counts cache lookups
	FeedCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_cache_requests_total",
			Help: "Total number of feed cache lookups",
		},
		[]string{"result"}, // hit, miss
	)
)

// Enrichment metrics track labeling and summarization
var (
	// ArticlesLabeledTotal counts per-article labeling outcomes
	ArticlesLabeledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_labeled_total",
			Help: "Total number of articles processed by the labeler",
		},
		[]string{"result"}, // done, disregarded, error, conflict
	)

	// LabelBatchDuration measures one classification round trip including retries
	LabelBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "label_batch_duration_seconds",
			Help:    "Time taken to label one batch of articles",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// ArticlesSummarizedTotal counts per-article summarization outcomes
	ArticlesSummarizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "articles_summarized_total",
			Help: "Total number of articles processed by the summarizer",
		},
		[]string{"result"}, // success, error, ignored, skipped
	)

	// SummarizationDuration measures time to summarize an article
	SummarizationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "summarization_duration_seconds",
			Help:    "Time taken to summarize an article",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// ContentFetchAttemptsTotal counts content fetch attempts by result
	ContentFetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_fetch_attempts_total",
			Help: "Total number of content fetch attempts",
		},
		[]string{"result"}, // result: success, failure, skipped
	)

	// ContentFetchDuration measures time to fetch article content
	ContentFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "content_fetch_duration_seconds",
			Help:    "Time taken to fetch article content",
			Buckets: []float64{0.1, 0.2, 0.4, 0.8, 1.6, 3.2, 6.4, 12.8},
		},
	)
)

// Database metrics track database performance
var (
	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// CircuitBreakerState is 0 closed, 1 half-open, 2 open
var CircuitBreakerState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Current circuit breaker state (0 closed, 1 half-open, 2 open)",
	},
	[]string{"name"},
)
