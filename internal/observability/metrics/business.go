package metrics

import (
	"time"
)

// RecordFeedIngest records one successful source ingest.
func RecordFeedIngest(duration time.Duration, inserted, duplicated int) {
	FeedIngestDuration.Observe(duration.Seconds())
	ArticlesIngestedTotal.WithLabelValues("inserted").Add(float64(inserted))
	ArticlesIngestedTotal.WithLabelValues("duplicate").Add(float64(duplicated))
}

// RecordFeedIngestError records a failed source ingest.
func RecordFeedIngestError(errorType string) {
	FeedIngestErrors.WithLabelValues(errorType).Inc()
}

func RecordFeedFetchFallback() {
	FeedFetchFallbacks.Inc()
}

// RecordFeedCache records a cache lookup.
func RecordFeedCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	FeedCacheRequests.WithLabelValues(result).Inc()
}

// RecordArticleLabeled records a labeling outcome for one article.
func RecordArticleLabeled(result string) {
	ArticlesLabeledTotal.WithLabelValues(result).Inc()
}

// RecordLabelBatch records the duration of a classification call.
func RecordLabelBatch(duration time.Duration) {
	LabelBatchDuration.Observe(duration.Seconds())
}

// RecordArticleSummarized records a summarization outcome for one article.
func RecordArticleSummarized(result string) {
	ArticlesSummarizedTotal.WithLabelValues(result).Inc()
}

// RecordSummarizationDuration records the time taken to summarize an article.
func RecordSummarizationDuration(duration time.Duration) {
	SummarizationDuration.Observe(duration.Seconds())
}

// RecordContentFetchSuccess records a successful content fetch operation.
func RecordContentFetchSuccess(duration time.Duration) {
	ContentFetchAttemptsTotal.WithLabelValues("success").Inc()
	ContentFetchDuration.Observe(duration.Seconds())
}

// RecordContentFetchFailed records a failed content fetch operation.
func RecordContentFetchFailed(duration time.Duration) {
	ContentFetchAttemptsTotal.WithLabelValues("failure").Inc()
	ContentFetchDuration.Observe(duration.Seconds())
}

// RecordContentFetchSkipped records that the feed content was long enough.
func RecordContentFetchSkipped() {
	ContentFetchAttemptsTotal.WithLabelValues("skipped").Inc()
}

// UpdateDBConnectionStats updates database connection pool statistics.
func UpdateDBConnectionStats(active, idle int) {
	DBConnectionsActive.Set(float64(active))
	DBConnectionsIdle.Set(float64(idle))
}

// SetCircuitBreakerState publishes the gobreaker state of breaker name.
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
