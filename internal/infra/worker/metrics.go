package worker

import (
	"time"

	"ai-feed-reader/internal/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics provides Prometheus metrics for the worker component.
// It embeds the standard ConfigMetrics for configuration monitoring and adds
// per-job execution metrics.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp: Unix timestamp of last configuration load
//   - worker_config_fallbacks_total: Total fallback operations by field
//   - worker_config_fallback_active: 1 if any fallback active, 0 otherwise
//
// Worker-specific metrics:
//   - worker_job_runs_total: job runs by job and status (success/failure/skipped)
//   - worker_job_duration_seconds: duration histogram per job
//   - worker_job_items_total: items handled by job (sources, articles)
//   - worker_job_last_success_timestamp: Unix timestamp of the last successful run per job
type WorkerMetrics struct {
	*config.ConfigMetrics

	JobRunsTotal            *prometheus.CounterVec
	JobDurationSeconds      *prometheus.HistogramVec
	JobItemsTotal           *prometheus.CounterVec
	JobLastSuccessTimestamp *prometheus.GaugeVec
}

// NewWorkerMetrics registers the worker metric set on reg. Pass
// prometheus.DefaultRegisterer in main and a fresh registry in tests.
func NewWorkerMetrics(reg prometheus.Registerer) *WorkerMetrics {
	f := promauto.With(reg)
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics(reg, "worker"),

		JobRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_job_runs_total",
			Help: "Total number of scheduled job runs by job and status",
		}, []string{"job", "status"}),

		JobDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Duration of scheduled job execution in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800, 3600}, // 1s .. 1h
		}, []string{"job"}),

		JobItemsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_job_items_total",
			Help: "Total number of items handled by scheduled jobs",
		}, []string{"job"}),

		JobLastSuccessTimestamp: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "worker_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful run per job",
		}, []string{"job"}),
	}
}

// RecordJob records one finished run. A nil *WorkerMetrics is a no-op.
func (m *WorkerMetrics) RecordJob(job, status string, d time.Duration, items int) {
	if m == nil {
		return
	}
	m.JobRunsTotal.WithLabelValues(job, status).Inc()
	if status == statusSkipped {
		return
	}
	m.JobDurationSeconds.WithLabelValues(job).Observe(d.Seconds())
	if items > 0 {
		m.JobItemsTotal.WithLabelValues(job).Add(float64(items))
	}
	if status == statusSuccess {
		m.JobLastSuccessTimestamp.WithLabelValues(job).SetToCurrentTime()
	}
}
