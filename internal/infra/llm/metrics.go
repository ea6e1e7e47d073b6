package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	completionRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_completion_requests_total",
			Help: "Total number of LLM completion requests by provider and result",
		},
		[]string{"provider", "result"},
	)

	completionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_completion_duration_seconds",
			Help:    "Duration of LLM completion requests",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider"},
	)

	completionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_completion_tokens_total",
			Help: "Tokens consumed by LLM completions",
		},
		[]string{"provider", "kind"},
	)
)

func recordCompletion(provider string, d time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	completionRequests.WithLabelValues(provider, result).Inc()
	completionDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func recordTokens(provider string, prompt, completion int64) {
	completionTokens.WithLabelValues(provider, "prompt").Add(float64(prompt))
	completionTokens.WithLabelValues(provider, "completion").Add(float64(completion))
}
