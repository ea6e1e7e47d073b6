package worker

import (
	"fmt"
	"time"

	"ai-feed-reader/internal/pkg/config"
)

// WorkerConfig holds the scheduler settings for the worker process.
//
// Environment variables:
//   - FEED_INTERVAL: feed polling interval (default: 15m, range: 1m-24h)
//   - LABEL_RETRY_INTERVAL: interval of the label error retry pass (default: 15m)
//   - SUMMARY_INTERVAL: interval of the pending summary pass (default: 15m)
//   - SUMMARY_RETRY_INTERVAL: interval of the summary error retry pass (default: 15m)
//   - SOURCE_FETCH_GAP: pause between two sources in one feed pass (default: 120s, range: 0-10m)
//   - WORKER_TIMEZONE: timezone of the cron scheduler (default: UTC)
//   - JOB_TIMEOUT: upper bound of one job run (default: 2h, range: 1m-24h)
//   - WORKER_HEALTH_PORT: health check server port (default: 9091, range: 1024-65535)
//   - FEED_CACHE_TTL: feed cache entry lifetime (default: 180s, range: 0-1h)
//   - FEED_CACHE_MAX_SIZE: maximum number of cached feeds (default: 999, range: 1-100000)
type WorkerConfig struct {
	FeedInterval         time.Duration
	LabelRetryInterval   time.Duration
	SummaryInterval      time.Duration
	SummaryRetryInterval time.Duration
	SourceFetchGap       time.Duration
	Timezone             string
	JobTimeout           time.Duration
	HealthPort           int
	FeedCacheTTL         time.Duration
	FeedCacheMaxSize     int
}

// DefaultConfig returns a new WorkerConfig with the default values.
func DefaultConfig() *WorkerConfig {
	return &WorkerConfig{
		FeedInterval:         15 * time.Minute,
		LabelRetryInterval:   15 * time.Minute,
		SummaryInterval:      15 * time.Minute,
		SummaryRetryInterval: 15 * time.Minute,
		SourceFetchGap:       120 * time.Second,
		Timezone:             "UTC",
		JobTimeout:           2 * time.Hour,
		HealthPort:           9091,
		FeedCacheTTL:         180 * time.Second,
		FeedCacheMaxSize:     999,
	}
}

var intervalRange = config.DurationRange(time.Minute, 24*time.Hour)

// Validate checks every field against its allowed range.
func (c *WorkerConfig) Validate() error {
	intervals := []struct {
		name string
		d    time.Duration
	}{
		{"FeedInterval", c.FeedInterval},
		{"LabelRetryInterval", c.LabelRetryInterval},
		{"SummaryInterval", c.SummaryInterval},
		{"SummaryRetryInterval", c.SummaryRetryInterval},
		{"JobTimeout", c.JobTimeout},
	}
	for _, iv := range intervals {
		if err := intervalRange(iv.d); err != nil {
			return fmt.Errorf("%s: %w", iv.name, err)
		}
	}
	if err := config.ValidateDuration(c.SourceFetchGap, 0, 10*time.Minute); err != nil {
		return fmt.Errorf("SourceFetchGap: %w", err)
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		return fmt.Errorf("Timezone: %w", err)
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		return fmt.Errorf("HealthPort: %w", err)
	}
	if err := config.ValidateDuration(c.FeedCacheTTL, 0, time.Hour); err != nil {
		return fmt.Errorf("FeedCacheTTL: %w", err)
	}
	if err := config.ValidateIntRange(c.FeedCacheMaxSize, 1, 100000); err != nil {
		return fmt.Errorf("FeedCacheMaxSize: %w", err)
	}
	return nil
}

// LoadConfigFromEnv loads the worker configuration with a fail-open strategy:
// invalid values fall back to their defaults and are reported as warnings.
// The returned config always passes Validate.
func LoadConfigFromEnv() (*WorkerConfig, config.Warnings) {
	def := DefaultConfig()
	var w config.Warnings

	cfg := &WorkerConfig{
		FeedInterval:         config.Add(&w, config.LoadEnvDuration("FEED_INTERVAL", def.FeedInterval, intervalRange)),
		LabelRetryInterval:   config.Add(&w, config.LoadEnvDuration("LABEL_RETRY_INTERVAL", def.LabelRetryInterval, intervalRange)),
		SummaryInterval:      config.Add(&w, config.LoadEnvDuration("SUMMARY_INTERVAL", def.SummaryInterval, intervalRange)),
		SummaryRetryInterval: config.Add(&w, config.LoadEnvDuration("SUMMARY_RETRY_INTERVAL", def.SummaryRetryInterval, intervalRange)),
		SourceFetchGap:       config.Add(&w, config.LoadEnvDuration("SOURCE_FETCH_GAP", def.SourceFetchGap, config.DurationRange(0, 10*time.Minute))),
		Timezone:             config.Add(&w, config.LoadEnvWithFallback("WORKER_TIMEZONE", def.Timezone, config.ValidateTimezone)),
		JobTimeout:           config.Add(&w, config.LoadEnvDuration("JOB_TIMEOUT", def.JobTimeout, intervalRange)),
		HealthPort:           config.Add(&w, config.LoadEnvInt("WORKER_HEALTH_PORT", def.HealthPort, config.IntRange(1024, 65535))),
		FeedCacheTTL:         config.Add(&w, config.LoadEnvDuration("FEED_CACHE_TTL", def.FeedCacheTTL, config.DurationRange(0, time.Hour))),
		FeedCacheMaxSize:     config.Add(&w, config.LoadEnvInt("FEED_CACHE_MAX_SIZE", def.FeedCacheMaxSize, config.IntRange(1, 100000))),
	}
	return cfg, w
}

// Location resolves Timezone, falling back to UTC.
func (c *WorkerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
