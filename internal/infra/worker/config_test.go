package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 15*time.Minute, cfg.FeedInterval)
	assert.Equal(t, 15*time.Minute, cfg.LabelRetryInterval)
	assert.Equal(t, 15*time.Minute, cfg.SummaryInterval)
	assert.Equal(t, 15*time.Minute, cfg.SummaryRetryInterval)
	assert.Equal(t, 120*time.Second, cfg.SourceFetchGap)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 2*time.Hour, cfg.JobTimeout)
	assert.Equal(t, 9091, cfg.HealthPort)
	assert.Equal(t, 180*time.Second, cfg.FeedCacheTTL)
	assert.Equal(t, 999, cfg.FeedCacheMaxSize)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultConfig_Immutability(t *testing.T) {
	c1 := DefaultConfig()
	c2 := DefaultConfig()

	c1.FeedInterval = time.Hour
	c1.HealthPort = 8080

	assert.Equal(t, 15*time.Minute, c2.FeedInterval)
	assert.Equal(t, 9091, c2.HealthPort)
}

func TestWorkerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WorkerConfig)
		wantErr string
	}{
		{"interval too short", func(c *WorkerConfig) { c.FeedInterval = 10 * time.Second }, "FeedInterval"},
		{"retry interval too long", func(c *WorkerConfig) { c.SummaryRetryInterval = 48 * time.Hour }, "SummaryRetryInterval"},
		{"negative gap", func(c *WorkerConfig) { c.SourceFetchGap = -time.Second }, "SourceFetchGap"},
		{"zero gap", func(c *WorkerConfig) { c.SourceFetchGap = 0 }, ""},
		{"bad timezone", func(c *WorkerConfig) { c.Timezone = "Mars/Olympus" }, "Timezone"},
		{"privileged port", func(c *WorkerConfig) { c.HealthPort = 80 }, "HealthPort"},
		{"cache ttl too long", func(c *WorkerConfig) { c.FeedCacheTTL = 2 * time.Hour }, "FeedCacheTTL"},
		{"empty cache", func(c *WorkerConfig) { c.FeedCacheMaxSize = 0 }, "FeedCacheMaxSize"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg, warnings := LoadConfigFromEnv()

	assert.Empty(t, warnings)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigFromEnv_CustomValues(t *testing.T) {
	t.Setenv("FEED_INTERVAL", "30m")
	t.Setenv("LABEL_RETRY_INTERVAL", "1h")
	t.Setenv("SUMMARY_INTERVAL", "5m")
	t.Setenv("SUMMARY_RETRY_INTERVAL", "2h")
	t.Setenv("SOURCE_FETCH_GAP", "0s")
	t.Setenv("WORKER_TIMEZONE", "Asia/Shanghai")
	t.Setenv("JOB_TIMEOUT", "1h")
	t.Setenv("WORKER_HEALTH_PORT", "8081")
	t.Setenv("FEED_CACHE_TTL", "1m")
	t.Setenv("FEED_CACHE_MAX_SIZE", "50")

	cfg, warnings := LoadConfigFromEnv()

	assert.Empty(t, warnings)
	assert.Equal(t, &WorkerConfig{
		FeedInterval:         30 * time.Minute,
		LabelRetryInterval:   time.Hour,
		SummaryInterval:      5 * time.Minute,
		SummaryRetryInterval: 2 * time.Hour,
		SourceFetchGap:       0,
		Timezone:             "Asia/Shanghai",
		JobTimeout:           time.Hour,
		HealthPort:           8081,
		FeedCacheTTL:         time.Minute,
		FeedCacheMaxSize:     50,
	}, cfg)
}

func TestLoadConfigFromEnv_FallbackOnInvalid(t *testing.T) {
	t.Setenv("FEED_INTERVAL", "soon")
	t.Setenv("WORKER_TIMEZONE", "Invalid/Zone")
	t.Setenv("WORKER_HEALTH_PORT", "99999")
	t.Setenv("FEED_CACHE_MAX_SIZE", "-1")

	cfg, warnings := LoadConfigFromEnv()

	assert.Equal(t, []string{"FEED_INTERVAL", "WORKER_TIMEZONE", "WORKER_HEALTH_PORT", "FEED_CACHE_MAX_SIZE"}, warnings.Keys())
	assert.Equal(t, 15*time.Minute, cfg.FeedInterval)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 9091, cfg.HealthPort)
	assert.Equal(t, 999, cfg.FeedCacheMaxSize)
	assert.NoError(t, cfg.Validate())
}

func TestWorkerConfig_Location(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = "Asia/Tokyo"
	assert.Equal(t, "Asia/Tokyo", cfg.Location().String())

	cfg.Timezone = "Nowhere/Land"
	assert.Equal(t, time.UTC, cfg.Location())
}
