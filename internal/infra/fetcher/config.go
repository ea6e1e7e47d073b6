package fetcher

import (
	"time"

	"ai-feed-reader/internal/pkg/config"
)

// ContentFetchConfig controls the full-text enhancement of thin feed entries.
type ContentFetchConfig struct {
	// Enabled toggles the feature. Off by default.
	Enabled bool
	// Threshold is the content length (in runes) below which the article page is fetched.
	Threshold int
	// Timeout bounds a single page request.
	Timeout time.Duration
	// MaxBodySize caps the page size in bytes.
	MaxBodySize int64
	// MaxRedirects caps the redirect chain.
	MaxRedirects int
	// DenyPrivateIPs rejects hosts resolving to private or loopback addresses.
	DenyPrivateIPs bool
}

func DefaultConfig() ContentFetchConfig {
	return ContentFetchConfig{
		Enabled:        false,
		Threshold:      500,
		Timeout:        10 * time.Second,
		MaxBodySize:    10 << 20,
		MaxRedirects:   5,
		DenyPrivateIPs: true,
	}
}

// LoadConfigFromEnv reads the CONTENT_FETCH_* variables, keeping defaults for bad values.
func LoadConfigFromEnv() (ContentFetchConfig, config.Warnings) {
	def := DefaultConfig()
	var w config.Warnings
	return ContentFetchConfig{
		Enabled:        config.Add(&w, config.LoadEnvBool("CONTENT_FETCH_ENABLED", def.Enabled)),
		Threshold:      config.Add(&w, config.LoadEnvInt("CONTENT_FETCH_THRESHOLD", def.Threshold, config.IntRange(0, 100000))),
		Timeout:        config.Add(&w, config.LoadEnvDuration("CONTENT_FETCH_TIMEOUT", def.Timeout, config.DurationRange(time.Second, 2*time.Minute))),
		MaxBodySize:    int64(config.Add(&w, config.LoadEnvInt("CONTENT_FETCH_MAX_BODY_SIZE", int(def.MaxBodySize), config.IntRange(1024, 100<<20)))),
		MaxRedirects:   config.Add(&w, config.LoadEnvInt("CONTENT_FETCH_MAX_REDIRECTS", def.MaxRedirects, config.IntRange(0, 20))),
		DenyPrivateIPs: config.Add(&w, config.LoadEnvBool("CONTENT_FETCH_DENY_PRIVATE_IPS", def.DenyPrivateIPs)),
	}, w
}
