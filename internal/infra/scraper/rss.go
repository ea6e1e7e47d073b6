// Package scraper fetches and parses RSS/Atom feeds and discovers site favicons.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"ai-feed-reader/internal/domain/entity"
	"ai-feed-reader/internal/resilience/circuitbreaker"
	"ai-feed-reader/internal/resilience/retry"

	"github.com/mmcdole/gofeed"
)

const (
	userAgent = "AIFeedReaderBot/1.0"
	// maxBodySize limits feed responses to 10MB.
	maxBodySize = 10 << 20
)

// RSSFetcher downloads and parses one feed URL.
type RSSFetcher struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.Breaker
	retryConfig    retry.Config
}

// NewRSSFetcher creates a fetcher with retry and circuit breaker protection.
func NewRSSFetcher(client *http.Client) *RSSFetcher {
	return &RSSFetcher{
		client:         client,
		circuitBreaker: circuitbreaker.New(feedFetchPolicy()),
		retryConfig:    retry.FeedFetchConfig(),
	}
}

// WithRetryConfig overrides the retry policy. Intended for tests.
func (f *RSSFetcher) WithRetryConfig(cfg retry.Config) *RSSFetcher {
	f.retryConfig = cfg
	return f
}

// Fetch retrieves and parses the feed at feedURL. Parse failures wrap
// ErrParseFailed and are not retried.
func (f *RSSFetcher) Fetch(ctx context.Context, feedURL string) (*entity.Feed, error) {
	var feed *entity.Feed

	err := retry.WithBackoff(ctx, f.retryConfig, func() error {
		result, err := circuitbreaker.Do(f.circuitBreaker, func() (*entity.Feed, error) {
			return f.doFetch(ctx, feedURL)
		})
		if errors.Is(err, circuitbreaker.ErrOpen) {
			slog.Warn("feed fetch rejected", slog.String("url", feedURL))
			return retry.Permanent(err)
		}
		if err != nil {
			return err
		}
		feed = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return feed, nil
}

func (f *RSSFetcher) doFetch(ctx context.Context, feedURL string) (*entity.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &retry.HTTPError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected status: %s", resp.Status),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		if parsed == nil || len(parsed.Items) == 0 {
			return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
		}
		// 部分的に壊れていてもエントリが取れていれば採用する
		slog.Debug("feed parsed with errors",
			slog.String("url", feedURL),
			slog.Any("error", err))
	}

	feed := convertFeed(parsed)
	feed.FetchedURL = feedURL
	return feed, nil
}

// feedFetchPolicy does not count unparsable bodies: the host answered.
func feedFetchPolicy() circuitbreaker.Policy {
	p := circuitbreaker.FeedFetch()
	p.Ignore = IsParseFailure
	return p
}

// IsParseFailure reports whether err came from an unparsable feed body.
func IsParseFailure(err error) bool {
	return errors.Is(err, ErrParseFailed)
}
