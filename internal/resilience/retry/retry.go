// Package retry re-runs a failing call with exponential backoff. Every attempt
// is logged with its number through the logger carried by the context.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"syscall"
	"time"

	"ai-feed-reader/internal/observability/logging"
)

// ErrExhausted wraps the last error once every attempt has failed.
var ErrExhausted = errors.New("retry attempts exhausted")

// Config is a backoff policy. The n-th retry waits
// InitialDelay * Multiplier^(n-1), capped at MaxDelay, plus up to
// JitterFraction of that delay.
type Config struct {
	MaxAttempts    int // including the first call
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64

	// Retryable decides whether an error is worth another attempt.
	// nil means IsRetryable. Permanent errors are never retried.
	Retryable func(error) bool
}

// FeedFetchConfig is used for each URL variant of a feed fetch. The ingestor
// already falls back to a second URL, so attempts stay low.
func FeedFetchConfig() Config {
	return Config{
		MaxAttempts:    2,
		InitialDelay:   time.Second,
		MaxDelay:       5 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.1,
	}
}

// LLMConfig allows maxRetries extra calls after 1s, 2s, 4s... Unparsable
// output is retried like a transport failure.
func LLMConfig(maxRetries int) Config {
	return Config{
		MaxAttempts:  max(maxRetries, 0) + 1,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		Retryable:    RetryAll,
	}
}

// Delay is the wait before retry number n (1-based), without jitter.
func (c Config) Delay(n int) time.Duration {
	if n < 1 {
		return 0
	}
	mult := c.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(c.InitialDelay) * math.Pow(mult, float64(n-1)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// WithBackoff calls fn until it succeeds, fails with an error that is not
// retryable, or runs out of attempts.
func WithBackoff(ctx context.Context, cfg Config, fn func() error) error {
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	attempts := max(cfg.MaxAttempts, 1)
	logger := logging.FromContext(ctx)

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil {
			if attempt > 1 {
				logger.Info("call succeeded after retry", slog.Int("attempt", attempt))
			}
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		if !retryable(err) {
			logger.Debug("error not retryable",
				slog.Int("attempt", attempt),
				slog.Any("error", err))
			return err
		}
		if attempt >= attempts {
			break
		}

		wait := jitter(cfg.Delay(attempt), cfg.JitterFraction)
		logger.Warn("call failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", wait),
			slog.Any("error", err))

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted at attempt %d: %w", attempt, ctx.Err())
		}
	}
	return fmt.Errorf("%w (%d): %w", ErrExhausted, attempts, err)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that WithBackoff returns it at once, whatever the
// Retryable policy says. WithBackoff returns err itself, unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// RetryAll retries everything except context cancellation and deadline expiry.
func RetryAll(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// IsRetryable reports whether err is a transient transport failure: a
// network timeout, a refused or reset connection, or an HTTP 5xx/429/408.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 ||
			httpErr.StatusCode == http.StatusTooManyRequests ||
			httpErr.StatusCode == http.StatusRequestTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT, syscall.ENETUNREACH} {
		if errors.Is(err, errno) {
			return true
		}
	}
	return false
}

// HTTPError is a non-2xx response from a feed host or content page.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func jitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 || d <= 0 {
		return d
	}
	fraction = min(fraction, 1)
	// #nosec G404 -- backoff jitter does not need cryptographic randomness.
	return d + time.Duration(rand.Float64()*float64(d)*fraction)
}
