package retry

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts int) Config {
	return Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestWithBackoff_SuccessAfterRetry(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 3 {
			return &HTTPError{StatusCode: 503, Message: "unavailable"}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithBackoff_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	err := WithBackoff(context.Background(), fastConfig(5), func() error {
		attempts++
		return &HTTPError{StatusCode: 404, Message: "not found"}
	})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, attempts)
}

func TestWithBackoff_Exhausted(t *testing.T) {
	sentinel := errors.New("still broken")
	cfg := fastConfig(3)
	cfg.Retryable = RetryAll

	attempts := 0
	err := WithBackoff(context.Background(), cfg, func() error {
		attempts++
		return sentinel
	})

	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, sentinel)
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestWithBackoff_PermanentOverridesPolicy(t *testing.T) {
	sentinel := errors.New("breaker open")
	cfg := fastConfig(5)
	cfg.Retryable = RetryAll

	attempts := 0
	err := WithBackoff(context.Background(), cfg, func() error {
		attempts++
		return fmt.Errorf("call: %w", Permanent(sentinel))
	})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, sentinel, err)
	assert.Nil(t, Permanent(nil))
}

func TestWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(3)
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour
	cfg.Retryable = RetryAll

	go cancel()
	err := WithBackoff(ctx, cfg, func() error { return errors.New("fail") })

	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigDelay(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}
	tests := []struct {
		n    int
		want time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.Delay(tt.n), "retry %d", tt.n)
	}

	flat := Config{InitialDelay: time.Millisecond}
	assert.Equal(t, time.Millisecond, flat.Delay(3), "multiplier below 1 keeps the delay flat")
}

func TestLLMConfig(t *testing.T) {
	cfg := LLMConfig(2)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Delay(1))
	assert.Equal(t, 2*time.Second, cfg.Delay(2))
	assert.True(t, cfg.Retryable(errors.New("bad json")))
	assert.False(t, cfg.Retryable(context.DeadlineExceeded))

	assert.Equal(t, 1, LLMConfig(-1).MaxAttempts)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "5xx", err: &HTTPError{StatusCode: 500}, want: true},
		{name: "429", err: &HTTPError{StatusCode: 429}, want: true},
		{name: "408", err: &HTTPError{StatusCode: 408}, want: true},
		{name: "4xx", err: &HTTPError{StatusCode: 400}, want: false},
		{name: "wrapped 502", err: fmt.Errorf("fetch: %w", &HTTPError{StatusCode: 502}), want: true},
		{name: "conn refused", err: syscall.ECONNREFUSED, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "plain", err: errors.New("x"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestJitter(t *testing.T) {
	d := 100 * time.Millisecond
	assert.Equal(t, d, jitter(d, 0))
	for range 20 {
		got := jitter(d, 0.5)
		assert.GreaterOrEqual(t, got, d)
		assert.LessOrEqual(t, got, d+d/2)
	}
}
