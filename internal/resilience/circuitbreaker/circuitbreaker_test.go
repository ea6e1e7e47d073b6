package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-feed-reader/internal/observability/metrics"
)

func tight(name string) Policy {
	return Policy{
		Name:           name,
		HalfOpenProbes: 1,
		Window:         time.Minute,
		Cooldown:       time.Minute,
		MinCalls:       2,
		FailureRatio:   0.5,
	}
}

func TestDo_ReturnsTypedResult(t *testing.T) {
	b := New(LLM("deepseek"))

	got, err := Do(b, func() (string, error) { return "ok", nil })

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, "deepseek-api", b.Name())
}

func TestDo_OpensAfterFailureRatio(t *testing.T) {
	b := New(tight("trip"))
	boom := errors.New("boom")

	for range 2 {
		_, err := Do(b, func() (int, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.True(t, b.Open())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CircuitBreakerState.WithLabelValues("trip")))

	called := false
	_, err := Do(b, func() (int, error) { called = true; return 1, nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.Contains(t, err.Error(), "trip")
	assert.False(t, called)
}

func TestDo_IgnoredErrorsDoNotTrip(t *testing.T) {
	malformed := errors.New("malformed document")
	p := tight("ignore")
	p.Ignore = func(err error) bool { return errors.Is(err, malformed) }
	b := New(p)

	for range 5 {
		_, err := Do(b, func() (int, error) { return 0, malformed })
		assert.ErrorIs(t, err, malformed)
	}
	assert.False(t, b.Open())
}

func TestPolicies(t *testing.T) {
	tests := []struct {
		policy   Policy
		name     string
		minCalls uint32
	}{
		{FeedFetch(), "feed-fetch", 10},
		{ContentFetch(), "content-fetch", 5},
		{LLM("claude"), "claude-api", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.policy.Name)
			assert.Equal(t, tt.minCalls, tt.policy.MinCalls)
			assert.False(t, New(tt.policy).Open())
		})
	}
}
