// Package circuitbreaker guards the feed hosts and the LLM provider with
// github.com/sony/gobreaker. A tripped breaker rejects calls with ErrOpen so
// that callers fail a unit of work fast and leave it for the retry sweep.
package circuitbreaker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"ai-feed-reader/internal/observability/metrics"
)

// ErrOpen is returned by Do while the breaker rejects calls.
var ErrOpen = errors.New("circuit breaker open")

// Policy describes when a breaker trips and how it recovers.
type Policy struct {
	Name string

	// HalfOpenProbes is the number of calls let through after Cooldown.
	HalfOpenProbes uint32
	// Window clears the closed-state counters periodically.
	Window   time.Duration
	Cooldown time.Duration

	// Trips once at least MinCalls were seen in Window and the failure ratio
	// reaches FailureRatio.
	MinCalls     uint32
	FailureRatio float64

	// Ignore reports errors that say nothing about upstream health, such as a
	// malformed document. They are returned to the caller but not counted.
	Ignore func(error) bool
}

// LLM is the policy for one completion provider.
func LLM(provider string) Policy {
	return Policy{
		Name:           provider + "-api",
		HalfOpenProbes: 3,
		Window:         30 * time.Second,
		Cooldown:       time.Minute,
		MinCalls:       5,
		FailureRatio:   0.6,
	}
}

// FeedFetch is shared by every feed host, so one dead feed must not trip it.
func FeedFetch() Policy {
	return Policy{
		Name:           "feed-fetch",
		HalfOpenProbes: 5,
		Window:         time.Minute,
		Cooldown:       2 * time.Minute,
		MinCalls:       10,
		FailureRatio:   0.7,
	}
}

// ContentFetch guards full-text extraction of article pages.
func ContentFetch() Policy {
	return Policy{
		Name:           "content-fetch",
		HalfOpenProbes: 5,
		Window:         time.Minute,
		Cooldown:       time.Minute,
		MinCalls:       5,
		FailureRatio:   0.6,
	}
}

// Breaker is safe for concurrent use.
type Breaker struct {
	cb   *gobreaker.CircuitBreaker
	name string
}

// New builds a breaker for p and publishes its state as
// circuit_breaker_state{name}.
func New(p Policy) *Breaker {
	settings := gobreaker.Settings{
		Name:        p.Name,
		MaxRequests: p.HalfOpenProbes,
		Interval:    p.Window,
		Timeout:     p.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < p.MinCalls {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= p.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetCircuitBreakerState(name, int(to))
			slog.Warn("circuit breaker state changed",
				slog.String("circuit", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	if p.Ignore != nil {
		ignore := p.Ignore
		settings.IsSuccessful = func(err error) bool { return err == nil || ignore(err) }
	}
	metrics.SetCircuitBreakerState(p.Name, int(gobreaker.StateClosed))
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings), name: p.Name}
}

// Do runs fn unless the breaker is open. Rejections wrap ErrOpen.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	res, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Warn("circuit breaker rejected call", slog.String("circuit", b.name))
			return zero, fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		return zero, err
	}
	out, _ := res.(T)
	return out, nil
}

func (b *Breaker) Name() string { return b.name }

// Open reports whether calls are currently rejected outright.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}
