// Package circuitbreaker fronts an unreliable dependency with a
// sony/gobreaker state machine and keeps its Prometheus gauges current.
package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"ratefeed/pkg/metrics"
)

// Settings tunes one breaker. MinRequests and FailureRatio drive the trip
// condition, the rest map onto gobreaker directly.
type Settings struct {
	Name         string
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

func DefaultSettings(name string) Settings {
	return Settings{
		Name:         name,
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      60 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.5,
	}
}

// Breaker runs error-returning operations under a circuit breaker and
// records state transitions, requests and failures as metrics.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func New(s Settings) *Breaker {
	if s.MinRequests == 0 {
		s.MinRequests = 3
	}
	if s.FailureRatio <= 0 {
		s.FailureRatio = 0.5
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= s.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateGauge(to))
		},
	})

	metrics.CircuitBreakerState.WithLabelValues(s.Name).Set(stateGauge(cb.State()))

	return &Breaker{cb: cb}
}

// Do runs fn under the breaker. A context already canceled fails fast
// without charging the breaker's counts.
func (b *Breaker) Do(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})

	metrics.CircuitBreakerRequests.WithLabelValues(b.cb.Name(), b.cb.State().String()).Inc()
	if err != nil && !Rejected(err) {
		metrics.CircuitBreakerFailures.WithLabelValues(b.cb.Name()).Inc()
	}

	return err
}

// State reports the breaker state as a word ("closed", "half-open",
// "open") for status endpoints.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Open reports whether calls are currently rejected without reaching the
// dependency.
func (b *Breaker) Open() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// Rejected reports whether err came from the breaker itself rather than
// from the guarded operation.
func Rejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

func stateGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
