// Package retry runs operations under exponential backoff, honoring the
// retryable and fatal markings carried by the errors they return.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retryable and Fatal are the markings the loop classifies errors by.
// Pipeline errors implement both interfaces at once, so classification
// consults the method result, not just interface satisfaction.
type Retryable interface {
	error
	IsRetryable() bool
}

type Fatal interface {
	error
	IsFatal() bool
}

// MarkFatal wraps err so a retry loop stops on it immediately.
func MarkFatal(err error) error {
	if err == nil {
		return nil
	}
	return markFatal{err}
}

// MarkRetryable overrides a non-retryable marking on err. It cannot
// resurrect a fatal error, the wrapped chain is still inspected.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return markRetryable{err}
}

type markFatal struct{ error }

func (markFatal) IsFatal() bool   { return true }
func (m markFatal) Unwrap() error { return m.error }

type markRetryable struct{ error }

func (markRetryable) IsRetryable() bool { return true }
func (m markRetryable) Unwrap() error   { return m.error }

// Policy bounds a retry loop. MaxAttempts <= 0 removes the attempt cap, the
// loop then runs until success, a fatal error, MaxElapsedTime, or context
// cancellation.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxElapsedTime  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  5 * time.Minute,
	}
}

// UnboundedPolicy retries until the operation succeeds, turns fatal, or the
// context is canceled. Used where giving up would lose data.
func UnboundedPolicy() Policy {
	return Policy{
		MaxAttempts:     0,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		MaxElapsedTime:  0,
	}
}

// schedule builds the backoff chain for one run of the loop. MaxElapsedTime
// zero means the exponential schedule never expires on its own.
func (p Policy) schedule(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.Multiplier = p.Multiplier
	exp.MaxElapsedTime = p.MaxElapsedTime

	var b backoff.BackOff = backoff.WithContext(exp, ctx)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return b
}

// delay approximates the sleep that follows the given attempt, for logging
// in callbacks. The authoritative schedule lives in the backoff instance.
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.MaxInterval) {
		return p.MaxInterval
	}
	return time.Duration(d)
}

// Retry runs fn under the policy until it succeeds, returns a permanent
// error, or the policy gives up.
func Retry(ctx context.Context, policy Policy, fn func() error) error {
	return RetryWithCallback(ctx, policy, fn, nil)
}

// RetryWithCallback is Retry with a hook invoked before each sleep, giving
// the caller a place to log and count the failed attempt.
func RetryWithCallback(ctx context.Context, policy Policy, fn func() error, onRetry func(attempt int, err error, nextDelay time.Duration)) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}

		if permanent(err) {
			return backoff.Permanent(err)
		}

		if onRetry != nil && (policy.MaxAttempts <= 0 || attempt < policy.MaxAttempts) {
			onRetry(attempt, err, policy.delay(attempt))
		}
		return err
	}

	return backoff.Retry(operation, policy.schedule(ctx))
}

// permanent reports whether err refuses further attempts. Errors carrying no
// marking at all are retried, repeating work is cheaper than losing it.
func permanent(err error) bool {
	var f Fatal
	if errors.As(err, &f) && f.IsFatal() {
		return true
	}
	var r Retryable
	if errors.As(err, &r) && !r.IsRetryable() {
		return true
	}
	return false
}
