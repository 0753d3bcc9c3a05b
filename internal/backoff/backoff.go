// Package backoff implements the capped, jittered exponential retry loop
// used by the SSH client facade's connect-with-retry operation.
package backoff

import (
	"context"
	"time"

	cenkalti "github.com/cenkalti/backoff/v4"
)

// Policy configures a retry loop: start at InitialDelay, double on every
// failed attempt, cap at MaxDelay, jitter the result, and give up after
// MaxAttempts total tries (the first attempt plus MaxAttempts-1 retries).
type Policy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
}

// Result reports how many attempts an operation actually used.
type Result struct {
	Attempts int
}

// Retry runs op until it succeeds, until op returns a non-retryable error
// (when should(err) returns false), or until the policy's attempt budget
// is exhausted. It returns the last error on exhaustion along with the
// number of attempts made.
func Retry(ctx context.Context, policy Policy, should func(error) bool, op func(attempt int) error) (Result, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	eb := cenkalti.NewExponentialBackOff()
	eb.InitialInterval = policy.InitialDelay
	eb.MaxInterval = policy.MaxDelay
	eb.Multiplier = 2
	eb.RandomizationFactor = 0.5 // jitter window
	eb.Reset()

	var lastErr error
	attempt := 0
	for {
		attempt++
		lastErr = op(attempt)
		if lastErr == nil {
			return Result{Attempts: attempt}, nil
		}
		if should != nil && !should(lastErr) {
			return Result{Attempts: attempt}, lastErr
		}
		if attempt >= maxAttempts {
			return Result{Attempts: attempt}, lastErr
		}

		delay := eb.NextBackOff()
		if delay == cenkalti.Stop {
			return Result{Attempts: attempt}, lastErr
		}
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Result{Attempts: attempt}, ctx.Err()
		}
	}
}
