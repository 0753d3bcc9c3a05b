package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	res, err := Retry(context.Background(), Policy{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		MaxAttempts:  5,
	}, func(error) bool { return true }, func(attempt int) error {
		attempts++
		if attempt < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", res.Attempts)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	_, err := Retry(context.Background(), Policy{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		MaxAttempts:  5,
	}, func(error) bool { return false }, func(attempt int) error {
		attempts++
		return errors.New("authentication failed")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("non-retryable error must stop after exactly one attempt, got %d", attempts)
	}
}

func TestRetryExhaustsMaxAttempts(t *testing.T) {
	attempts := 0
	res, err := Retry(context.Background(), Policy{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		MaxAttempts:  4,
	}, func(error) bool { return true }, func(attempt int) error {
		attempts++
		return errors.New("connection refused")
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 4 || res.Attempts != 4 {
		t.Fatalf("expected 4 attempts, got %d (result %d)", attempts, res.Attempts)
	}
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, Policy{
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		MaxAttempts:  5,
	}, func(error) bool { return true }, func(attempt int) error {
		return errors.New("connection refused")
	})
	if err == nil {
		t.Fatal("expected an error when context is already cancelled")
	}
}
