package provider

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetryTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &SourceError{Provider: "test", Op: "fetch", Err: errors.New("timeout"), Transient: true}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryStopsAfterAttempts(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return &SourceError{Provider: "test", Op: "fetch", Err: errors.New("timeout"), Transient: true}
	})
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryNeverRetriesSentinels(t *testing.T) {
	for _, sentinel := range []error{ErrNotFound, ErrInvalidSymbol, ErrRateLimited} {
		calls := 0
		err := fastPolicy().Do(context.Background(), func() error {
			calls++
			return sentinel
		})
		if !errors.Is(err, sentinel) {
			t.Fatalf("expected %v to propagate, got %v", sentinel, err)
		}
		if calls != 1 {
			t.Fatalf("sentinel %v retried %d times", sentinel, calls)
		}
	}
}

func TestRetryNonTransientSourceError(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), func() error {
		calls++
		return &SourceError{Provider: "test", Op: "decode", Err: errors.New("bad payload")}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("non-transient error retried %d times", calls)
	}
}

func TestRateLimitedErrorUnwraps(t *testing.T) {
	err := &RateLimitedError{RetryAfter: time.Minute}
	if !IsRateLimited(err) {
		t.Fatalf("RateLimitedError should match ErrRateLimited")
	}
}
