package provider

import (
	"context"
	"time"
)

// RetryPolicy bounds how transient source errors are retried: up to
// Attempts tries with exponential backoff clamped to [BaseDelay, MaxDelay].
// Sentinel errors (not found, invalid symbol, rate limited) are never
// retried.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy matches the provider contract: 3 attempts, waits
// bounded to [2s, 10s].
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}
}

// Do runs fn, retrying transient source errors. The wait doubles each
// attempt and never exceeds MaxDelay. Context cancellation aborts between
// attempts.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	delay := p.BaseDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !IsTransient(err) || attempt == attempts {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
	return err
}
