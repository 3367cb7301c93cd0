package provider

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned by providers. None of them is retryable; they
// propagate to the batch loop on first occurrence.
var (
	// ErrNotFound means the source has no data for the symbol or range.
	ErrNotFound = errors.New("data not found")
	// ErrInvalidSymbol means the symbol is malformed for the source.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrRateLimited means the source refused the request for throughput
	// reasons; the caller must wait before trying again.
	ErrRateLimited = errors.New("rate limited")
)

// RateLimitedError wraps ErrRateLimited with an estimated wait.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter.Round(time.Millisecond))
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// SourceError is a provider-internal failure. Only transient instances
// (connection resets, timeouts, 5xx) are retried.
type SourceError struct {
	Provider  string
	Op        string
	Err       error
	Transient bool
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a source error worth retrying.
func IsTransient(err error) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Transient
}

// IsNotFound reports whether err means the data does not exist upstream.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidSymbol reports whether err means the symbol is malformed.
func IsInvalidSymbol(err error) bool {
	return errors.Is(err, ErrInvalidSymbol)
}

// IsRateLimited reports whether err is a throughput rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
