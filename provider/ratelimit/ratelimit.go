// Package ratelimit implements the sliding-window request limiter applied
// immediately before every outbound provider call.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window counts request timestamps inside a sliding window of
// windowSeconds and admits at most maxRequests of them. One Window is
// owned per provider instance.
type Window struct {
	max    int
	window time.Duration

	mu     sync.Mutex
	stamps []time.Time
	now    func() time.Time
}

// NewWindow returns a limiter admitting maxRequests per window.
func NewWindow(maxRequests int, window time.Duration) *Window {
	return &Window{
		max:    maxRequests,
		window: window,
		now:    time.Now,
	}
}

// prune drops timestamps older than the window. Caller holds w.mu.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}

// TryAcquire records a request slot if one is free. When the window is
// full it returns false together with the wait until the oldest stamp
// leaves the window.
func (w *Window) TryAcquire() (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)

	if len(w.stamps) < w.max {
		w.stamps = append(w.stamps, now)
		return true, 0
	}

	wait := w.stamps[0].Add(w.window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return false, wait
}

// Acquire blocks until a request slot is free or ctx is done. The wait is
// always the precomputed time until the oldest stamp expires, so no call
// blocks indefinitely.
func (w *Window) Acquire(ctx context.Context) error {
	for {
		ok, wait := w.TryAcquire()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Pending returns the number of requests currently inside the window.
func (w *Window) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.stamps)
}
