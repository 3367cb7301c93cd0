package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestWindowAdmitsUpToLimit(t *testing.T) {
	w := NewWindow(3, time.Minute)
	for i := 0; i < 3; i++ {
		ok, wait := w.TryAcquire()
		if !ok {
			t.Fatalf("request %d should have been admitted (wait %v)", i, wait)
		}
	}
	ok, wait := w.TryAcquire()
	if ok {
		t.Fatalf("request over the limit should have been rejected")
	}
	if wait < 0 || wait > time.Minute {
		t.Fatalf("wait estimate out of range: %v", wait)
	}
}

func TestWindowSlidesWithTime(t *testing.T) {
	now := time.Unix(1000, 0)
	w := NewWindow(2, 10*time.Second)
	w.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := w.TryAcquire(); !ok {
			t.Fatalf("request %d should have been admitted", i)
		}
	}
	if ok, _ := w.TryAcquire(); ok {
		t.Fatalf("window full, request should have been rejected")
	}

	// after the window elapses the old stamps are pruned
	now = now.Add(11 * time.Second)
	if ok, wait := w.TryAcquire(); !ok {
		t.Fatalf("request after window elapsed should be admitted without delay (wait %v)", wait)
	}
	if got := w.Pending(); got != 1 {
		t.Fatalf("expected 1 pending stamp, got %d", got)
	}
}

func TestWindowWaitEstimate(t *testing.T) {
	now := time.Unix(1000, 0)
	w := NewWindow(1, 10*time.Second)
	w.now = func() time.Time { return now }

	if ok, _ := w.TryAcquire(); !ok {
		t.Fatalf("first request should be admitted")
	}

	now = now.Add(4 * time.Second)
	ok, wait := w.TryAcquire()
	if ok {
		t.Fatalf("second request inside window should be rejected")
	}
	if wait != 6*time.Second {
		t.Fatalf("expected 6s wait until the window frees, got %v", wait)
	}
}

func TestAcquireHonorsContext(t *testing.T) {
	w := NewWindow(1, time.Hour)
	if err := w.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.Acquire(ctx); err == nil {
		t.Fatalf("expected context deadline error while window is full")
	}
}
