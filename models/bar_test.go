package models

import (
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestStandardizeSortsAndDeduplicates(t *testing.T) {
	s := &Series{
		Symbol:   "AAPL",
		Interval: Interval1d,
		Bars: []Bar{
			{Timestamp: day(3), Close: 3},
			{Timestamp: day(1), Close: 1},
			{Timestamp: day(2), Close: 2},
			{Timestamp: day(2), Close: 2.5}, // duplicate, last wins
			{Timestamp: day(4), Close: 0},   // no close, dropped
		},
	}
	s.Standardize()

	if s.Len() != 3 {
		t.Fatalf("expected 3 bars, got %d", s.Len())
	}
	for i, want := range []float64{1, 2.5, 3} {
		if s.Bars[i].Close != want {
			t.Fatalf("bar %d: expected close %v, got %v", i, want, s.Bars[i].Close)
		}
	}
	for i := 1; i < s.Len(); i++ {
		if !s.Bars[i-1].Timestamp.Before(s.Bars[i].Timestamp) {
			t.Fatalf("timestamps not strictly increasing at %d", i)
		}
	}
}

func TestCloneIsolation(t *testing.T) {
	s := &Series{Symbol: "AAPL", Interval: Interval1d, Bars: []Bar{{Timestamp: day(1), Close: 10}}}
	c := s.Clone()
	c.Bars[0].Close = 99

	if s.Bars[0].Close != 10 {
		t.Fatalf("mutating the clone changed the original")
	}
}

func TestSliceRange(t *testing.T) {
	s := &Series{Symbol: "AAPL", Interval: Interval1d}
	for d := 1; d <= 10; d++ {
		s.Bars = append(s.Bars, Bar{Timestamp: day(d), Close: float64(d)})
	}

	got := s.Slice(day(3), day(5))
	if got.Len() != 3 {
		t.Fatalf("expected 3 bars in slice, got %d", got.Len())
	}
	if !got.Bars[0].Timestamp.Equal(day(3)) || !got.Bars[2].Timestamp.Equal(day(5)) {
		t.Fatalf("slice bounds wrong: %v .. %v", got.Bars[0].Timestamp, got.Bars[2].Timestamp)
	}
}

func TestEmptySeries(t *testing.T) {
	var s *Series
	if !s.Empty() {
		t.Fatalf("nil series should be empty")
	}
	if s.Len() != 0 {
		t.Fatalf("nil series should have zero length")
	}
	s2 := &Series{}
	if !s2.Empty() {
		t.Fatalf("series without bars should be empty")
	}
}
