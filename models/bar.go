package models

import (
	"math"
	"sort"
	"time"
)

// Interval identifies the bar aggregation period.
const (
	Interval1m = "1m"
	Interval1h = "1h"
	Interval1d = "1d"
)

// Bar represents a single OHLCV bar for one symbol and interval.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Date returns the calendar day of the bar in UTC.
func (b Bar) Date() time.Time {
	return b.Timestamp.UTC().Truncate(24 * time.Hour)
}

// Series is an ordered sequence of bars for one (symbol, interval).
type Series struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	Bars     []Bar  `json:"bars"`
}

// Empty reports whether the series holds no bars.
func (s *Series) Empty() bool {
	return s == nil || len(s.Bars) == 0
}

// Len returns the number of bars.
func (s *Series) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Standardize enforces the series invariants in place: bars sorted by
// ascending timestamp, duplicate timestamps collapsed (last one wins) and
// bars without a close price dropped. Providers call this before returning
// data so every response shares a canonical shape.
func (s *Series) Standardize() {
	if s == nil || len(s.Bars) == 0 {
		return
	}

	kept := s.Bars[:0]
	for _, b := range s.Bars {
		if b.Close == 0 || math.IsNaN(b.Close) {
			continue
		}
		kept = append(kept, b)
	}
	s.Bars = kept

	sort.SliceStable(s.Bars, func(i, j int) bool {
		return s.Bars[i].Timestamp.Before(s.Bars[j].Timestamp)
	})

	dedup := s.Bars[:0]
	for _, b := range s.Bars {
		if n := len(dedup); n > 0 && dedup[n-1].Timestamp.Equal(b.Timestamp) {
			dedup[n-1] = b
			continue
		}
		dedup = append(dedup, b)
	}
	s.Bars = dedup
}

// Clone returns a deep copy of the series. Cache tiers hand out clones so
// caller mutation never corrupts cached state.
func (s *Series) Clone() *Series {
	if s == nil {
		return nil
	}
	out := &Series{
		Symbol:   s.Symbol,
		Interval: s.Interval,
		Bars:     make([]Bar, len(s.Bars)),
	}
	copy(out.Bars, s.Bars)
	return out
}

// Slice returns the bars falling inside [start, end] as a new series.
func (s *Series) Slice(start, end time.Time) *Series {
	if s == nil {
		return &Series{}
	}
	out := &Series{Symbol: s.Symbol, Interval: s.Interval}
	for _, b := range s.Bars {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out.Bars = append(out.Bars, b)
	}
	return out
}
