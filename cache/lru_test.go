package cache

import (
	"testing"
	"time"

	"tradeflow/models"
)

func seriesFixture(symbol string, closes ...float64) *models.Series {
	s := &models.Series{Symbol: symbol, Interval: models.Interval1d}
	base := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s.Bars = append(s.Bars, models.Bar{Timestamp: base.AddDate(0, 0, i), Close: c, Open: c, High: c, Low: c, Volume: 100})
	}
	return s
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", seriesFixture("A", 1))
	c.put("b", seriesFixture("B", 2))

	// touch "a" so "b" becomes the eviction candidate
	if _, ok := c.get("a"); !ok {
		t.Fatalf("expected a to be cached")
	}

	c.put("c", seriesFixture("C", 3))
	if c.contains("b") {
		t.Fatalf("expected b to be evicted")
	}
	if !c.contains("a") || !c.contains("c") {
		t.Fatalf("expected a and c to survive")
	}
	if c.len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.len())
	}
}

func TestLRUCopyIsolation(t *testing.T) {
	c := newLRUCache(4)
	original := seriesFixture("A", 10)
	c.put("a", original)

	// mutating the inserted value must not reach the cache
	original.Bars[0].Close = 99
	got, ok := c.get("a")
	if !ok {
		t.Fatalf("expected a to be cached")
	}
	if got.Bars[0].Close != 10 {
		t.Fatalf("cache stored a reference instead of a copy")
	}

	// mutating the returned value must not reach the cache either
	got.Bars[0].Close = 77
	again, _ := c.get("a")
	if again.Bars[0].Close != 10 {
		t.Fatalf("cache handed out a shared reference")
	}
}

func TestLRUUpdateExistingKey(t *testing.T) {
	c := newLRUCache(2)
	c.put("a", seriesFixture("A", 1))
	c.put("a", seriesFixture("A", 2))

	if c.len() != 1 {
		t.Fatalf("updating a key must not grow the cache, len=%d", c.len())
	}
	got, _ := c.get("a")
	if got.Bars[0].Close != 2 {
		t.Fatalf("expected updated value, got %v", got.Bars[0].Close)
	}
}

func TestKeyDeterministic(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)

	k1 := Key("AAPL", start, end, models.Interval1d)
	k2 := Key("AAPL", start, end, models.Interval1d)
	if k1 != k2 {
		t.Fatalf("same tuple must hash to the same key")
	}

	for i, other := range []string{
		Key("MSFT", start, end, models.Interval1d),
		Key("AAPL", start.AddDate(0, 0, 1), end, models.Interval1d),
		Key("AAPL", start, end, models.Interval1h),
	} {
		if other == k1 {
			t.Fatalf("variant %d produced a colliding key", i)
		}
	}

	if len(k1) != 32 {
		t.Fatalf("expected 32-char key, got %d", len(k1))
	}
}
