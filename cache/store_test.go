package cache

import (
	"context"
	"path/filepath"
	"testing"

	"tradeflow/models"
)

func testBarStore(t *testing.T) *BarStore {
	t.Helper()
	store, db, err := OpenBarStore(filepath.Join(t.TempDir(), "bars.db"))
	if err != nil {
		t.Fatalf("open bar store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return store
}

func TestUpsertAndRangeQuery(t *testing.T) {
	store := testBarStore(t)
	ctx := context.Background()

	series := seriesFixture("AAPL", 10, 11, 12, 13, 14)
	if err := store.Upsert(ctx, series); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	start := series.Bars[0].Timestamp
	end := series.Bars[4].Timestamp
	got, err := store.RangeQuery(ctx, "AAPL", start, end, models.Interval1d)
	if err != nil {
		t.Fatalf("range query: %v", err)
	}
	if got.Len() != 5 {
		t.Fatalf("expected 5 bars, got %d", got.Len())
	}
	if got.Bars[0].Close != 10 || got.Bars[4].Close != 14 {
		t.Fatalf("unexpected closes %v .. %v", got.Bars[0].Close, got.Bars[4].Close)
	}

	// a narrower range returns only its rows
	mid, err := store.RangeQuery(ctx, "AAPL", series.Bars[1].Timestamp, series.Bars[2].Timestamp, models.Interval1d)
	if err != nil {
		t.Fatalf("mid range query: %v", err)
	}
	if mid.Len() != 2 {
		t.Fatalf("expected 2 bars in mid range, got %d", mid.Len())
	}
}

func TestUpsertIdempotentAndUpdatesInPlace(t *testing.T) {
	store := testBarStore(t)
	ctx := context.Background()

	series := seriesFixture("AAPL", 10, 11, 12)
	if err := store.Upsert(ctx, series); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := store.Upsert(ctx, series); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	n, err := store.Count(ctx, "AAPL", models.Interval1d)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("re-upsert must not duplicate rows, count=%d", n)
	}

	// re-fetch with revised values updates the matching rows
	revised := series.Clone()
	revised.Bars[0].Close = 100
	if err := store.Upsert(ctx, revised); err != nil {
		t.Fatalf("revised upsert: %v", err)
	}
	got, err := store.RangeQuery(ctx, "AAPL", series.Bars[0].Timestamp, series.Bars[2].Timestamp, models.Interval1d)
	if err != nil {
		t.Fatalf("range query: %v", err)
	}
	if got.Bars[0].Close != 100 {
		t.Fatalf("expected in-place update, got close %v", got.Bars[0].Close)
	}
}

func TestRangeQueryIsolatesIntervals(t *testing.T) {
	store := testBarStore(t)
	ctx := context.Background()

	daily := seriesFixture("AAPL", 10, 11)
	hourly := daily.Clone()
	hourly.Interval = models.Interval1h
	if err := store.Upsert(ctx, daily); err != nil {
		t.Fatalf("upsert daily: %v", err)
	}
	if err := store.Upsert(ctx, hourly); err != nil {
		t.Fatalf("upsert hourly: %v", err)
	}

	got, err := store.RangeQuery(ctx, "AAPL", daily.Bars[0].Timestamp, daily.Bars[1].Timestamp, models.Interval1d)
	if err != nil {
		t.Fatalf("range query: %v", err)
	}
	if got.Len() != 2 {
		t.Fatalf("expected only daily bars, got %d", got.Len())
	}
	if got.Interval != models.Interval1d {
		t.Fatalf("expected daily interval, got %s", got.Interval)
	}
}

func TestUpsertEmptySeriesIsNoop(t *testing.T) {
	store := testBarStore(t)
	if err := store.Upsert(context.Background(), &models.Series{Symbol: "AAPL", Interval: models.Interval1d}); err != nil {
		t.Fatalf("empty upsert should be a no-op: %v", err)
	}
}
