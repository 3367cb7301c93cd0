package ledger

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func testJournal(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec(`CREATE TABLE trades (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol     TEXT NOT NULL,
		trade_date TEXT NOT NULL,
		quantity   REAL,
		price      REAL
	)`); err != nil {
		t.Fatalf("create trades table: %v", err)
	}

	rows := []struct {
		symbol, date string
	}{
		{"AAPL", "2025-01-10"},
		{"AAPL", "2025-02-14"},
		{"AAPL", "2025-03-03"},
		{"MSFT", "2025-01-20"},
		{"600519", "2025-02-01"},
		{"600519", "2025-02-05"},
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO trades (symbol, trade_date, quantity, price) VALUES (?, ?, 10, 100)`,
			r.symbol, r.date); err != nil {
			t.Fatalf("insert trade: %v", err)
		}
	}
	return NewSQLStore(db)
}

func TestSymbolAggregates(t *testing.T) {
	store := testJournal(t)

	aggs, err := store.SymbolAggregates(context.Background())
	if err != nil {
		t.Fatalf("aggregates: %v", err)
	}
	if len(aggs) != 3 {
		t.Fatalf("expected 3 symbols, got %d", len(aggs))
	}

	// ordered by trade count descending, ties by symbol
	if aggs[0].Symbol != "AAPL" || aggs[0].TradeCount != 3 {
		t.Fatalf("expected AAPL first with 3 trades, got %+v", aggs[0])
	}
	if aggs[1].Symbol != "600519" || aggs[1].TradeCount != 2 {
		t.Fatalf("expected 600519 second, got %+v", aggs[1])
	}

	wantFirst := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	wantLast := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	if !aggs[0].FirstTrade.Equal(wantFirst) || !aggs[0].LastTrade.Equal(wantLast) {
		t.Fatalf("AAPL range %v..%v, want %v..%v",
			aggs[0].FirstTrade, aggs[0].LastTrade, wantFirst, wantLast)
	}
}

func TestSymbolAggregatesEmptyLedger(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec(`CREATE TABLE trades (symbol TEXT, trade_date TEXT)`); err != nil {
		t.Fatalf("create trades table: %v", err)
	}

	aggs, err := NewSQLStore(db).SymbolAggregates(context.Background())
	if err != nil {
		t.Fatalf("aggregates: %v", err)
	}
	if len(aggs) != 0 {
		t.Fatalf("expected no aggregates, got %d", len(aggs))
	}
}

func TestParseDayLayouts(t *testing.T) {
	want := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{
		"2025-01-10",
		"2025-01-10T15:30:00Z",
		"2025-01-10 15:30:00",
	} {
		got, err := parseDay(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%q: got %v, want %v", in, got, want)
		}
	}

	if _, err := parseDay("10/01/2025"); err == nil {
		t.Fatalf("expected an error for an unrecognized layout")
	}
}
