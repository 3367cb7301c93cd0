package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"tradeflow/logger"
	"tradeflow/models"
)

// BarStore is the durable tier-2 cache: one row per (symbol, timestamp,
// interval), unique on that triple, updated in place on re-fetch. Rows are
// never auto-evicted.
type BarStore struct {
	db  *sql.DB
	log *logger.Log
}

// NewBarStore runs migrations against an already opened database. The
// connection is owned by the caller.
func NewBarStore(db *sql.DB) (*BarStore, error) {
	s := &BarStore{db: db, log: logger.GetLogger()}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate bar store: %w", err)
	}
	return s, nil
}

// OpenBarStore opens (or creates) the SQLite database at path and runs
// migrations. WAL mode keeps reads cheap while a batch run writes.
func OpenBarStore(path string) (*BarStore, *sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s, err := NewBarStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return s, db, nil
}

func (s *BarStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol   TEXT    NOT NULL,
			ts       INTEGER NOT NULL,
			interval TEXT    NOT NULL,
			open     REAL,
			high     REAL,
			low      REAL,
			close    REAL,
			volume   INTEGER,
			UNIQUE(symbol, ts, interval)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bars_symbol_interval_ts ON bars(symbol, interval, ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:30], err)
		}
	}
	return nil
}

// RangeQuery returns the stored bars for a symbol inside [start, end],
// ordered by timestamp.
func (s *BarStore) RangeQuery(ctx context.Context, symbol string, start, end time.Time, interval string) (*models.Series, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, open, high, low, close, volume
		 FROM bars
		 WHERE symbol = ? AND interval = ? AND ts >= ? AND ts <= ?
		 ORDER BY ts ASC`,
		symbol, interval, start.UTC().Unix(), end.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("range query: %w", err)
	}
	defer rows.Close()

	series := &models.Series{Symbol: symbol, Interval: interval}
	for rows.Next() {
		var ts int64
		var bar models.Bar
		if err := rows.Scan(&ts, &bar.Open, &bar.High, &bar.Low, &bar.Close, &bar.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bar.Timestamp = time.Unix(ts, 0).UTC()
		series.Bars = append(series.Bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bars: %w", err)
	}
	return series, nil
}

// Upsert writes the series in a single transaction: existing
// (symbol, ts, interval) rows are updated in place, the rest inserted.
// The transaction is rolled back as a whole on failure.
func (s *BarStore) Upsert(ctx context.Context, series *models.Series) (err error) {
	if series.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
				s.log.WithComponent("bar_store").WithError(rbErr).Warn("rollback failed")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO bars (symbol, ts, interval, open, high, low, close, volume)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(symbol, ts, interval) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, bar := range series.Bars {
		if _, err = stmt.ExecContext(ctx,
			series.Symbol, bar.Timestamp.UTC().Unix(), series.Interval,
			bar.Open, bar.High, bar.Low, bar.Close, bar.Volume,
		); err != nil {
			return fmt.Errorf("upsert bar %s@%d: %w", series.Symbol, bar.Timestamp.Unix(), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Count returns the number of stored bars for a symbol and interval.
func (s *BarStore) Count(ctx context.Context, symbol, interval string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM bars WHERE symbol = ? AND interval = ?`,
		symbol, interval).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count bars: %w", err)
	}
	return n, nil
}
