// Package ledger provides the read-only view of the trade journal the
// batch fetcher plans from.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SymbolAggregate is the per-symbol summary of the trade ledger: first and
// last trade date plus how often the symbol was traded.
type SymbolAggregate struct {
	Symbol     string
	FirstTrade time.Time
	LastTrade  time.Time
	TradeCount int
}

// Store is the sole ledger capability the fetcher needs.
type Store interface {
	SymbolAggregates(ctx context.Context) ([]SymbolAggregate, error)
}

// SQLStore reads aggregates from the journal's trades table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an already opened journal database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// SymbolAggregates groups the ledger by symbol and returns
// (symbol, min(date), max(date), count) ordered by trade count descending.
func (s *SQLStore) SymbolAggregates(ctx context.Context) ([]SymbolAggregate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, MIN(trade_date), MAX(trade_date), COUNT(*)
		 FROM trades
		 GROUP BY symbol
		 ORDER BY COUNT(*) DESC, symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("query trade aggregates: %w", err)
	}
	defer rows.Close()

	var aggs []SymbolAggregate
	for rows.Next() {
		var agg SymbolAggregate
		var first, last string
		if err := rows.Scan(&agg.Symbol, &first, &last, &agg.TradeCount); err != nil {
			return nil, fmt.Errorf("scan trade aggregate: %w", err)
		}
		if agg.FirstTrade, err = parseDay(first); err != nil {
			return nil, fmt.Errorf("parse first trade date %q: %w", first, err)
		}
		if agg.LastTrade, err = parseDay(last); err != nil {
			return nil, fmt.Errorf("parse last trade date %q: %w", last, err)
		}
		aggs = append(aggs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade aggregates: %w", err)
	}
	return aggs, nil
}

func parseDay(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(24 * time.Hour), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}
