package models

import (
	"fmt"
	"time"
)

// Requirement is a single unit of acquisition work: one symbol and the date
// range its bars must cover. Requirements are rebuilt from the trade ledger
// on every batch run and discarded afterwards.
type Requirement struct {
	Symbol         string
	Start          time.Time
	End            time.Time
	OriginalSymbol string
	IsUnderlying   bool
	Priority       int
}

// Key identifies a requirement for de-duplication.
func (r Requirement) Key() string {
	return fmt.Sprintf("%s|%s|%s", r.Symbol, r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"))
}

// OutcomeKind tags the result of one requirement inside a batch run.
type OutcomeKind int

const (
	OutcomeFetched OutcomeKind = iota
	OutcomeSkipped
	OutcomeFailed
)

// Outcome is the per-requirement result of a batch iteration. The batch
// loop produces one outcome per requirement instead of letting provider
// errors cross the iteration boundary.
type Outcome struct {
	Symbol  string
	Kind    OutcomeKind
	Records int
	Reason  string
	Err     error
}

// FailedSymbol pairs a symbol with the reason its fetch failed.
type FailedSymbol struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// FetchStats aggregates the result of a full batch run.
type FetchStats struct {
	RunID           string         `json:"run_id"`
	SymbolsAnalyzed int            `json:"symbols_analyzed"`
	SymbolsCached   int            `json:"symbols_cached"`
	SymbolsFetched  int            `json:"symbols_fetched"`
	SymbolsSkipped  int            `json:"symbols_skipped"`
	RecordsFetched  int            `json:"records_fetched"`
	FailedSymbols   []FailedSymbol `json:"failed_symbols"`
	Duration        time.Duration  `json:"duration"`
}
