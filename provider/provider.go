// Package provider defines the contract upstream price sources must satisfy
// and the error taxonomy shared by all of them.
package provider

import (
	"context"
	"time"

	"tradeflow/models"
)

// Client is implemented by every upstream price source. Implementations
// return standardized series: canonical column set, ascending timestamps,
// no duplicates, bars without a close dropped.
type Client interface {
	// GetSeries fetches bars for [start, end] at the given interval.
	GetSeries(ctx context.Context, symbol string, start, end time.Time, interval string) (*models.Series, error)
	// GetSymbolMetadata returns descriptive information about a symbol.
	GetSymbolMetadata(ctx context.Context, symbol string) (Metadata, error)
	// IsAvailable probes whether the source is reachable. Queried once at
	// startup; unavailable providers are left out of the router.
	IsAvailable(ctx context.Context) bool
	// Name identifies the provider in logs and statistics.
	Name() string
}

// Metadata describes a symbol as reported by a provider.
type Metadata struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
	Type     string `json:"type"`
}
