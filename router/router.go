// Package router classifies symbols by market and selects the provider
// responsible for each, falling back to the global provider when the
// primary has no data.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"tradeflow/logger"
	"tradeflow/models"
	"tradeflow/provider"
)

// Market is the trading venue class a symbol belongs to.
type Market string

const (
	MarketCNA     Market = "cn_a"
	MarketHK      Market = "hk"
	MarketUS      Market = "us"
	MarketCrypto  Market = "crypto"
	MarketUnknown Market = "unknown"
)

// cnaPrefixes are the exchange prefixes of six-digit A-share codes:
// Shanghai main board / STAR, Shenzhen main board / ChiNext, NEEQ.
var cnaPrefixes = []string{"60", "68", "00", "30", "8", "4"}

// DetectMarket classifies a symbol by its pattern.
func DetectMarket(symbol string) Market {
	if symbol == "" {
		return MarketUnknown
	}

	upper := strings.ToUpper(symbol)
	if strings.HasSuffix(upper, "USDT") || strings.HasSuffix(upper, "-USD") {
		return MarketCrypto
	}

	if strings.HasSuffix(upper, ".HK") {
		if isDigits(strings.TrimSuffix(upper, ".HK")) {
			return MarketHK
		}
		return MarketUnknown
	}

	if isDigits(symbol) {
		switch len(symbol) {
		case 6:
			for _, prefix := range cnaPrefixes {
				if strings.HasPrefix(symbol, prefix) {
					return MarketCNA
				}
			}
			return MarketUnknown
		case 4, 5:
			return MarketHK
		default:
			return MarketUnknown
		}
	}

	if len(symbol) <= 5 && isAlpha(symbol) {
		return MarketUS
	}

	return MarketUnknown
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// converter is satisfied by providers that rewrite symbols to their
// native form just before the call.
type converter interface {
	ConvertSymbol(symbol string) (string, error)
}

// Router maps markets to providers. Constructed once per process in main
// and injected into consumers.
type Router struct {
	providers map[Market]provider.Client
	fallback  provider.Client
	log       *logger.Log
}

// New creates a router. fallback is the generic/global provider used both
// for unknown markets and as the second attempt after ErrNotFound.
func New(providers map[Market]provider.Client, fallback provider.Client) *Router {
	return &Router{
		providers: providers,
		fallback:  fallback,
		log:       logger.GetLogger(),
	}
}

// SelectProvider returns the primary provider for a symbol.
func (r *Router) SelectProvider(symbol string) (provider.Client, Market, error) {
	market := DetectMarket(symbol)
	if c, ok := r.providers[market]; ok && c != nil {
		return c, market, nil
	}
	if r.fallback != nil {
		return r.fallback, market, nil
	}
	return nil, market, fmt.Errorf("no provider for market %s", market)
}

// ConvertSymbol applies the provider's native symbol form, when it has one.
func (r *Router) ConvertSymbol(c provider.Client, symbol string) (string, error) {
	if conv, ok := c.(converter); ok {
		return conv.ConvertSymbol(symbol)
	}
	return symbol, nil
}

// GetSeries fetches bars via the symbol's primary provider. On ErrNotFound
// it falls back once to the global provider before giving up. Symbol
// conversion is provider-specific and applied immediately before each call.
func (r *Router) GetSeries(ctx context.Context, symbol string, start, end time.Time, interval string) (*models.Series, error) {
	primary, market, err := r.SelectProvider(symbol)
	if err != nil {
		return nil, err
	}

	series, err := r.fetchWith(ctx, primary, symbol, start, end, interval)
	if err == nil {
		return series, nil
	}
	if !provider.IsNotFound(err) || r.fallback == nil || r.fallback.Name() == primary.Name() {
		return nil, err
	}

	r.log.WithComponent("router").WithFields(logger.Fields{
		"symbol":  symbol,
		"market":  string(market),
		"primary": primary.Name(),
	}).Info("primary provider has no data, trying fallback")

	return r.fetchWith(ctx, r.fallback, symbol, start, end, interval)
}

func (r *Router) fetchWith(ctx context.Context, c provider.Client, symbol string, start, end time.Time, interval string) (*models.Series, error) {
	native, err := r.ConvertSymbol(c, symbol)
	if err != nil {
		return nil, err
	}

	series, err := c.GetSeries(ctx, native, start, end, interval)
	if err != nil {
		return nil, err
	}
	// series stays keyed by the journal symbol, not the provider form
	series.Symbol = symbol
	return series, nil
}
