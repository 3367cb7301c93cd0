// Package binance implements the crypto kline provider using the
// go-binance spot client.
package binance

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"

	"tradeflow/config"
	"tradeflow/logger"
	"tradeflow/models"
	"tradeflow/provider"
	"tradeflow/provider/ratelimit"
)

const klineLimit = 1000

// Provider fetches spot klines from Binance.
type Provider struct {
	client  *gobinance.Client
	limiter *ratelimit.Window
	log     *logger.Log
}

// New creates a binance provider from its config section. No API key is
// required for public kline data.
func New(cfg config.ProviderConfig) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := gobinance.NewClient("", "")
	client.HTTPClient = &http.Client{Timeout: timeout}
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	return &Provider{
		client:  client,
		limiter: ratelimit.NewWindow(cfg.MaxRequests, time.Duration(cfg.WindowSeconds)*time.Second),
		log:     logger.GetLogger(),
	}
}

func (p *Provider) Name() string { return "binance" }

// ConvertSymbol maps journal crypto symbols to Binance pairs:
// "BTC-USD" becomes "BTCUSDT", bare pairs pass through uppercased.
func (p *Provider) ConvertSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.ReplaceAll(symbol, "-", ""))
	if s == "" {
		return "", provider.ErrInvalidSymbol
	}
	if strings.HasSuffix(s, "USD") && !strings.HasSuffix(s, "TUSD") {
		s += "T"
	}
	return s, nil
}

func binanceInterval(interval string) (string, bool) {
	switch interval {
	case models.Interval1d:
		return "1d", true
	case models.Interval1h:
		return "1h", true
	case models.Interval1m:
		return "1m", true
	default:
		return "", false
	}
}

func (p *Provider) wrapErr(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case -1121: // invalid symbol
			return provider.ErrInvalidSymbol
		case -1003: // too many requests
			return &provider.RateLimitedError{RetryAfter: time.Minute}
		}
		return &provider.SourceError{Provider: p.Name(), Op: op, Err: err, Transient: apiErr.Code <= -1000 && apiErr.Code >= -1099}
	}
	return &provider.SourceError{Provider: p.Name(), Op: op, Err: err, Transient: true}
}

// GetSeries fetches spot klines for [start, end], paging through the
// 1000-kline response limit.
func (p *Provider) GetSeries(ctx context.Context, symbol string, start, end time.Time, interval string) (*models.Series, error) {
	bi, ok := binanceInterval(interval)
	if !ok {
		return nil, &provider.SourceError{Provider: p.Name(), Op: "map interval", Err: errors.New("unsupported interval " + interval)}
	}

	series := &models.Series{Symbol: symbol, Interval: interval}
	cursor := start
	for !cursor.After(end) {
		if err := p.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		klines, err := p.client.NewKlinesService().
			Symbol(symbol).
			Interval(bi).
			StartTime(cursor.UnixMilli()).
			EndTime(end.UnixMilli()).
			Limit(klineLimit).
			Do(ctx)
		if err != nil {
			return nil, p.wrapErr("fetch klines", err)
		}
		if len(klines) == 0 {
			break
		}

		for _, k := range klines {
			bar, ok := toBar(k)
			if !ok {
				continue
			}
			series.Bars = append(series.Bars, bar)
		}

		last := time.UnixMilli(klines[len(klines)-1].CloseTime).UTC()
		if len(klines) < klineLimit || !last.After(cursor) {
			break
		}
		cursor = last
	}
	series.Standardize()

	logger.RecordProviderRequest(p.Name(), series.Len())
	if series.Empty() {
		return nil, provider.ErrNotFound
	}
	return series, nil
}

func toBar(k *gobinance.Kline) (models.Bar, bool) {
	open, err1 := strconv.ParseFloat(k.Open, 64)
	high, err2 := strconv.ParseFloat(k.High, 64)
	low, err3 := strconv.ParseFloat(k.Low, 64)
	clos, err4 := strconv.ParseFloat(k.Close, 64)
	vol, err5 := strconv.ParseFloat(k.Volume, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return models.Bar{}, false
	}
	return models.Bar{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     clos,
		Volume:    int64(vol),
	}, true
}

// GetSymbolMetadata resolves the symbol against exchange info.
func (p *Provider) GetSymbolMetadata(ctx context.Context, symbol string) (provider.Metadata, error) {
	if err := p.limiter.Acquire(ctx); err != nil {
		return provider.Metadata{}, err
	}

	info, err := p.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return provider.Metadata{}, p.wrapErr("exchange info", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			return provider.Metadata{
				Symbol:   s.Symbol,
				Exchange: "BINANCE",
				Currency: s.QuoteAsset,
				Type:     "CRYPTO",
			}, nil
		}
	}
	return provider.Metadata{}, provider.ErrNotFound
}

// IsAvailable pings the REST endpoint.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	if err := p.client.NewPingService().Do(ctx); err != nil {
		p.log.WithComponent("binance_provider").WithError(err).Warn("availability probe failed")
		return false
	}
	return true
}
