// Package eastmoney implements the China A-share provider backed by the
// eastmoney push2his kline API.
package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tradeflow/config"
	"tradeflow/logger"
	"tradeflow/models"
	"tradeflow/provider"
	"tradeflow/provider/ratelimit"
)

const defaultBaseURL = "https://push2his.eastmoney.com"

// Provider fetches historical bars for Shanghai/Shenzhen listed symbols.
type Provider struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.Window
	log     *logger.Log
}

// New creates an eastmoney provider from its config section.
func New(cfg config.ProviderConfig) *Provider {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		limiter: ratelimit.NewWindow(cfg.MaxRequests, time.Duration(cfg.WindowSeconds)*time.Second),
		log:     logger.GetLogger(),
	}
}

func (p *Provider) Name() string { return "eastmoney" }

// ConvertSymbol maps a six-digit A-share code to the push2his secid form:
// market prefix 1 for Shanghai (60/68/9), 0 for Shenzhen (00/30/8/4).
func (p *Provider) ConvertSymbol(symbol string) (string, error) {
	if len(symbol) != 6 {
		return "", provider.ErrInvalidSymbol
	}
	for _, r := range symbol {
		if r < '0' || r > '9' {
			return "", provider.ErrInvalidSymbol
		}
	}
	if strings.HasPrefix(symbol, "60") || strings.HasPrefix(symbol, "68") || strings.HasPrefix(symbol, "9") {
		return "1." + symbol, nil
	}
	return "0." + symbol, nil
}

func klt(interval string) (string, error) {
	switch interval {
	case models.Interval1d:
		return "101", nil
	case models.Interval1h:
		return "60", nil
	case models.Interval1m:
		return "1", nil
	default:
		return "", fmt.Errorf("unsupported interval %q", interval)
	}
}

// klineResponse is the push2his kline payload. Klines rows look like
// "2025-01-17,10.10,10.30,10.40,10.00,123456,...".
type klineResponse struct {
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Market int      `json:"market"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

func (p *Provider) fetchKlines(ctx context.Context, secid string, start, end time.Time, interval string) (*klineResponse, error) {
	k, err := klt(interval)
	if err != nil {
		return nil, &provider.SourceError{Provider: p.Name(), Op: "map interval", Err: err}
	}

	if err := p.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/api/qt/stock/kline/get?secid=%s&klt=%s&fqt=1&beg=%s&end=%s&fields1=f1,f2,f3&fields2=f51,f52,f53,f54,f55,f56",
		p.baseURL, secid, k, start.Format("20060102"), end.Format("20060102"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &provider.SourceError{Provider: p.Name(), Op: "build request", Err: err}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &provider.SourceError{Provider: p.Name(), Op: "fetch klines", Err: err, Transient: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.SourceError{Provider: p.Name(), Op: "read body", Err: err, Transient: true}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &provider.RateLimitedError{RetryAfter: time.Minute}
	case resp.StatusCode >= 500:
		return nil, &provider.SourceError{
			Provider:  p.Name(),
			Op:        "fetch klines",
			Err:       fmt.Errorf("status %d", resp.StatusCode),
			Transient: true,
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &provider.SourceError{
			Provider: p.Name(),
			Op:       "fetch klines",
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var kr klineResponse
	if err := json.Unmarshal(body, &kr); err != nil {
		return nil, &provider.SourceError{Provider: p.Name(), Op: "decode klines", Err: err}
	}
	return &kr, nil
}

// GetSeries fetches bars for [start, end] and returns them standardized.
// The symbol must already be in secid form (see ConvertSymbol).
func (p *Provider) GetSeries(ctx context.Context, symbol string, start, end time.Time, interval string) (*models.Series, error) {
	kr, err := p.fetchKlines(ctx, symbol, start, end, interval)
	if err != nil {
		return nil, err
	}
	if kr.Data == nil || len(kr.Data.Klines) == 0 {
		return nil, provider.ErrNotFound
	}

	series := &models.Series{Symbol: symbol, Interval: interval}
	for _, line := range kr.Data.Klines {
		bar, ok := parseKline(line)
		if !ok {
			p.log.WithComponent("eastmoney_provider").WithFields(logger.Fields{
				"symbol": symbol,
				"line":   line,
			}).Warn("skipping malformed kline row")
			continue
		}
		series.Bars = append(series.Bars, bar)
	}
	series.Standardize()

	logger.RecordProviderRequest(p.Name(), series.Len())
	if series.Empty() {
		return nil, provider.ErrNotFound
	}
	return series, nil
}

// parseKline splits a "date,open,close,high,low,volume" row.
func parseKline(line string) (models.Bar, bool) {
	parts := strings.Split(line, ",")
	if len(parts) < 6 {
		return models.Bar{}, false
	}

	ts, err := time.Parse("2006-01-02", parts[0])
	if err != nil {
		// intraday rows carry a time component
		ts, err = time.Parse("2006-01-02 15:04", parts[0])
		if err != nil {
			return models.Bar{}, false
		}
	}

	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(parts[i+1], 64)
		if err != nil {
			return models.Bar{}, false
		}
		vals[i] = v
	}

	return models.Bar{
		Timestamp: ts.UTC(),
		Open:      vals[0],
		Close:     vals[1],
		High:      vals[2],
		Low:       vals[3],
		Volume:    int64(vals[4]),
	}, true
}

// GetSymbolMetadata returns the name and exchange reported by the kline API.
func (p *Provider) GetSymbolMetadata(ctx context.Context, symbol string) (provider.Metadata, error) {
	end := time.Now()
	kr, err := p.fetchKlines(ctx, symbol, end.AddDate(0, 0, -7), end, models.Interval1d)
	if err != nil {
		return provider.Metadata{}, err
	}
	if kr.Data == nil {
		return provider.Metadata{}, provider.ErrNotFound
	}

	exchange := "SZSE"
	if kr.Data.Market == 1 {
		exchange = "SSE"
	}
	return provider.Metadata{
		Symbol:   kr.Data.Code,
		Name:     kr.Data.Name,
		Exchange: exchange,
		Currency: "CNY",
		Type:     "EQUITY",
	}, nil
}

// IsAvailable probes the kline endpoint with the SSE composite index.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	end := time.Now()
	_, err := p.fetchKlines(ctx, "1.000001", end.AddDate(0, 0, -7), end, models.Interval1d)
	if err != nil {
		p.log.WithComponent("eastmoney_provider").WithError(err).Warn("availability probe failed")
		return false
	}
	return true
}
