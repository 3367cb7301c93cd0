// Package yahoo implements the global-equities provider backed by the
// Yahoo Finance chart API. It serves US tickers, Hong Kong numeric codes
// (suffixed .HK) and acts as the generic fallback for everything else.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tradeflow/config"
	"tradeflow/logger"
	"tradeflow/models"
	"tradeflow/provider"
	"tradeflow/provider/ratelimit"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Provider fetches historical bars from the Yahoo Finance chart API.
type Provider struct {
	baseURL string
	client  *http.Client
	limiter *ratelimit.Window
	log     *logger.Log

	// symbolMap maps journal symbols to Yahoo tickers.
	symbolMap map[string]string
}

// New creates a yahoo provider from its config section.
func New(cfg config.ProviderConfig) *Provider {
	transport := &http.Transport{}
	if cfg.ProxyURL != "" {
		if u, err := url.Parse(cfg.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}

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
		client:  &http.Client{Timeout: timeout, Transport: transport},
		limiter: ratelimit.NewWindow(cfg.MaxRequests, time.Duration(cfg.WindowSeconds)*time.Second),
		log:     logger.GetLogger(),
		symbolMap: map[string]string{
			"SPX500": "^GSPC",
			"SPX":    "^GSPC",
			"SP500":  "^GSPC",
		},
	}
}

func (p *Provider) Name() string { return "yahoo" }

// ConvertSymbol returns the Yahoo ticker for a journal symbol. Numeric
// Hong Kong codes are zero-padded to four digits and suffixed .HK; China
// A-share codes get their exchange suffix so yahoo can serve as fallback.
func (p *Provider) ConvertSymbol(symbol string) (string, error) {
	if mapped, ok := p.symbolMap[symbol]; ok {
		return mapped, nil
	}
	if isDigits(symbol) {
		switch len(symbol) {
		case 6:
			if strings.HasPrefix(symbol, "60") || strings.HasPrefix(symbol, "68") {
				return symbol + ".SS", nil
			}
			return symbol + ".SZ", nil
		case 1, 2, 3, 4, 5:
			for len(symbol) < 4 {
				symbol = "0" + symbol
			}
			return symbol + ".HK", nil
		}
	}
	return symbol, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// yahooChart is the response structure from the Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol       string `json:"symbol"`
				ExchangeName string `json:"exchangeName"`
				Currency     string `json:"currency"`
				InstrType    string `json:"instrumentType"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func yahooInterval(interval string) (string, error) {
	switch interval {
	case models.Interval1d:
		return "1d", nil
	case models.Interval1h:
		return "1h", nil
	case models.Interval1m:
		return "1m", nil
	default:
		return "", fmt.Errorf("unsupported interval %q", interval)
	}
}

func (p *Provider) fetchChart(ctx context.Context, symbol string, start, end time.Time, interval string) (*yahooChart, error) {
	if err := p.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=%s&period1=%d&period2=%d",
		p.baseURL, url.PathEscape(symbol), interval, start.Unix(), end.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &provider.SourceError{Provider: p.Name(), Op: "build request", Err: err}
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &provider.SourceError{Provider: p.Name(), Op: "fetch chart", Err: err, Transient: true}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.SourceError{Provider: p.Name(), Op: "read body", Err: err, Transient: true}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, provider.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &provider.RateLimitedError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500:
		return nil, &provider.SourceError{
			Provider:  p.Name(),
			Op:        "fetch chart",
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
			Transient: true,
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &provider.SourceError{
			Provider: p.Name(),
			Op:       "fetch chart",
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, &provider.SourceError{Provider: p.Name(), Op: "decode chart", Err: err}
	}
	if chart.Chart.Error != nil {
		if chart.Chart.Error.Code == "Not Found" {
			return nil, provider.ErrNotFound
		}
		return nil, &provider.SourceError{
			Provider: p.Name(),
			Op:       "fetch chart",
			Err:      fmt.Errorf("api error %s: %s", chart.Chart.Error.Code, chart.Chart.Error.Description),
		}
	}
	return &chart, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			return d
		}
	}
	return time.Minute
}

// GetSeries fetches bars for [start, end] and returns them standardized.
func (p *Provider) GetSeries(ctx context.Context, symbol string, start, end time.Time, interval string) (*models.Series, error) {
	yi, err := yahooInterval(interval)
	if err != nil {
		return nil, &provider.SourceError{Provider: p.Name(), Op: "map interval", Err: err}
	}

	chart, err := p.fetchChart(ctx, symbol, start, end.Add(24*time.Hour), yi)
	if err != nil {
		return nil, err
	}

	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, provider.ErrNotFound
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, provider.ErrNotFound
	}
	quote := result.Indicators.Quote[0]

	// Yahoo returns ragged quote arrays; never index past the shortest one.
	n := len(result.Timestamp)
	for _, col := range [][]interface{}{quote.Open, quote.High, quote.Low, quote.Close, quote.Volume} {
		if len(col) < n {
			n = len(col)
		}
	}

	series := &models.Series{Symbol: symbol, Interval: interval}
	for i := 0; i < n; i++ {
		series.Bars = append(series.Bars, models.Bar{
			Timestamp: time.Unix(result.Timestamp[i], 0).UTC(),
			Open:      toFloat(quote.Open[i]),
			High:      toFloat(quote.High[i]),
			Low:       toFloat(quote.Low[i]),
			Close:     toFloat(quote.Close[i]),
			Volume:    int64(toFloat(quote.Volume[i])),
		})
	}
	series.Standardize()

	logger.RecordProviderRequest(p.Name(), series.Len())
	if series.Empty() {
		return nil, provider.ErrNotFound
	}
	return series, nil
}

// GetSymbolMetadata returns the chart meta block for the symbol.
func (p *Provider) GetSymbolMetadata(ctx context.Context, symbol string) (provider.Metadata, error) {
	end := time.Now()
	chart, err := p.fetchChart(ctx, symbol, end.AddDate(0, 0, -7), end, "1d")
	if err != nil {
		return provider.Metadata{}, err
	}
	if len(chart.Chart.Result) == 0 {
		return provider.Metadata{}, provider.ErrNotFound
	}
	meta := chart.Chart.Result[0].Meta
	return provider.Metadata{
		Symbol:   symbol,
		Exchange: meta.ExchangeName,
		Currency: meta.Currency,
		Type:     meta.InstrType,
	}, nil
}

// IsAvailable probes the chart endpoint with a liquid index symbol.
func (p *Provider) IsAvailable(ctx context.Context) bool {
	end := time.Now()
	_, err := p.fetchChart(ctx, "^GSPC", end.AddDate(0, 0, -7), end, "1d")
	if err != nil {
		p.log.WithComponent("yahoo_provider").WithError(err).Warn("availability probe failed")
		return false
	}
	return true
}
