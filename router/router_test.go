package router

import (
	"context"
	"testing"
	"time"

	"tradeflow/models"
	"tradeflow/provider"
)

func TestDetectMarket(t *testing.T) {
	cases := []struct {
		symbol string
		want   Market
	}{
		{"600519", MarketCNA}, // Shanghai main board
		{"300750", MarketCNA}, // ChiNext
		{"000001", MarketCNA}, // Shenzhen main board
		{"688111", MarketCNA}, // STAR market
		{"0700", MarketHK},    // 4-digit HK code
		{"00700", MarketHK},   // 5-digit HK code
		{"0700.HK", MarketHK}, // suffixed HK code
		{"AAPL", MarketUS},    // alphabetic ticker
		{"F", MarketUS},       // single letter
		{"BTCUSDT", MarketCrypto},
		{"BTC-USD", MarketCrypto},
		{"1234567", MarketUnknown}, // 7-digit numeric
		{"123456789", MarketUnknown},
		{"AAPL250117C00150000", MarketUnknown}, // option symbol
		{"", MarketUnknown},
	}
	for _, tc := range cases {
		if got := DetectMarket(tc.symbol); got != tc.want {
			t.Fatalf("DetectMarket(%q) = %s, want %s", tc.symbol, got, tc.want)
		}
	}
}

// fakeProvider serves canned responses for router tests.
type fakeProvider struct {
	name   string
	series *models.Series
	err    error
	calls  int
}

func (f *fakeProvider) GetSeries(ctx context.Context, symbol string, start, end time.Time, interval string) (*models.Series, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s := f.series.Clone()
	s.Symbol = symbol
	return s, nil
}

func (f *fakeProvider) GetSymbolMetadata(ctx context.Context, symbol string) (provider.Metadata, error) {
	return provider.Metadata{Symbol: symbol}, nil
}

func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return true }
func (f *fakeProvider) Name() string                         { return f.name }

func sampleSeries() *models.Series {
	return &models.Series{
		Interval: models.Interval1d,
		Bars:     []models.Bar{{Timestamp: time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC), Close: 10}},
	}
}

func TestSelectProviderPerMarket(t *testing.T) {
	us := &fakeProvider{name: "us"}
	cna := &fakeProvider{name: "cna"}
	r := New(map[Market]provider.Client{MarketUS: us, MarketCNA: cna}, us)

	p, market, err := r.SelectProvider("600519")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if market != MarketCNA || p.Name() != "cna" {
		t.Fatalf("expected cna provider for 600519, got %s/%s", market, p.Name())
	}

	p, market, err = r.SelectProvider("1234567")
	if err != nil {
		t.Fatalf("select unknown: %v", err)
	}
	if market != MarketUnknown || p.Name() != "us" {
		t.Fatalf("expected fallback provider for unknown market, got %s/%s", market, p.Name())
	}
}

func TestGetSeriesFallsBackOnNotFound(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: provider.ErrNotFound}
	fallback := &fakeProvider{name: "fallback", series: sampleSeries()}
	r := New(map[Market]provider.Client{MarketUS: primary}, fallback)

	series, err := r.GetSeries(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now(), models.Interval1d)
	if err != nil {
		t.Fatalf("expected fallback to serve the data: %v", err)
	}
	if series.Symbol != "AAPL" {
		t.Fatalf("series keyed by %q, want original symbol", series.Symbol)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Fatalf("expected one call each, got primary=%d fallback=%d", primary.calls, fallback.calls)
	}
}

func TestGetSeriesNoFallbackOnOtherErrors(t *testing.T) {
	primary := &fakeProvider{name: "primary", err: &provider.SourceError{Provider: "primary", Op: "fetch", Err: context.DeadlineExceeded, Transient: true}}
	fallback := &fakeProvider{name: "fallback", series: sampleSeries()}
	r := New(map[Market]provider.Client{MarketUS: primary}, fallback)

	if _, err := r.GetSeries(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now(), models.Interval1d); err == nil {
		t.Fatalf("expected source error to propagate without fallback")
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback should not fire on source errors, called %d times", fallback.calls)
	}
}

func TestGetSeriesNoDoubleFallback(t *testing.T) {
	fallback := &fakeProvider{name: "fallback", err: provider.ErrNotFound}
	r := New(map[Market]provider.Client{}, fallback)

	if _, err := r.GetSeries(context.Background(), "AAPL", time.Now().AddDate(0, -1, 0), time.Now(), models.Interval1d); !provider.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if fallback.calls != 1 {
		t.Fatalf("fallback acting as primary must be tried once, called %d times", fallback.calls)
	}
}
