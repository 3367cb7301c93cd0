package binance

import (
	"errors"
	"testing"
	"time"

	gobinance "github.com/adshao/go-binance/v2"

	"tradeflow/config"
	"tradeflow/models"
	"tradeflow/provider"
)

func TestConvertSymbol(t *testing.T) {
	p := New(config.ProviderConfig{MaxRequests: 100, WindowSeconds: 1})
	cases := []struct {
		in, want string
	}{
		{"BTC-USD", "BTCUSDT"},
		{"ETH-USD", "ETHUSDT"},
		{"BTCUSDT", "BTCUSDT"},
		{"ethusdt", "ETHUSDT"},
		{"SOLUSD", "SOLUSDT"},
	}
	for _, tc := range cases {
		got, err := p.ConvertSymbol(tc.in)
		if err != nil {
			t.Fatalf("%s: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.in, tc.want, got)
		}
	}

	if _, err := p.ConvertSymbol(""); !errors.Is(err, provider.ErrInvalidSymbol) {
		t.Fatalf("empty symbol must be invalid, got %v", err)
	}
}

func TestBinanceInterval(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{models.Interval1d, "1d", true},
		{models.Interval1h, "1h", true},
		{models.Interval1m, "1m", true},
		{"5m", "", false},
	}
	for _, tc := range cases {
		got, ok := binanceInterval(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%s: got (%s, %v), want (%s, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestToBar(t *testing.T) {
	open := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	k := &gobinance.Kline{
		OpenTime: open.UnixMilli(),
		Open:     "42000.5",
		High:     "43000",
		Low:      "41500",
		Close:    "42500.25",
		Volume:   "1234.5",
	}
	bar, ok := toBar(k)
	if !ok {
		t.Fatalf("expected kline to convert")
	}
	if !bar.Timestamp.Equal(open) {
		t.Fatalf("timestamp %v, want %v", bar.Timestamp, open)
	}
	if bar.Open != 42000.5 || bar.Close != 42500.25 || bar.Volume != 1234 {
		t.Fatalf("unexpected bar %+v", bar)
	}

	bad := &gobinance.Kline{Open: "not-a-number", High: "1", Low: "1", Close: "1", Volume: "1"}
	if _, ok := toBar(bad); ok {
		t.Fatalf("expected malformed kline to be dropped")
	}
}
