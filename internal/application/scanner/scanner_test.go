package scanner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/momentumbot/internal/application/scanner"
	"github.com/alejandrodnm/momentumbot/internal/domain"
	"github.com/alejandrodnm/momentumbot/internal/domain/strategy"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeMarket sirve velas y tickers en memoria y cuenta las llamadas.
type fakeMarket struct {
	mu          sync.Mutex
	candles     map[string][]domain.Candle
	tickers     map[string]domain.TickerSnapshot
	failSymbol  string
	tickerCalls int
}

func (f *fakeMarket) GetRecentCandles(_ context.Context, symbol, _ string, limit int) ([]domain.Candle, error) {
	if symbol == f.failSymbol {
		return nil, errors.New("boom")
	}
	c := f.candles[symbol]
	if len(c) > limit {
		c = c[len(c)-limit:]
	}
	return c, nil
}

func (f *fakeMarket) GetTicker(_ context.Context, symbol string) (domain.TickerSnapshot, error) {
	f.mu.Lock()
	f.tickerCalls++
	f.mu.Unlock()
	return f.tickers[symbol], nil
}

func (f *fakeMarket) GetAllTickers(context.Context) ([]domain.TickerSnapshot, error) {
	var out []domain.TickerSnapshot
	for _, t := range f.tickers {
		out = append(out, t)
	}
	return out, nil
}

func decider(t *testing.T) strategy.Decider {
	t.Helper()
	cfg, err := domain.NewMomentumConfig(domain.MomentumParams{
		MinPrice1h: 1.5, MinVolumeRatio: 1.5, BreakoutThresh: 93, MinMomentumScore: 60,
		StopLossPct: 5, TakeProfitPct: 10, TrailingStopPct: 2.5, MaxPositionValue: 1000, SignalTTLHours: 4,
	})
	require.NoError(t, err)
	return strategy.NewMomentum(cfg)
}

func window(last, lastVol float64) []domain.Candle {
	out := make([]domain.Candle, 25)
	for i := range out {
		c, v := 100.0, 10.0
		if i == len(out)-1 {
			c, v = last, lastVol
		}
		out[i] = domain.Candle{OpenTime: t0.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c, Volume: v}
	}
	return out
}

func newMarket() *fakeMarket {
	return &fakeMarket{
		candles: map[string][]domain.Candle{
			"BTCUSDT": window(106, 30), // dispara: 12 + 30 + 30
			"ETHUSDT": window(100, 10), // solo breakout: 30
			"SOLUSDT": window(102, 20), // 4 + 15 + 30 = 49
		},
		tickers: map[string]domain.TickerSnapshot{
			"BTCUSDT": {Symbol: "BTCUSDT", LastPrice: 106, QuoteVolume24h: 5e8},
			"ETHUSDT": {Symbol: "ETHUSDT", LastPrice: 100, QuoteVolume24h: 3e8},
			"SOLUSDT": {Symbol: "SOLUSDT", LastPrice: 102, QuoteVolume24h: 1e6},
			"ETHBTC":  {Symbol: "ETHBTC", LastPrice: 0.05, QuoteVolume24h: 9e9},
		},
	}
}

func TestScan_ExplicitSymbolsRankedTriggeredFirst(t *testing.T) {
	m := newMarket()
	s := scanner.New(scanner.Config{Symbols: []string{"ETHUSDT", "SOLUSDT", "BTCUSDT"}, Workers: 2}, m, nil, decider(t), nil)

	results, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "BTCUSDT", results[0].Symbol)
	assert.True(t, results[0].Detection.Triggered)
	assert.InDelta(t, 72, results[0].Detection.Score, 1e-9)
	assert.Equal(t, "SOLUSDT", results[1].Symbol)
	assert.Equal(t, "ETHUSDT", results[2].Symbol)
	assert.Equal(t, 3, m.tickerCalls, "explicit symbols fetch their own ticker")
}

func TestScan_DynamicUniverseUsesFilter(t *testing.T) {
	m := newMarket()
	s := scanner.New(scanner.Config{
		Filter: scanner.FilterConfig{QuoteAsset: "USDT", MinQuoteVolume: 1e7},
	}, m, m, decider(t), nil)

	results, err := s.Scan(context.Background())
	require.NoError(t, err)

	var symbols []string
	for _, r := range results {
		symbols = append(symbols, r.Symbol)
	}
	assert.ElementsMatch(t, []string{"BTCUSDT", "ETHUSDT"}, symbols)
	assert.Zero(t, m.tickerCalls, "dynamic universe reuses the 24h tickers")
}

func TestScan_PerSymbolFailureDoesNotAbort(t *testing.T) {
	m := newMarket()
	m.failSymbol = "SOLUSDT"
	s := scanner.New(scanner.Config{Symbols: []string{"BTCUSDT", "SOLUSDT"}}, m, nil, decider(t), nil)

	results, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "BTCUSDT", results[0].Symbol)
	assert.Error(t, results[1].Err)
}

func TestScan_EmptyUniverse(t *testing.T) {
	m := newMarket()
	s := scanner.New(scanner.Config{
		Filter: scanner.FilterConfig{QuoteAsset: "USDT", MinQuoteVolume: 1e12},
	}, m, m, decider(t), nil)

	_, err := s.Scan(context.Background())
	assert.ErrorIs(t, err, scanner.ErrEmptyUniverse)
}

func TestFilter_Apply(t *testing.T) {
	f := scanner.NewFilter(scanner.FilterConfig{QuoteAsset: "USDT", MinQuoteVolume: 100, MaxSymbols: 2})
	out := f.Apply([]domain.TickerSnapshot{
		{Symbol: "AAAUSDT", LastPrice: 1, QuoteVolume24h: 150},
		{Symbol: "BBBUSDT", LastPrice: 1, QuoteVolume24h: 500},
		{Symbol: "CCCUSDT", LastPrice: 1, QuoteVolume24h: 50},
		{Symbol: "DDDUSDT", LastPrice: 0, QuoteVolume24h: 900},
		{Symbol: "USDT", LastPrice: 1, QuoteVolume24h: 900},
		{Symbol: "EEEBTC", LastPrice: 1, QuoteVolume24h: 900},
		{Symbol: "FFFUSDT", LastPrice: 1, QuoteVolume24h: 120},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "BBBUSDT", out[0].Symbol)
	assert.Equal(t, "AAAUSDT", out[1].Symbol)
}
