package paper_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/momentumbot/internal/adapters/paper"
	"github.com/alejandrodnm/momentumbot/internal/domain"
)

type fixedPrices map[string]float64

func (f fixedPrices) GetRecentCandles(context.Context, string, string, int) ([]domain.Candle, error) {
	return nil, nil
}

func (f fixedPrices) GetTicker(_ context.Context, symbol string) (domain.TickerSnapshot, error) {
	return domain.TickerSnapshot{Symbol: symbol, LastPrice: f[symbol]}, nil
}

func TestExecutor_RoundTrip(t *testing.T) {
	prices := fixedPrices{"BTCUSDT": 100}
	ex := paper.NewExecutor(prices, 1000, 0)

	fill, err := ex.PlaceMarketOrder(context.Background(), "BTCUSDT", domain.SideBuy, 5)
	require.NoError(t, err)
	assert.Equal(t, 100.0, fill.FilledPrice)
	assert.InDelta(t, 500.0, ex.Balance(), 1e-9)
	assert.InDelta(t, 5.0, ex.Holding("BTCUSDT"), 1e-9)

	prices["BTCUSDT"] = 110
	_, err = ex.PlaceMarketOrder(context.Background(), "BTCUSDT", domain.SideSell, 5)
	require.NoError(t, err)
	assert.InDelta(t, 1050.0, ex.Balance(), 1e-9)
	assert.Equal(t, 0.0, ex.Holding("BTCUSDT"))
}

func TestExecutor_Fees(t *testing.T) {
	ex := paper.NewExecutor(fixedPrices{"ETHUSDT": 10}, 100, 0.001)
	_, err := ex.PlaceMarketOrder(context.Background(), "ETHUSDT", domain.SideBuy, 5)
	require.NoError(t, err)
	assert.InDelta(t, 100-50.05, ex.Balance(), 1e-9)
}

func TestExecutor_Errors(t *testing.T) {
	ex := paper.NewExecutor(fixedPrices{"BTCUSDT": 100}, 50, 0)

	_, err := ex.PlaceMarketOrder(context.Background(), "BTCUSDT", domain.SideBuy, 1)
	assert.ErrorIs(t, err, paper.ErrInsufficientBalance)
	assert.Equal(t, 50.0, ex.Balance())

	_, err = ex.PlaceMarketOrder(context.Background(), "BTCUSDT", domain.SideSell, 1)
	assert.ErrorIs(t, err, paper.ErrNoHoldings)

	_, err = ex.PlaceMarketOrder(context.Background(), "XRPUSDT", domain.SideBuy, 1)
	assert.ErrorIs(t, err, paper.ErrNoPrice)
}

func TestExecutor_RestoreState(t *testing.T) {
	prices := fixedPrices{"BTCUSDT": 90}
	ex := paper.NewExecutor(prices, 1000, 0.001)

	trades := []domain.Trade{{Symbol: "ETHUSDT", EntryPrice: 100, ExitPrice: 110, Quantity: 2}}
	open := []domain.Position{{ID: "p1", Symbol: "BTCUSDT", EntryPrice: 100, Quantity: 1}}

	ex.RestoreState(trades, open)
	want := 1000 + (220*0.999 - 200*1.001) - 100*1.001
	assert.InDelta(t, want, ex.Balance(), 1e-9)
	assert.InDelta(t, 1.0, ex.Holding("BTCUSDT"), 1e-9)

	// idempotente: un segundo restore no duplica tenencias
	ex.RestoreState(trades, open)
	assert.InDelta(t, want, ex.Balance(), 1e-9)
	assert.InDelta(t, 1.0, ex.Holding("BTCUSDT"), 1e-9)

	_, err := ex.PlaceMarketOrder(context.Background(), "BTCUSDT", domain.SideSell, 1)
	require.NoError(t, err)
	assert.InDelta(t, want+90*0.999, ex.Balance(), 1e-9)
	assert.Zero(t, ex.Holding("BTCUSDT"))
}
