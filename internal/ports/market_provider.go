package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// MarketDataSource obtiene velas y tickers del exchange.
type MarketDataSource interface {
	// GetRecentCandles devuelve las últimas `limit` velas en orden ascendente.
	GetRecentCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)

	// GetTicker devuelve el ticker 24h del símbolo.
	GetTicker(ctx context.Context, symbol string) (domain.TickerSnapshot, error)
}

// UniverseProvider lists every symbol the exchange reports a 24h ticker for.
// Used to build the tradable universe when none is configured.
type UniverseProvider interface {
	GetAllTickers(ctx context.Context) ([]domain.TickerSnapshot, error)
}

// CandleHistory serves historical candles for replay, oldest first.
type CandleHistory interface {
	GetCandles(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Candle, error)
}

// CandleArchive persiste velas para backtests posteriores.
type CandleArchive interface {
	CandleHistory
	SaveCandles(ctx context.Context, symbol, interval string, candles []domain.Candle) error
}
