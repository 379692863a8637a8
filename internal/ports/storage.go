package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// SignalStore persiste señales. SaveSignal es un upsert por ID.
type SignalStore interface {
	SaveSignal(ctx context.Context, s domain.Signal) error
	GetActiveSignals(ctx context.Context) ([]domain.Signal, error)
	GetSignalsBySymbol(ctx context.Context, symbol string) ([]domain.Signal, error)
}

// PositionStore persiste posiciones. SavePosition es un upsert por ID.
type PositionStore interface {
	SavePosition(ctx context.Context, p domain.Position) error
	GetOpenPositions(ctx context.Context) ([]domain.Position, error)
	GetPositionsBySymbol(ctx context.Context, symbol string) ([]domain.Position, error)
}

// TradeStore is append-only.
type TradeStore interface {
	SaveTrade(ctx context.Context, t domain.Trade) error
	GetTrades(ctx context.Context, from, to time.Time) ([]domain.Trade, error)
	GetTradesBySymbol(ctx context.Context, symbol string) ([]domain.Trade, error)
}

// Storage agrupa todo lo que necesita el motor live.
type Storage interface {
	SignalStore
	PositionStore
	TradeStore

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
