package ports

import (
	"context"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// OrderExecutor places market orders. It is used at position entry and exit
// and never during backtest replay.
type OrderExecutor interface {
	// PlaceMarketOrder submits a market order and returns the fill. An error
	// means nothing was filled and the caller keeps its prior state.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (domain.OrderFill, error)
}

// StatefulExecutor lo implementan los executors que llevan su propio saldo y
// tenencias (paper). Al arrancar los reconstruyen a partir de los trades
// cerrados y las posiciones aún abiertas.
type StatefulExecutor interface {
	RestoreState(trades []domain.Trade, open []domain.Position)
}

// ExitAdvisor suministra la señal externa de salida (AI_EXIT).
// Devuelve nil cuando no tiene opinión sobre la posición.
type ExitAdvisor interface {
	Advise(ctx context.Context, pos domain.Position, price float64) (*domain.ExitSignal, error)
}
