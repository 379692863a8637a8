package domain

import (
	"math"
	"time"
)

// PositionStatus is the lifecycle state of a Position.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// ExitReason identifica qué trigger cerró la posición.
type ExitReason string

const (
	ExitNone         ExitReason = ""
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitTrailingStop ExitReason = "TRAILING_STOP"
	ExitAI           ExitReason = "AI_EXIT"
	ExitEndOfData    ExitReason = "END_OF_DATA"
)

// Position is one long position from entry to exit.
type Position struct {
	ID              string
	Symbol          string
	SignalID        string
	EntryPrice      float64
	Quantity        float64
	StopLoss        float64
	TakeProfit      float64
	TrailingStopPct float64
	HighestPrice    float64
	Status          PositionStatus
	OpenedAt        time.Time
	ClosedAt        time.Time
	ExitReason      ExitReason
	ExitPrice       float64
}

// ExitSignal es la recomendación externa de cierre (modelo, operador...).
// Solo dispara AI_EXIT si Confidence supera estrictamente Threshold.
type ExitSignal struct {
	Confidence float64
	Threshold  float64
	Reason     string
}

// Fires reports whether the advice is strong enough to act on.
func (e *ExitSignal) Fires() bool {
	return e != nil && e.Confidence > e.Threshold
}

// NewPosition builds an OPEN position with its stop levels derived from cfg.
// predictedExit replaces the configured take-profit only when it lies above
// the stop-loss; zero or lower values are ignored.
func NewPosition(id string, sig Signal, entryPrice, quantity, predictedExit float64, cfg MomentumConfig, openedAt time.Time) Position {
	stop := entryPrice * (1 - cfg.StopLossPct()/100)
	take := entryPrice * (1 + cfg.TakeProfitPct()/100)
	if predictedExit > stop {
		take = predictedExit
	}
	return Position{
		ID:              id,
		Symbol:          sig.Symbol,
		SignalID:        sig.ID,
		EntryPrice:      entryPrice,
		Quantity:        quantity,
		StopLoss:        stop,
		TakeProfit:      take,
		TrailingStopPct: cfg.TrailingStopPct(),
		HighestPrice:    entryPrice,
		Status:          PositionOpen,
		OpenedAt:        openedAt,
	}
}

// Observe sube HighestPrice si el precio actual lo supera. Nunca lo baja.
func (p *Position) Observe(price float64) {
	p.HighestPrice = math.Max(p.HighestPrice, price)
}

// TrailingDrawdown returns the retracement from HighestPrice as a fraction.
func (p Position) TrailingDrawdown(price float64) float64 {
	if p.HighestPrice <= 0 {
		return 0
	}
	return (p.HighestPrice - price) / p.HighestPrice
}

// EvaluateExit returns the first exit trigger that fires at price, in the
// fixed order STOP_LOSS, TAKE_PROFIT, TRAILING_STOP, AI_EXIT. It does not
// mutate p; callers are expected to Observe the price first.
func EvaluateExit(p Position, price float64, advice *ExitSignal) ExitReason {
	switch {
	case price <= p.StopLoss:
		return ExitStopLoss
	case price >= p.TakeProfit:
		return ExitTakeProfit
	case p.HighestPrice > p.EntryPrice && p.TrailingDrawdown(price) >= p.TrailingStopPct/100:
		return ExitTrailingStop
	case advice.Fires():
		return ExitAI
	}
	return ExitNone
}
