package domain

import "time"

// Trade es el registro inmutable que deja una posición al cerrarse.
// Se crea exactamente una vez por transición OPEN→CLOSED.
type Trade struct {
	ID              string
	PositionID      string
	Symbol          string
	Side            Side // siempre BUY: el motor solo abre largos
	EntryPrice      float64
	ExitPrice       float64
	Quantity        float64
	PnL             float64
	PnLPct          float64
	DurationSeconds int64
	ExitReason      ExitReason
	OpenedAt        time.Time
	ClosedAt        time.Time
}

// TradeFromPosition finaliza p en un Trade. p debe tener ExitPrice,
// ExitReason y ClosedAt ya fijados.
func TradeFromPosition(id string, p Position) Trade {
	var pct float64
	if p.EntryPrice > 0 {
		pct = (p.ExitPrice - p.EntryPrice) / p.EntryPrice * 100
	}
	return Trade{
		ID:              id,
		PositionID:      p.ID,
		Symbol:          p.Symbol,
		Side:            SideBuy,
		EntryPrice:      p.EntryPrice,
		ExitPrice:       p.ExitPrice,
		Quantity:        p.Quantity,
		PnL:             (p.ExitPrice - p.EntryPrice) * p.Quantity,
		PnLPct:          pct,
		DurationSeconds: int64(p.ClosedAt.Sub(p.OpenedAt) / time.Second),
		ExitReason:      p.ExitReason,
		OpenedAt:        p.OpenedAt,
		ClosedAt:        p.ClosedAt,
	}
}
