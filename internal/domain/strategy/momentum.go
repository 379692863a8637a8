package strategy

import "github.com/alejandrodnm/momentumbot/internal/domain"

const MomentumName = "momentum"

// Momentum implementa Decider sobre domain.Detect y domain.EvaluateExit.
type Momentum struct {
	cfg domain.MomentumConfig
}

// NewMomentum crea la estrategia con un config ya validado.
func NewMomentum(cfg domain.MomentumConfig) *Momentum {
	return &Momentum{cfg: cfg}
}

func (m *Momentum) Name() string { return MomentumName }

func (m *Momentum) Config() domain.MomentumConfig { return m.cfg }

func (m *Momentum) Detect(candles []domain.Candle, ticker domain.TickerSnapshot) domain.Detection {
	return domain.Detect(candles, ticker, m.cfg)
}

func (m *Momentum) EvaluateExit(pos domain.Position, price float64, advice *domain.ExitSignal) domain.ExitReason {
	return domain.EvaluateExit(pos, price, advice)
}
