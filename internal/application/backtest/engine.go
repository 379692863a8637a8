package backtest

// engine.go — replay determinista de una serie de velas a través del mismo
// Decider, SignalRegistry y PositionManager que usa el motor live.
//
// Por cada vela:
// 1. Si hay posición abierta: Tick al cierre y, si dispara un trigger, se
//    cierra al cierre de esa vela.
// 2. Si no: se evalúa la ventana y, si dispara, señal → TRADED → Open.
// Una vela nunca hace ambas cosas. Al final, lo que siga abierto se cierra
// con END_OF_DATA al último cierre.

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/momentumbot/internal/application/position"
	"github.com/alejandrodnm/momentumbot/internal/application/signals"
	"github.com/alejandrodnm/momentumbot/internal/domain"
	"github.com/alejandrodnm/momentumbot/internal/domain/strategy"
)

// tickerSpan is the number of hourly candles a 24h ticker covers.
const tickerSpan = 24

var (
	ErrNoCandles       = errors.New("no candles to replay")
	ErrInvalidCapital  = errors.New("starting capital must be positive")
	ErrConfigNotLoaded = errors.New("momentum config not built with NewMomentumConfig")
)

// Engine replays candles with no network I/O. It holds no per-run state and
// is safe for concurrent use by the optimizer's workers.
type Engine struct {
	factory strategy.Factory
	symbol  string
}

// NewEngine crea un engine. factory nil usa la estrategia momentum.
func NewEngine(symbol string, factory strategy.Factory) *Engine {
	if factory == nil {
		factory = func(cfg domain.MomentumConfig) strategy.Decider { return strategy.NewMomentum(cfg) }
	}
	return &Engine{factory: factory, symbol: symbol}
}

// Symbol devuelve el símbolo que replaya el engine.
func (e *Engine) Symbol() string { return e.symbol }

// Run replays candles under cfg starting from startingCapital. Identical
// inputs always produce an identical BacktestResult.
func (e *Engine) Run(candles []domain.Candle, cfg domain.MomentumConfig, startingCapital float64) (domain.BacktestResult, error) {
	switch {
	case len(candles) == 0:
		return domain.BacktestResult{}, fmt.Errorf("backtest.Run: %s: %w", e.symbol, ErrNoCandles)
	case startingCapital <= 0:
		return domain.BacktestResult{}, fmt.Errorf("backtest.Run: %.2f: %w", startingCapital, ErrInvalidCapital)
	case cfg.IsZero():
		return domain.BacktestResult{}, fmt.Errorf("backtest.Run: %w", ErrConfigNotLoaded)
	}

	decider := e.factory(cfg)

	// Reloj e IDs deterministas: el tiempo es el de la vela en curso.
	var now time.Time
	clock := func() time.Time { return now }
	seq := 0
	nextID := func() string {
		seq++
		return fmt.Sprintf("bt-%06d", seq)
	}

	registry := signals.NewRegistry(signals.WithClock(clock), signals.WithIDGenerator(nextID))
	manager := position.NewManager(decider, position.WithClock(clock), position.WithIDGenerator(nextID))

	equity := startingCapital
	var trades []domain.Trade

	for i, c := range candles {
		now = c.OpenTime

		if pos, open := manager.Get(e.symbol); open {
			_, reason, err := manager.Tick(e.symbol, c.Close, nil)
			if err != nil || reason == domain.ExitNone {
				continue
			}
			_, trade, err := manager.Close(pos.ID, e.symbol, c.Close, reason)
			if err != nil {
				return domain.BacktestResult{}, fmt.Errorf("backtest.Run: close at candle %d: %w", i, err)
			}
			equity += trade.PnL
			trades = append(trades, trade)
			continue
		}

		registry.Sweep()
		history := candles[:i+1]
		sig, ok := e.signalFor(registry, decider, history)
		if !ok {
			continue
		}

		qty := domain.PositionSize(equity, c.Close, cfg)
		if qty <= 0 {
			continue
		}
		traded, err := registry.MarkTraded(sig.ID, e.symbol)
		if err != nil {
			continue
		}
		if _, err := manager.Open(traded, c.Close, qty, 0); err != nil {
			return domain.BacktestResult{}, fmt.Errorf("backtest.Run: open at candle %d: %w", i, err)
		}
	}

	last := candles[len(candles)-1]
	for _, t := range manager.CloseAll(map[string]float64{e.symbol: last.Close}, domain.ExitEndOfData) {
		equity += t.PnL
		trades = append(trades, t)
	}

	result := domain.Summarize(trades, startingCapital, last.OpenTime.Sub(candles[0].OpenTime))
	slog.Debug("backtest finished",
		"symbol", e.symbol,
		"candles", len(candles),
		"trades", result.TotalTrades,
		"return", fmt.Sprintf("%.2f%%", result.TotalReturn),
		"equity", fmt.Sprintf("$%.2f", equity),
	)
	return result, nil
}

// signalFor devuelve la señal ACTIVE con la que entrar en esta vela: una
// nueva si el detector dispara, o la pendiente de una entrada anterior.
func (e *Engine) signalFor(registry *signals.Registry, decider strategy.Decider, history []domain.Candle) (domain.Signal, bool) {
	ticker := domain.TickerFromCandles(e.symbol, history, tickerSpan)
	det := decider.Detect(history, ticker)
	if det.Triggered {
		if sig, _, ok := registry.TryCreate(e.symbol, det.Score, det.Reasons, decider.Config()); ok {
			return sig, true
		}
	}
	return registry.Get(e.symbol)
}
