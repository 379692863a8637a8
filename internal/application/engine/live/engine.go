package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/momentumbot/internal/application/engine"
	"github.com/alejandrodnm/momentumbot/internal/application/position"
	"github.com/alejandrodnm/momentumbot/internal/application/signals"
	"github.com/alejandrodnm/momentumbot/internal/domain"
	"github.com/alejandrodnm/momentumbot/internal/domain/strategy"
	"github.com/alejandrodnm/momentumbot/internal/metrics"
	"github.com/alejandrodnm/momentumbot/internal/ports"
)

const (
	defaultScanInterval    = 5 * time.Minute
	defaultMonitorInterval = 30 * time.Second
	defaultOrderTimeout    = 15 * time.Second
)

// Config holds configuration for the live engine.
type Config struct {
	ScanInterval     time.Duration
	MonitorInterval  time.Duration
	OrderTimeout     time.Duration
	MaxOpenPositions int // 0 = sin límite
}

// Deps agrupa los colaboradores del motor. Advisor, Notifier, Metrics,
// Breaker, Signals, Positions y Now son opcionales.
type Deps struct {
	Decider   strategy.Decider
	Scanner   engine.ScannerService
	Market    ports.MarketDataSource
	Executor  ports.OrderExecutor
	Store     ports.Storage
	Advisor   ports.ExitAdvisor
	Notifier  ports.Notifier
	Metrics   *metrics.Collectors
	Breaker   *domain.LossBreaker // nil = sin pausas por pérdidas
	Signals   *signals.Registry
	Positions *position.Manager
	Now       func() time.Time
}

// CycleResult resume un ciclo de escaneo.
type CycleResult struct {
	Results    []domain.ScanResult
	NewSignals []domain.Signal
	Expired    []domain.Signal
	Opened     []domain.Position
	Closed     []domain.Trade
}

// Engine runs the live loop: scan → signal → enter, and monitor → exit.
// All state transitions go through the signal registry and the position
// manager; the engine only sequences them and persists the outcome.
type Engine struct {
	cfg Config
	Deps
}

// New crea el motor live.
func New(cfg Config, d Deps) *Engine {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = defaultScanInterval
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = defaultMonitorInterval
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = defaultOrderTimeout
	}
	if d.Signals == nil {
		d.Signals = signals.NewRegistry()
	}
	if d.Positions == nil {
		d.Positions = position.NewManager(d.Decider)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Engine{cfg: cfg, Deps: d}
}

// Restore recarga señales ACTIVE y posiciones OPEN desde el store.
func (e *Engine) Restore(ctx context.Context) error {
	sigs, err := e.Store.GetActiveSignals(ctx)
	if err != nil {
		return fmt.Errorf("live.Restore: load signals: %w", err)
	}
	positions, err := e.Store.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("live.Restore: load positions: %w", err)
	}

	nSig := e.Signals.Restore(sigs)
	nPos := e.Positions.Restore(positions)
	e.Metrics.SetOpenPositions(len(e.Positions.Positions()))

	now := e.Now()
	if se, ok := e.Executor.(ports.StatefulExecutor); ok {
		// sin esto el paper executor no puede vender lo restaurado
		trades, err := e.Store.GetTrades(ctx, time.Time{}, now)
		if err != nil {
			return fmt.Errorf("live.Restore: load trade history: %w", err)
		}
		se.RestoreState(trades, e.Positions.Positions())
	}

	if e.Breaker != nil {
		// el breaker arranca con el PnL realizado del día en curso (UTC)
		day := now.UTC().Truncate(24 * time.Hour)
		trades, err := e.Store.GetTrades(ctx, day, now)
		if err != nil {
			return fmt.Errorf("live.Restore: load trades: %w", err)
		}
		e.Breaker.Restore(trades, now)
	}

	slog.Info("live: state restored",
		"active_signals", nSig,
		"open_positions", nPos,
		"realized_pnl_today", fmt.Sprintf("$%.2f", e.Breaker.RealizedPnL()),
	)
	return nil
}

// Run restaura el estado y ejecuta ciclos de escaneo y de monitorización
// hasta que el contexto se cancele.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.Restore(ctx); err != nil {
		return err
	}

	slog.Info("live: engine starting",
		"strategy", e.Decider.Name(),
		"scan_interval", e.cfg.ScanInterval,
		"monitor_interval", e.cfg.MonitorInterval,
		"max_open_positions", e.cfg.MaxOpenPositions,
	)

	if _, err := e.RunOnce(ctx); err != nil {
		slog.Error("live: cycle failed", "err", err)
	}

	scanTicker := time.NewTicker(e.cfg.ScanInterval)
	defer scanTicker.Stop()
	monitorTicker := time.NewTicker(e.cfg.MonitorInterval)
	defer monitorTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("live: engine stopped", "open_positions", len(e.Positions.Positions()))
			return nil
		case <-scanTicker.C:
			if _, err := e.RunOnce(ctx); err != nil {
				slog.Error("live: cycle failed", "err", err)
			}
		case <-monitorTicker.C:
			e.Monitor(ctx, nil)
		}
	}
}

// RunOnce executes one scan cycle: expire → scan → create signals →
// exits on the fresh prices → entries for every ACTIVE signal.
func (e *Engine) RunOnce(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	res.Expired = e.expire(ctx)

	results, err := e.Scanner.Scan(ctx)
	if err != nil {
		return res, fmt.Errorf("live.RunOnce: scan: %w", err)
	}
	res.Results = results
	prices := engine.PriceIndex(results)

	for _, r := range results {
		if r.Err != nil || !r.Detection.Triggered {
			continue
		}
		if sig, ok := e.createSignal(ctx, r); ok {
			res.NewSignals = append(res.NewSignals, sig)
		}
	}

	res.Closed = e.Monitor(ctx, prices)

	// Señales ACTIVE sin posición: las nuevas y las que fallaron antes.
	for _, sig := range e.Signals.Active() {
		if ctx.Err() != nil {
			break
		}
		price, ok := prices[sig.Symbol]
		if !ok {
			continue
		}
		if p, ok := e.enter(ctx, sig, price); ok {
			res.Opened = append(res.Opened, p)
		}
	}

	slog.Info("live: cycle complete",
		"scanned", len(results),
		"new_signals", len(res.NewSignals),
		"expired", len(res.Expired),
		"opened", len(res.Opened),
		"closed", len(res.Closed),
		"open_positions", len(e.Positions.Positions()),
	)
	return res, nil
}

// Monitor evalúa las salidas de todas las posiciones abiertas. prices puede
// traer precios ya conocidos; el resto se piden al MarketDataSource.
func (e *Engine) Monitor(ctx context.Context, prices map[string]float64) []domain.Trade {
	var closed []domain.Trade
	for _, p := range e.Positions.Positions() {
		if ctx.Err() != nil {
			break
		}
		price, ok := prices[p.Symbol]
		if !ok {
			t, err := e.Market.GetTicker(ctx, p.Symbol)
			if err != nil {
				slog.Warn("live: price unavailable, position unchanged", "symbol", p.Symbol, "err", err)
				continue
			}
			price = t.LastPrice
		}
		if tr, ok := e.exit(ctx, p, price); ok {
			closed = append(closed, tr)
		}
	}
	return closed
}

// expire mueve a EXPIRED las señales caducadas y las persiste.
func (e *Engine) expire(ctx context.Context) []domain.Signal {
	expired := e.Signals.Sweep()
	for _, s := range expired {
		e.persistSignal(ctx, s)
		e.Metrics.Signal(string(domain.SignalExpired))
		slog.Info("live: signal expired", "symbol", s.Symbol, "signal_id", s.ID)
	}
	return expired
}

func (e *Engine) createSignal(ctx context.Context, r domain.ScanResult) (domain.Signal, bool) {
	if _, open := e.Positions.Get(r.Symbol); open {
		return domain.Signal{}, false
	}
	sig, expired, ok := e.Signals.TryCreate(r.Symbol, r.Detection.Score, r.Detection.Reasons, e.Decider.Config())
	if expired != nil {
		e.persistSignal(ctx, *expired)
		e.Metrics.Signal(string(domain.SignalExpired))
	}
	if !ok {
		return domain.Signal{}, false
	}

	e.persistSignal(ctx, sig)
	e.Metrics.Signal(string(domain.SignalActive))
	if e.Notifier != nil {
		if err := e.Notifier.SignalDetected(ctx, sig); err != nil {
			slog.Warn("live: notifier error", "err", err)
		}
	}
	slog.Info("live: signal detected",
		"symbol", sig.Symbol,
		"score", fmt.Sprintf("%.1f", sig.Score),
		"expires_at", sig.ExpiresAt.Format(time.RFC3339),
	)
	return sig, true
}

// enter: reserve → BUY → MarkTraded → Open → persist. A failed BUY leaves
// the signal ACTIVE so the next cycle retries it.
func (e *Engine) enter(ctx context.Context, sig domain.Signal, price float64) (domain.Position, bool) {
	if now := e.Now(); !e.Breaker.Allow(now) {
		slog.Debug("live: loss breaker open, entry skipped", "symbol", sig.Symbol, "reason", e.Breaker.Reason(now))
		return domain.Position{}, false
	}
	if limit := e.cfg.MaxOpenPositions; limit > 0 && e.Positions.Count() >= limit {
		slog.Debug("live: max open positions reached, entry skipped", "symbol", sig.Symbol, "max", limit)
		return domain.Position{}, false
	}
	release, err := e.Positions.Reserve(sig.Symbol)
	if err != nil {
		slog.Debug("live: entry skipped", "symbol", sig.Symbol, "err", err)
		return domain.Position{}, false
	}
	defer release()

	qty := domain.PositionSize(0, price, e.Decider.Config())
	if qty <= 0 {
		return domain.Position{}, false
	}

	orderCtx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
	fill, err := e.Executor.PlaceMarketOrder(orderCtx, sig.Symbol, domain.SideBuy, qty)
	cancel()
	if err != nil {
		e.Metrics.OrderFailed(string(domain.SideBuy))
		slog.Warn("live: entry order failed, signal stays active",
			"symbol", sig.Symbol, "qty", qty, "err", err)
		return domain.Position{}, false
	}

	// A partir de aquí hay un fill real: persistir aunque ctx se cancele.
	ctx = context.WithoutCancel(ctx)

	traded, err := e.Signals.MarkTraded(sig.ID, sig.Symbol)
	if err != nil {
		slog.Error("live: signal changed during entry, tracking fill anyway",
			"symbol", sig.Symbol, "signal_id", sig.ID, "err", err)
		traded = sig
		traded.Status = domain.SignalTraded
	}
	e.persistSignal(ctx, traded)
	e.Metrics.Signal(string(domain.SignalTraded))

	pos, err := e.Positions.Open(traded, fill.FilledPrice, fill.Quantity, 0)
	if err != nil {
		slog.Error("live: filled order could not be tracked",
			"symbol", sig.Symbol, "order_id", fill.OrderID, "err", err)
		return domain.Position{}, false
	}
	if err := e.Store.SavePosition(ctx, pos); err != nil {
		slog.Error("live: save position failed", "symbol", pos.Symbol, "err", err)
	}

	e.Metrics.PositionOpened()
	e.Metrics.SetOpenPositions(len(e.Positions.Positions()))
	if e.Notifier != nil {
		if err := e.Notifier.PositionOpened(ctx, pos); err != nil {
			slog.Warn("live: notifier error", "err", err)
		}
	}
	slog.Info("live: position opened",
		"symbol", pos.Symbol,
		"entry", fmt.Sprintf("%.4f", pos.EntryPrice),
		"qty", fmt.Sprintf("%.6f", pos.Quantity),
		"stop_loss", fmt.Sprintf("%.4f", pos.StopLoss),
		"take_profit", fmt.Sprintf("%.4f", pos.TakeProfit),
		"order_id", fill.OrderID,
	)
	return pos, true
}

// exit: tick → SELL → Close → persist. A failed SELL keeps the position OPEN
// and it is re-evaluated on the next tick.
func (e *Engine) exit(ctx context.Context, p domain.Position, price float64) (domain.Trade, bool) {
	var advice *domain.ExitSignal
	if e.Advisor != nil {
		a, err := e.Advisor.Advise(ctx, p, price)
		if err != nil {
			slog.Debug("live: exit advisor failed", "symbol", p.Symbol, "err", err)
		}
		advice = a
	}

	prevHigh := p.HighestPrice
	ticked, reason, err := e.Positions.Tick(p.Symbol, price, advice)
	if err != nil {
		return domain.Trade{}, false
	}
	if reason == domain.ExitNone {
		if ticked.HighestPrice > prevHigh {
			if err := e.Store.SavePosition(ctx, ticked); err != nil {
				slog.Warn("live: save position failed", "symbol", p.Symbol, "err", err)
			}
		}
		return domain.Trade{}, false
	}

	orderCtx, cancel := context.WithTimeout(ctx, e.cfg.OrderTimeout)
	fill, err := e.Executor.PlaceMarketOrder(orderCtx, p.Symbol, domain.SideSell, ticked.Quantity)
	cancel()
	if err != nil {
		e.Metrics.OrderFailed(string(domain.SideSell))
		slog.Warn("live: exit order failed, position stays open",
			"symbol", p.Symbol, "reason", reason, "err", err)
		return domain.Trade{}, false
	}

	ctx = context.WithoutCancel(ctx)
	closed, trade, err := e.Positions.Close(ticked.ID, ticked.Symbol, fill.FilledPrice, reason)
	if err != nil {
		if !errors.Is(err, position.ErrPositionClosed) {
			slog.Error("live: close failed", "symbol", p.Symbol, "err", err)
		}
		return domain.Trade{}, false
	}
	if err := e.Store.SavePosition(ctx, closed); err != nil {
		slog.Error("live: save position failed", "symbol", closed.Symbol, "err", err)
	}
	// El SELL se redondea al LOT_SIZE: el trade refleja lo vendido.
	if fill.Quantity > 0 && fill.Quantity < closed.Quantity {
		sold := closed
		sold.Quantity = fill.Quantity
		trade = domain.TradeFromPosition(trade.ID, sold)
		slog.Warn("live: sell filled below position size, dust left on the exchange",
			"symbol", closed.Symbol,
			"position_qty", fmt.Sprintf("%.8f", closed.Quantity),
			"filled_qty", fmt.Sprintf("%.8f", fill.Quantity),
		)
	}
	if err := e.Store.SaveTrade(ctx, trade); err != nil {
		slog.Error("live: save trade failed", "symbol", trade.Symbol, "trade_id", trade.ID, "err", err)
	}

	e.Breaker.Record(trade, e.Now())
	if now := e.Now(); !e.Breaker.Allow(now) {
		slog.Warn("live: loss breaker tripped, new entries paused",
			"reason", e.Breaker.Reason(now), "realized_pnl", fmt.Sprintf("$%.2f", e.Breaker.RealizedPnL()))
	}
	e.Metrics.PositionClosed(string(reason), trade.PnL)
	e.Metrics.SetOpenPositions(len(e.Positions.Positions()))
	if e.Notifier != nil {
		if err := e.Notifier.PositionClosed(ctx, trade); err != nil {
			slog.Warn("live: notifier error", "err", err)
		}
	}
	slog.Info("live: position closed",
		"symbol", trade.Symbol,
		"reason", reason,
		"exit", fmt.Sprintf("%.4f", trade.ExitPrice),
		"pnl", fmt.Sprintf("$%.2f", trade.PnL),
		"pnl_pct", fmt.Sprintf("%+.2f%%", trade.PnLPct),
	)
	return trade, true
}

func (e *Engine) persistSignal(ctx context.Context, s domain.Signal) {
	if err := e.Store.SaveSignal(ctx, s); err != nil {
		slog.Error("live: save signal failed", "symbol", s.Symbol, "signal_id", s.ID, "err", err)
	}
}
