package live_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/momentumbot/internal/adapters/paper"
	"github.com/alejandrodnm/momentumbot/internal/application/engine/live"
	"github.com/alejandrodnm/momentumbot/internal/application/position"
	"github.com/alejandrodnm/momentumbot/internal/application/signals"
	"github.com/alejandrodnm/momentumbot/internal/domain"
	"github.com/alejandrodnm/momentumbot/internal/domain/strategy"
)

// --- fakes ---

type fakeScanner struct{ results []domain.ScanResult }

func (f *fakeScanner) Scan(context.Context) ([]domain.ScanResult, error) { return f.results, nil }

type fakeMarket struct{ prices map[string]float64 }

func (f *fakeMarket) GetRecentCandles(context.Context, string, string, int) ([]domain.Candle, error) {
	return nil, nil
}

func (f *fakeMarket) GetTicker(_ context.Context, symbol string) (domain.TickerSnapshot, error) {
	p, ok := f.prices[symbol]
	if !ok {
		return domain.TickerSnapshot{}, errors.New("no ticker")
	}
	return domain.TickerSnapshot{Symbol: symbol, LastPrice: p}, nil
}

type fakeExecutor struct {
	market   *fakeMarket
	failBuy  bool
	failSell bool
	lotStep  float64 // > 0 redondea los SELL hacia abajo
	orders   []domain.Side
}

func (f *fakeExecutor) PlaceMarketOrder(_ context.Context, symbol string, side domain.Side, qty float64) (domain.OrderFill, error) {
	if (side == domain.SideBuy && f.failBuy) || (side == domain.SideSell && f.failSell) {
		return domain.OrderFill{}, errors.New("exchange unavailable")
	}
	f.orders = append(f.orders, side)
	if side == domain.SideSell && f.lotStep > 0 {
		qty = math.Floor(qty/f.lotStep) * f.lotStep
	}
	return domain.OrderFill{
		OrderID: "o1", Symbol: symbol, Side: side, Quantity: qty,
		FilledPrice: f.market.prices[symbol], Status: "FILLED",
	}, nil
}

type memStore struct {
	mu        sync.Mutex
	signals   map[string]domain.Signal
	positions map[string]domain.Position
	trades    []domain.Trade
}

func newMemStore() *memStore {
	return &memStore{signals: map[string]domain.Signal{}, positions: map[string]domain.Position{}}
}

func (m *memStore) SaveSignal(_ context.Context, s domain.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[s.ID] = s
	return nil
}

func (m *memStore) GetActiveSignals(context.Context) ([]domain.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Signal
	for _, s := range m.signals {
		if s.Status == domain.SignalActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) GetSignalsBySymbol(context.Context, string) ([]domain.Signal, error) {
	return nil, nil
}

func (m *memStore) SavePosition(_ context.Context, p domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.ID] = p
	return nil
}

func (m *memStore) GetOpenPositions(context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, p := range m.positions {
		if p.Status == domain.PositionOpen {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) GetPositionsBySymbol(context.Context, string) ([]domain.Position, error) {
	return nil, nil
}

func (m *memStore) SaveTrade(_ context.Context, t domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, t)
	return nil
}

func (m *memStore) GetTrades(context.Context, time.Time, time.Time) ([]domain.Trade, error) {
	return m.trades, nil
}

func (m *memStore) GetTradesBySymbol(context.Context, string) ([]domain.Trade, error) {
	return nil, nil
}

func (m *memStore) Close() error { return nil }

type countingNotifier struct{ signals, opened, closed int }

func (n *countingNotifier) SignalDetected(context.Context, domain.Signal) error {
	n.signals++
	return nil
}

func (n *countingNotifier) PositionOpened(context.Context, domain.Position) error {
	n.opened++
	return nil
}

func (n *countingNotifier) PositionClosed(context.Context, domain.Trade) error {
	n.closed++
	return nil
}

type fixedAdvisor struct{ signal *domain.ExitSignal }

func (a fixedAdvisor) Advise(context.Context, domain.Position, float64) (*domain.ExitSignal, error) {
	return a.signal, nil
}

// --- harness ---

type harness struct {
	now      time.Time
	scanner  *fakeScanner
	market   *fakeMarket
	executor *fakeExecutor
	store    *memStore
	notifier *countingNotifier
	engine   *live.Engine
}

func newHarness(t *testing.T, cfg live.Config, mutate func(*live.Deps)) *harness {
	t.Helper()
	mc, err := domain.NewMomentumConfig(domain.MomentumParams{
		MinPrice1h: 1.5, MinVolumeRatio: 1.5, BreakoutThresh: 93, MinMomentumScore: 60,
		StopLossPct: 5, TakeProfitPct: 10, TrailingStopPct: 2.5, MaxPositionValue: 1000, SignalTTLHours: 4,
	})
	require.NoError(t, err)

	h := &harness{
		now:      time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		scanner:  &fakeScanner{},
		market:   &fakeMarket{prices: map[string]float64{}},
		store:    newMemStore(),
		notifier: &countingNotifier{},
	}
	h.executor = &fakeExecutor{market: h.market}
	clock := func() time.Time { return h.now }
	decider := strategy.NewMomentum(mc)

	deps := live.Deps{
		Decider:   decider,
		Scanner:   h.scanner,
		Market:    h.market,
		Executor:  h.executor,
		Store:     h.store,
		Notifier:  h.notifier,
		Signals:   signals.NewRegistry(signals.WithClock(clock)),
		Positions: position.NewManager(decider, position.WithClock(clock)),
		Now:       clock,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.engine = live.New(cfg, deps)
	return h
}

// trigger publica un resultado disparado para symbol a price.
func (h *harness) trigger(symbols ...string) {
	h.scanner.results = nil
	for _, s := range symbols {
		h.scanner.results = append(h.scanner.results, domain.ScanResult{
			Symbol: s,
			Ticker: domain.TickerSnapshot{Symbol: s, LastPrice: h.market.prices[s]},
			Detection: domain.Detection{
				Score: 72, Triggered: true, Reasons: []string{"breakout"},
			},
		})
	}
}

func (h *harness) signalsWithStatus(st domain.SignalStatus) []domain.Signal {
	var out []domain.Signal
	for _, s := range h.store.signals {
		if s.Status == st {
			out = append(out, s)
		}
	}
	return out
}

// --- tests ---

func TestRunOnce_EntersOnTriggeredSignal(t *testing.T) {
	h := newHarness(t, live.Config{}, nil)
	h.market.prices["BTCUSDT"] = 106
	h.trigger("BTCUSDT")

	res, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)

	require.Len(t, res.NewSignals, 1)
	require.Len(t, res.Opened, 1)
	p := res.Opened[0]
	assert.Equal(t, 106.0, p.EntryPrice)
	assert.InDelta(t, 1000.0/106, p.Quantity, 1e-9)
	assert.InDelta(t, 100.7, p.StopLoss, 1e-9)
	assert.Equal(t, res.NewSignals[0].ID, p.SignalID)

	assert.Len(t, h.signalsWithStatus(domain.SignalTraded), 1)
	assert.Empty(t, h.signalsWithStatus(domain.SignalActive))
	assert.Len(t, h.store.positions, 1)
	assert.Equal(t, 1, h.notifier.signals)
	assert.Equal(t, 1, h.notifier.opened)
	assert.Equal(t, []domain.Side{domain.SideBuy}, h.executor.orders)
}

func TestRunOnce_FailedBuyKeepsSignalActiveAndRetries(t *testing.T) {
	h := newHarness(t, live.Config{}, nil)
	h.market.prices["BTCUSDT"] = 106
	h.trigger("BTCUSDT")
	h.executor.failBuy = true

	res, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.NewSignals, 1)
	assert.Empty(t, res.Opened)
	assert.Len(t, h.signalsWithStatus(domain.SignalActive), 1)
	_, open := h.engine.Positions.Get("BTCUSDT")
	assert.False(t, open)

	// Siguiente ciclo: la señal sigue ACTIVE, no se duplica, y la entrada se reintenta.
	h.executor.failBuy = false
	h.now = h.now.Add(time.Hour)
	res, err = h.engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.NewSignals)
	require.Len(t, res.Opened, 1)
	assert.Len(t, h.store.signals, 1)
	assert.Len(t, h.signalsWithStatus(domain.SignalTraded), 1)
}

func TestRunOnce_RespectsMaxOpenPositions(t *testing.T) {
	h := newHarness(t, live.Config{MaxOpenPositions: 1}, nil)
	h.market.prices["BTCUSDT"] = 106
	h.market.prices["ETHUSDT"] = 53
	h.trigger("BTCUSDT", "ETHUSDT")

	res, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.NewSignals, 2)
	require.Len(t, res.Opened, 1)
	assert.Equal(t, "BTCUSDT", res.Opened[0].Symbol)
	assert.Len(t, h.signalsWithStatus(domain.SignalActive), 1)
}

func TestRunOnce_NoSignalWhilePositionOpen(t *testing.T) {
	h := newHarness(t, live.Config{}, nil)
	h.market.prices["BTCUSDT"] = 106
	h.trigger("BTCUSDT")

	_, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)

	h.market.prices["BTCUSDT"] = 107
	h.trigger("BTCUSDT")
	res, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.NewSignals)
	assert.Empty(t, res.Opened)
	assert.Equal(t, 1, h.notifier.signals)
}

func TestRunOnce_ExpiresStaleSignals(t *testing.T) {
	h := newHarness(t, live.Config{}, nil)
	h.market.prices["BTCUSDT"] = 106
	h.trigger("BTCUSDT")
	h.executor.failBuy = true

	_, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)

	h.now = h.now.Add(4 * time.Hour)
	h.scanner.results = nil
	res, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Expired, 1)
	assert.Equal(t, "BTCUSDT", res.Expired[0].Symbol)
	assert.Len(t, h.signalsWithStatus(domain.SignalExpired), 1)
	assert.Empty(t, h.engine.Signals.Active())
}

func TestMonitor_StopLossClosesPosition(t *testing.T) {
	h := newHarness(t, live.Config{}, nil)
	h.market.prices["BTCUSDT"] = 106
	h.trigger("BTCUSDT")
	_, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)

	h.now = h.now.Add(2 * time.Hour)
	h.market.prices["BTCUSDT"] = 100
	closed := h.engine.Monitor(context.Background(), nil)

	require.Len(t, closed, 1)
	tr := closed[0]
	assert.Equal(t, domain.ExitStopLoss, tr.ExitReason)
	assert.InDelta(t, (100.0-106)*1000/106, tr.PnL, 1e-9)
	assert.Equal(t, int64(7200), tr.DurationSeconds)

	require.Len(t, h.store.trades, 1)
	open, _ := h.store.GetOpenPositions(context.Background())
	assert.Empty(t, open)
	assert.Equal(t, 1, h.notifier.closed)
	assert.Equal(t, []domain.Side{domain.SideBuy, domain.SideSell}, h.executor.orders)
}

func TestMonitor_FailedSellKeepsPositionOpen(t *testing.T) {
	h := newHarness(t, live.Config{}, nil)
	h.market.prices["BTCUSDT"] = 106
	h.trigger("BTCUSDT")
	_, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)

	h.market.prices["BTCUSDT"] = 120
	h.executor.failSell = true
	assert.Empty(t, h.engine.Monitor(context.Background(), nil))

	p, open := h.engine.Positions.Get("BTCUSDT")
	require.True(t, open)
	assert.Equal(t, domain.PositionOpen, p.Status)
	assert.Empty(t, h.store.trades)

	h.executor.failSell = false
	closed := h.engine.Monitor(context.Background(), nil)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.ExitTakeProfit, closed[0].ExitReason)
}

func TestMonitor_PersistsNewHigh(t *testing.T) {
	h := newHarness(t, live.Config{}, nil)
	h.market.prices["BTCUSDT"] = 106
	h.trigger("BTCUSDT")
	res, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Opened, 1)

	h.market.prices["BTCUSDT"] = 108
	assert.Empty(t, h.engine.Monitor(context.Background(), nil))
	assert.Equal(t, 108.0, h.store.positions[res.Opened[0].ID].HighestPrice)
}

func TestMonitor_AdvisorExit(t *testing.T) {
	h := newHarness(t, live.Config{}, func(d *live.Deps) {
		d.Advisor = fixedAdvisor{signal: &domain.ExitSignal{Confidence: 0.9, Threshold: 0.7, Reason: "reversal"}}
	})
	h.market.prices["BTCUSDT"] = 106
	h.trigger("BTCUSDT")
	_, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)

	// RunOnce ya monitorizó antes de entrar; el siguiente tick dispara AI_EXIT.
	closed := h.engine.Monitor(context.Background(), nil)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.ExitAI, closed[0].ExitReason)
}

func TestRestore_ReloadsStateFromStore(t *testing.T) {
	h := newHarness(t, live.Config{}, nil)
	ctx := context.Background()

	require.NoError(t, h.store.SaveSignal(ctx, domain.Signal{
		ID: "s1", Symbol: "ETHUSDT", Score: 70, TriggeredAt: h.now, ExpiresAt: h.now.Add(time.Hour), Status: domain.SignalActive,
	}))
	require.NoError(t, h.store.SavePosition(ctx, domain.Position{
		ID: "p1", Symbol: "BTCUSDT", SignalID: "s0", EntryPrice: 100, Quantity: 1,
		StopLoss: 95, TakeProfit: 110, TrailingStopPct: 2.5, HighestPrice: 100,
		Status: domain.PositionOpen, OpenedAt: h.now.Add(-time.Hour),
	}))

	require.NoError(t, h.engine.Restore(ctx))

	_, ok := h.engine.Signals.Get("ETHUSDT")
	assert.True(t, ok)
	p, ok := h.engine.Positions.Get("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, "p1", p.ID)

	// La posición restaurada se gestiona como cualquier otra.
	h.market.prices["BTCUSDT"] = 94
	closed := h.engine.Monitor(ctx, nil)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.ExitStopLoss, closed[0].ExitReason)
}

func TestLossBreaker_PausesEntriesAfterLoss(t *testing.T) {
	breaker := &domain.LossBreaker{MaxLosses: 1, Cooldown: 6 * time.Hour}
	h := newHarness(t, live.Config{}, func(d *live.Deps) { d.Breaker = breaker })
	h.market.prices["BTCUSDT"] = 106
	h.trigger("BTCUSDT")
	_, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)

	h.now = h.now.Add(time.Hour)
	h.market.prices["BTCUSDT"] = 100
	require.Len(t, h.engine.Monitor(context.Background(), nil), 1)
	assert.False(t, breaker.Allow(h.now))

	// Nueva señal en otro símbolo: se registra pero no se entra.
	h.market.prices["ETHUSDT"] = 53
	h.trigger("ETHUSDT")
	res, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.NewSignals, 1)
	assert.Empty(t, res.Opened)

	h.now = h.now.Add(6 * time.Hour)
	h.scanner.results = nil
	h.market.prices["ETHUSDT"] = 53
	res, err = h.engine.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Opened, "signal expired during the pause")
}

func TestRestore_SeedsBreakerWithTodaysTrades(t *testing.T) {
	breaker := &domain.LossBreaker{MaxRealizedLoss: -50}
	h := newHarness(t, live.Config{}, func(d *live.Deps) { d.Breaker = breaker })
	h.store.trades = []domain.Trade{{ID: "t1", Symbol: "BTCUSDT", PnL: -60, ClosedAt: h.now.Add(-time.Hour)}}

	require.NoError(t, h.engine.Restore(context.Background()))
	assert.False(t, breaker.Allow(h.now))
	assert.InDelta(t, -60.0, breaker.RealizedPnL(), 1e-9)
}

func TestMonitor_TradeRecordsFilledSellQuantity(t *testing.T) {
	h := newHarness(t, live.Config{}, nil)
	h.executor.lotStep = 0.01
	h.market.prices["BTCUSDT"] = 106
	h.trigger("BTCUSDT")
	res, err := h.engine.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Opened, 1)

	h.market.prices["BTCUSDT"] = 100
	closed := h.engine.Monitor(context.Background(), nil)
	require.Len(t, closed, 1)

	sold := math.Floor(1000.0/106/0.01) * 0.01
	assert.InDelta(t, sold, closed[0].Quantity, 1e-9)
	assert.InDelta(t, (100.0-106)*sold, closed[0].PnL, 1e-9)
	require.Len(t, h.store.trades, 1)
	assert.InDelta(t, sold, h.store.trades[0].Quantity, 1e-9)
	assert.InDelta(t, 1000.0/106, h.store.positions[res.Opened[0].ID].Quantity, 1e-9)
}

func TestRestore_PaperExecutorCanSellRestoredPosition(t *testing.T) {
	var ex *paper.Executor
	h := newHarness(t, live.Config{}, func(d *live.Deps) {
		ex = paper.NewExecutor(d.Market, 1000, 0)
		d.Executor = ex
	})
	ctx := context.Background()

	h.store.trades = []domain.Trade{{
		ID: "t0", Symbol: "ETHUSDT", EntryPrice: 50, ExitPrice: 60, Quantity: 2,
		ExitReason: domain.ExitTakeProfit, ClosedAt: h.now.Add(-2 * time.Hour),
	}}
	require.NoError(t, h.store.SavePosition(ctx, domain.Position{
		ID: "p1", Symbol: "BTCUSDT", SignalID: "s0", EntryPrice: 100, Quantity: 1,
		StopLoss: 95, TakeProfit: 110, TrailingStopPct: 2.5, HighestPrice: 100,
		Status: domain.PositionOpen, OpenedAt: h.now.Add(-time.Hour),
	}))

	require.NoError(t, h.engine.Restore(ctx))
	assert.InDelta(t, 1000.0+20-100, ex.Balance(), 1e-9)
	assert.InDelta(t, 1.0, ex.Holding("BTCUSDT"), 1e-9)

	h.market.prices["BTCUSDT"] = 90
	closed := h.engine.Monitor(ctx, nil)
	require.Len(t, closed, 1)
	assert.Equal(t, domain.ExitStopLoss, closed[0].ExitReason)
	assert.Equal(t, "p1", closed[0].PositionID)
	assert.InDelta(t, 1000.0+20-100+90, ex.Balance(), 1e-9)
	_, open := h.engine.Positions.Get("BTCUSDT")
	assert.False(t, open)
}
