package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/alejandrodnm/momentumbot/internal/adapters/postgres"
	"github.com/alejandrodnm/momentumbot/internal/domain"
)

func setupStore(t *testing.T) *postgres.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("momentum"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := postgres.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Lifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sig := domain.Signal{
		ID: "s1", Symbol: "BTCUSDT", Score: 70, Reasons: []string{"breakout"},
		TriggeredAt: t0, ExpiresAt: t0.Add(4 * time.Hour), Status: domain.SignalActive,
	}
	require.NoError(t, store.SaveSignal(ctx, sig))
	active, err := store.GetActiveSignals(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, []string{"breakout"}, active[0].Reasons)

	sig.Status = domain.SignalTraded
	require.NoError(t, store.SaveSignal(ctx, sig))
	active, err = store.GetActiveSignals(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	pos := domain.Position{
		ID: "p1", Symbol: "BTCUSDT", SignalID: "s1", EntryPrice: 100, Quantity: 10,
		StopLoss: 95, TakeProfit: 110, TrailingStopPct: 2.5, HighestPrice: 100,
		Status: domain.PositionOpen, OpenedAt: t0,
	}
	require.NoError(t, store.SavePosition(ctx, pos))
	open, err := store.GetOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.True(t, open[0].ClosedAt.IsZero())

	pos.Status = domain.PositionClosed
	pos.ExitPrice = 94
	pos.ExitReason = domain.ExitStopLoss
	pos.ClosedAt = t0.Add(time.Hour)
	require.NoError(t, store.SavePosition(ctx, pos))

	got, err := store.GetPosition(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExitStopLoss, got.ExitReason)

	_, err = store.GetPosition(ctx, "nope")
	assert.ErrorIs(t, err, postgres.ErrNotFound)

	tr := domain.TradeFromPosition("t1", pos)
	require.NoError(t, store.SaveTrade(ctx, tr))
	assert.ErrorIs(t, store.SaveTrade(ctx, tr), postgres.ErrDuplicateKey)

	trades, err := store.GetTrades(ctx, t0, t0.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.InDelta(t, -60, trades[0].PnL, 1e-9)
}

func TestStore_SweepCheckpoints(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.LatestSweepID(ctx)
	assert.ErrorIs(t, err, postgres.ErrNotFound)

	params := domain.MomentumParams{StopLossPct: 3, TakeProfitPct: 9, TrailingStopPct: 2, LookbackCandles: 25}
	e := domain.SweepEntry{
		Key:    domain.ComboKey(params),
		Params: params,
		Result: domain.BacktestResult{TotalReturn: 4.2, TotalTrades: 7, StartingCapital: 1000},
	}
	require.NoError(t, store.SaveSweepEntry(ctx, "sw1", e))

	e.Result.TotalReturn = 5
	require.NoError(t, store.SaveSweepEntry(ctx, "sw1", e))
	require.NoError(t, store.SaveSweepEntry(ctx, "sw1", domain.SweepEntry{Key: "bad", Failed: true, Error: "boom"}))

	got, err := store.GetSweepEntries(ctx, "sw1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, params, got[0].Params)
	assert.InDelta(t, 5.0, got[0].Result.TotalReturn, 1e-9)
	assert.True(t, got[1].Failed)

	id, err := store.LatestSweepID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sw1", id)
}

func TestStore_SweepFingerprint(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	fp, err := store.GetSweepFingerprint(ctx, "sw1")
	require.NoError(t, err)
	assert.Empty(t, fp)

	require.NoError(t, store.SaveSweepFingerprint(ctx, "sw1", "BTCUSDT|1h0m0s|1|2|2|1000"))
	require.NoError(t, store.SaveSweepFingerprint(ctx, "sw1", "BTCUSDT|1h0m0s|1|2|2|5000"))

	fp, err = store.GetSweepFingerprint(ctx, "sw1")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT|1h0m0s|1|2|2|1000", fp)
}
