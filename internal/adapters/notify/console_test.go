package notify_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/momentumbot/internal/adapters/notify"
	"github.com/alejandrodnm/momentumbot/internal/domain"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func makeTrade(pnl float64) domain.Trade {
	return domain.Trade{
		ID: "t1", Symbol: "BTCUSDT", Side: domain.SideBuy,
		EntryPrice: 100, ExitPrice: 100 + pnl/10, Quantity: 10,
		PnL: pnl, PnLPct: pnl / 10, DurationSeconds: 7200,
		ExitReason: domain.ExitTakeProfit, OpenedAt: t0, ClosedAt: t0.Add(2 * time.Hour),
	}
}

func TestConsole_LifecycleEvents(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)
	ctx := context.Background()

	require.NoError(t, n.SignalDetected(ctx, domain.Signal{
		Symbol: "BTCUSDT", Score: 72, Reasons: []string{"breakout"}, TriggeredAt: t0, ExpiresAt: t0.Add(4 * time.Hour),
	}))
	require.NoError(t, n.PositionOpened(ctx, domain.Position{
		Symbol: "BTCUSDT", EntryPrice: 106, Quantity: 9.43, StopLoss: 100.7, TakeProfit: 116.6, TrailingStopPct: 2.5, OpenedAt: t0,
	}))
	require.NoError(t, n.PositionClosed(ctx, makeTrade(100)))

	out := buf.String()
	assert.Contains(t, out, "SIGNAL")
	assert.Contains(t, out, "score 72.0")
	assert.Contains(t, out, "OPEN")
	assert.Contains(t, out, "TAKE_PROFIT")
	assert.Contains(t, out, "PnL $100.00")
	assert.Contains(t, out, "held 2h0m0s")
}

func TestConsole_PrintScan_Compact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	n.PrintScan([]domain.ScanResult{
		{Symbol: "BTCUSDT", Detection: domain.Detection{Score: 72, Triggered: true}},
		{Symbol: "ETHUSDT", Detection: domain.Detection{Score: 30}},
	})
	out := buf.String()
	assert.Contains(t, out, "2 symbols → 1 triggered")
	assert.Contains(t, out, "BTCUSDT 72.0")
	assert.NotContains(t, out, "ETHUSDT")
}

func TestConsole_PrintScan_Table(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	n.PrintScan([]domain.ScanResult{
		{Symbol: "BTCUSDT", Ticker: domain.TickerSnapshot{LastPrice: 106}, Detection: domain.Detection{Score: 72, Triggered: true}},
		{Symbol: "SOLUSDT", Err: errors.New("timeout")},
	})
	out := buf.String()
	assert.Contains(t, out, "BTCUSDT")
	assert.Contains(t, out, "106.0000")
	assert.Contains(t, out, "ERR")
}

func TestConsole_PrintEmptyScan(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf, true).PrintScan(nil)
	assert.Contains(t, buf.String(), "no symbols scanned")
}

func TestConsole_PrintLeaderboard(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	n.PrintLeaderboard("BEST RETURN", []domain.SweepEntry{{
		Params: domain.MomentumParams{StopLossPct: 5, TakeProfitPct: 10, TrailingStopPct: 2.5},
		Result: domain.BacktestResult{TotalReturn: 12.34, TotalTrades: 7, SharpeRatio: 1.5},
	}})
	out := buf.String()
	assert.Contains(t, out, "BEST RETURN (1)")
	assert.Contains(t, out, "+12.34")

	buf.Reset()
	n.PrintLeaderboard("BEST SHARPE", nil)
	assert.Contains(t, buf.String(), "(none)")
}

func TestConsole_PrintReport(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	trades := []domain.Trade{makeTrade(100)}
	n.PrintReport(notify.ReportInput{
		From:   t0,
		To:     t0.Add(24 * time.Hour),
		Result: domain.Summarize(trades, 1000, 24*time.Hour),
	})
	out := buf.String()
	assert.Contains(t, out, "LIVE REPORT 2024-01-01 → 2024-01-02")
	assert.Contains(t, out, "$1000.00 → $1100.00")
	assert.Contains(t, out, "(none)")
	assert.Contains(t, out, "TAKE_PROFIT")
}

func TestConsole_PrintSweepSummary(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	n.PrintSweepSummary(notify.SweepSummary{
		SweepID:  "sw-1",
		Total:    12,
		Resumed:  4,
		Rejected: []string{"trailing_stop_pct 6 must be below stop_loss_pct 5"},
		Failed:   []domain.SweepEntry{{Key: "k1", Failed: true, Error: "panic: boom"}},
	})
	out := buf.String()
	assert.Contains(t, out, "Combinations: 12 (resumed 4, rejected 1, failed 1)")
	assert.Contains(t, out, "panic: boom")
}
