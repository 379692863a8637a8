package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// Console implementa ports.Notifier y los informes de los subcomandos.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

func (c *Console) SignalDetected(_ context.Context, s domain.Signal) error {
	fmt.Fprintf(c.out, "[%s] SIGNAL  %-10s score %.1f  expires %s  %s\n",
		s.TriggeredAt.Format("15:04:05"), s.Symbol, s.Score,
		s.ExpiresAt.Format("15:04"), strings.Join(s.Reasons, ", "))
	return nil
}

func (c *Console) PositionOpened(_ context.Context, p domain.Position) error {
	fmt.Fprintf(c.out, "[%s] OPEN    %-10s qty %.6f @ %.4f  SL %.4f  TP %.4f  trail %.2f%%\n",
		p.OpenedAt.Format("15:04:05"), p.Symbol, p.Quantity, p.EntryPrice,
		p.StopLoss, p.TakeProfit, p.TrailingStopPct)
	return nil
}

func (c *Console) PositionClosed(_ context.Context, t domain.Trade) error {
	fmt.Fprintf(c.out, "[%s] CLOSE   %-10s %-13s %.4f → %.4f  PnL $%.2f (%+.2f%%)  held %s\n",
		t.ClosedAt.Format("15:04:05"), t.Symbol, t.ExitReason, t.EntryPrice, t.ExitPrice,
		t.PnL, t.PnLPct, time.Duration(t.DurationSeconds)*time.Second)
	return nil
}

// PrintScan imprime el resultado de un ciclo. En modo compacto solo una
// línea con las señales disparadas.
func (c *Console) PrintScan(results []domain.ScanResult) {
	now := time.Now().Format("15:04:05")
	if len(results) == 0 {
		fmt.Fprintf(c.out, "[%s] no symbols scanned\n", now)
		return
	}

	if !c.table {
		var sb strings.Builder
		triggered := 0
		for _, r := range results {
			if r.Err == nil && r.Detection.Triggered {
				triggered++
				fmt.Fprintf(&sb, " | %s %.1f", r.Symbol, r.Detection.Score)
			}
		}
		fmt.Fprintf(c.out, "[%s] %d symbols → %d triggered%s\n", now, len(results), triggered, sb.String())
		return
	}

	fmt.Fprintf(c.out, "\n[%s] scan: %d symbols\n", now, len(results))
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Symbol", "Price", "Δ1h%", "Vol x", "Brk%", "Score", "Signal")
	for i, r := range results {
		if r.Err != nil {
			table.Append(fmt.Sprintf("%d", i+1), r.Symbol, "-", "-", "-", "-", "-", "ERR")
			continue
		}
		d := r.Detection
		signal := ""
		if d.Triggered {
			signal = "YES"
		} else if len(d.Reasons) == 1 && d.Score == 0 {
			signal = d.Reasons[0]
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			r.Symbol,
			fmt.Sprintf("%.4f", r.Price()),
			fmt.Sprintf("%+.2f", d.PriceChange1h),
			fmt.Sprintf("%.2f", d.VolumeRatio),
			fmt.Sprintf("%.1f", d.BreakoutScore),
			fmt.Sprintf("%.1f", d.Score),
			signal,
		)
	}
	table.Render()
}

// PrintBacktest imprime el resultado de un backtest y, en modo tabla, sus trades.
func (c *Console) PrintBacktest(symbol string, r domain.BacktestResult) {
	fmt.Fprintf(c.out, "\n=== BACKTEST %s ===\n", symbol)
	c.printSummary(r)

	if !c.table || len(r.Trades) == 0 {
		return
	}
	c.printTrades(r.Trades)
}

// PrintLeaderboard imprime un ranking del optimizador.
func (c *Console) PrintLeaderboard(title string, entries []domain.SweepEntry) {
	fmt.Fprintf(c.out, "\n── %s (%d) ──\n", title, len(entries))
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "  (none)")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Price1h", "VolR", "Brk", "Score", "SL%", "TP%", "Trail%",
		"Return%", "Trades", "Win%", "AvgW", "AvgL", "PF", "Sharpe", "MaxDD%")
	for i, e := range entries {
		p, r := e.Params, e.Result
		table.Append(
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%g", p.MinPrice1h),
			fmt.Sprintf("%g", p.MinVolumeRatio),
			fmt.Sprintf("%g", p.BreakoutThresh),
			fmt.Sprintf("%g", p.MinMomentumScore),
			fmt.Sprintf("%g", p.StopLossPct),
			fmt.Sprintf("%g", p.TakeProfitPct),
			fmt.Sprintf("%g", p.TrailingStopPct),
			fmt.Sprintf("%+.2f", r.TotalReturn),
			fmt.Sprintf("%d", r.TotalTrades),
			fmt.Sprintf("%.1f", r.WinRate),
			fmt.Sprintf("%.2f", r.AvgWin),
			fmt.Sprintf("%.2f", r.AvgLoss),
			fmt.Sprintf("%.2f", r.ProfitFactor),
			fmt.Sprintf("%.2f", r.SharpeRatio),
			fmt.Sprintf("%.2f", r.MaxDrawdown),
		)
	}
	table.Render()
}

// SweepSummary agrupa los contadores de un sweep para PrintSweepSummary.
type SweepSummary struct {
	SweepID  string
	Total    int
	Resumed  int
	Rejected []string
	Failed   []domain.SweepEntry
}

func (c *Console) PrintSweepSummary(s SweepSummary) {
	fmt.Fprintf(c.out, "\n=== SWEEP %s ===\n", s.SweepID)
	fmt.Fprintf(c.out, "  Combinations: %d (resumed %d, rejected %d, failed %d)\n",
		s.Total, s.Resumed, len(s.Rejected), len(s.Failed))
	for i, r := range s.Rejected {
		if i >= 5 {
			fmt.Fprintf(c.out, "  ... %d more rejected\n", len(s.Rejected)-i)
			break
		}
		fmt.Fprintf(c.out, "  rejected: %s\n", r)
	}
	for _, f := range s.Failed {
		fmt.Fprintf(c.out, "  failed:   %s: %s\n", f.Key, f.Error)
	}
}

// ReportInput agrupa lo que necesita el subcomando report.
type ReportInput struct {
	From, To time.Time
	Result   domain.BacktestResult
	Open     []domain.Position
}

// PrintReport imprime el rendimiento de la operativa live en el periodo.
func (c *Console) PrintReport(in ReportInput) {
	fmt.Fprintf(c.out, "\n=== LIVE REPORT %s → %s ===\n",
		in.From.Format("2006-01-02"), in.To.Format("2006-01-02"))
	c.printSummary(in.Result)

	fmt.Fprintf(c.out, "\n── OPEN POSITIONS (%d) ──\n", len(in.Open))
	if len(in.Open) == 0 {
		fmt.Fprintln(c.out, "  (none)")
	}
	for _, p := range in.Open {
		fmt.Fprintf(c.out, "  %-10s qty %.6f @ %.4f  high %.4f  SL %.4f  TP %.4f  since %s\n",
			p.Symbol, p.Quantity, p.EntryPrice, p.HighestPrice, p.StopLoss, p.TakeProfit,
			p.OpenedAt.Format("2006-01-02 15:04"))
	}

	if len(in.Result.Trades) > 0 {
		fmt.Fprintf(c.out, "\n── TRADES ──\n")
		c.printTrades(in.Result.Trades)
	}
	fmt.Fprintln(c.out)
}

func (c *Console) printSummary(r domain.BacktestResult) {
	fmt.Fprintf(c.out, "  Capital:      $%.2f → $%.2f (%+.2f%%)\n", r.StartingCapital, r.FinalEquity, r.TotalReturn)
	fmt.Fprintf(c.out, "  Trades:       %d (win rate %.1f%%)\n", r.TotalTrades, r.WinRate)
	fmt.Fprintf(c.out, "  Avg win/loss: $%.2f / $%.2f\n", r.AvgWin, r.AvgLoss)
	fmt.Fprintf(c.out, "  Profit factor %.2f | Sharpe %.2f | Max DD %.2f%%\n", r.ProfitFactor, r.SharpeRatio, r.MaxDrawdown)
}

func (c *Console) printTrades(trades []domain.Trade) {
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Symbol", "Opened", "Entry", "Exit", "Qty", "PnL", "PnL%", "Reason")
	for i, t := range trades {
		table.Append(
			fmt.Sprintf("%d", i+1),
			t.Symbol,
			t.OpenedAt.Format("01-02 15:04"),
			fmt.Sprintf("%.4f", t.EntryPrice),
			fmt.Sprintf("%.4f", t.ExitPrice),
			fmt.Sprintf("%.6f", t.Quantity),
			fmt.Sprintf("$%.2f", t.PnL),
			fmt.Sprintf("%+.2f", t.PnLPct),
			string(t.ExitReason),
		)
	}
	table.Render()
}
