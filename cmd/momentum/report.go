package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/momentumbot/internal/adapters/notify"
	"github.com/alejandrodnm/momentumbot/internal/domain"
)

var (
	reportFrom    string
	reportTo      string
	reportDays    int
	reportCapital float64
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarize closed trades and open positions",
	Long: `Reads the trades persisted by the live loop in the given period and prints
the same performance summary a backtest produces, plus every open position.`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportFrom, "from", "", "start date (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&reportTo, "to", "", "end date inclusive (YYYY-MM-DD, default today)")
	reportCmd.Flags().IntVar(&reportDays, "days", 7, "days back when --from is not set")
	reportCmd.Flags().Float64Var(&reportCapital, "capital", 0, "capital the returns are measured against (default exchange.paper_balance)")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	from, to, err := timeRange(reportFrom, reportTo, reportDays)
	if err != nil {
		return err
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	trades, err := store.GetTrades(ctx, from, to)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}
	open, err := store.GetOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	capital := reportCapital
	if capital <= 0 {
		capital = cfg.Exchange.PaperBalance
	}

	notify.NewConsole(tableOut).PrintReport(notify.ReportInput{
		From:   from,
		To:     to,
		Result: domain.Summarize(trades, capital, domain.TradeSpan(trades)),
		Open:   open,
	})
	slog.Debug("report complete", "trades", len(trades), "open_positions", len(open))
	return nil
}
