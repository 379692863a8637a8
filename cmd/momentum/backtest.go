package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/momentumbot/internal/adapters/notify"
	"github.com/alejandrodnm/momentumbot/internal/application/backtest"
	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// replayFlags son comunes a backtest y optimize.
type replayFlags struct {
	symbol  string
	from    string
	to      string
	days    int
	source  string
	capital float64
}

func (f *replayFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.symbol, "symbol", "BTCUSDT", "symbol to replay")
	cmd.Flags().StringVar(&f.from, "from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "end date inclusive (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&f.days, "days", 30, "days of history when --from is not set")
	cmd.Flags().StringVar(&f.source, "source", sourceBinance, "candle source: binance|clickhouse")
	cmd.Flags().Float64Var(&f.capital, "capital", 0, "starting capital (default optimizer.capital)")
}

// loadCandles resuelve el rango y descarga las velas de la fuente elegida.
func (f *replayFlags) loadCandles(cmd *cobra.Command) ([]domain.Candle, error) {
	from, to, err := timeRange(f.from, f.to, f.days)
	if err != nil {
		return nil, err
	}
	history, closeHistory, err := candleHistory(cmd.Context(), f.source)
	if err != nil {
		return nil, err
	}
	defer closeHistory()

	symbol := strings.ToUpper(f.symbol)
	candles, err := history.GetCandles(cmd.Context(), symbol, cfg.Momentum.Interval, from, to)
	if err != nil {
		return nil, fmt.Errorf("load candles from %s: %w", f.source, err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("load candles: %s has no %s candles between %s and %s in %s",
			symbol, cfg.Momentum.Interval, from.Format(dateLayout), to.Format(dateLayout), f.source)
	}
	slog.Info("candles loaded",
		"symbol", symbol,
		"source", f.source,
		"count", len(candles),
		"from", candles[0].OpenTime,
		"to", candles[len(candles)-1].OpenTime,
	)
	return candles, nil
}

func (f *replayFlags) startingCapital() float64 {
	if f.capital > 0 {
		return f.capital
	}
	return cfg.Optimizer.Capital
}

var btFlags replayFlags

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay historical candles through the strategy",
	Long: `Replays one symbol's candles through the same signal and position logic the
live loop uses, with no orders sent, and prints the resulting performance.`,
	RunE: runBacktest,
}

func init() {
	btFlags.register(backtestCmd)
	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	momentum, err := cfg.MomentumConfig()
	if err != nil {
		return err
	}
	candles, err := btFlags.loadCandles(cmd)
	if err != nil {
		return err
	}

	symbol := strings.ToUpper(btFlags.symbol)
	capital := btFlags.startingCapital()
	result, err := backtest.NewEngine(symbol, nil).Run(candles, momentum, capital)
	if err != nil {
		return fmt.Errorf("backtest: %w", err)
	}

	notify.NewConsole(tableOut).PrintBacktest(symbol, result)
	slog.Info("backtest complete",
		"symbol", symbol,
		"candles", len(candles),
		"trades", result.TotalTrades,
		"return_pct", fmt.Sprintf("%.2f", result.TotalReturn),
	)
	return nil
}
