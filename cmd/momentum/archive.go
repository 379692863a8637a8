package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
)

var (
	archiveSymbols []string
	archiveFrom    string
	archiveTo      string
	archiveDays    int
)

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Copy historical candles from Binance into ClickHouse",
	Long: `Downloads candles for each symbol and stores them in the ClickHouse archive
so later backtests and sweeps can run with --source clickhouse. Archiving the
same range twice leaves a single copy of each candle.`,
	RunE: runArchive,
}

func init() {
	archiveCmd.Flags().StringSliceVar(&archiveSymbols, "symbols", nil, "symbols to archive (default scanner.symbols)")
	archiveCmd.Flags().StringVar(&archiveFrom, "from", "", "start date (YYYY-MM-DD)")
	archiveCmd.Flags().StringVar(&archiveTo, "to", "", "end date inclusive (YYYY-MM-DD, default today)")
	archiveCmd.Flags().IntVar(&archiveDays, "days", 90, "days back when --from is not set")
	rootCmd.AddCommand(archiveCmd)
}

func runArchive(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	symbols := archiveSymbols
	if len(symbols) == 0 {
		symbols = cfg.Scanner.Symbols
	}
	if len(symbols) == 0 {
		return fmt.Errorf("archive: no symbols: pass --symbols or set scanner.symbols")
	}
	from, to, err := timeRange(archiveFrom, archiveTo, archiveDays)
	if err != nil {
		return err
	}

	archive, err := openArchive(ctx)
	if err != nil {
		return err
	}
	defer archive.Close()

	client := newExchange()
	interval := cfg.Momentum.Interval

	var failed int
	for _, raw := range symbols {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		candles, err := client.GetCandles(ctx, symbol, interval, from, to)
		if err != nil {
			slog.Error("archive: fetch failed", "symbol", symbol, "err", err)
			failed++
			continue
		}
		if err := archive.SaveCandles(ctx, symbol, interval, candles); err != nil {
			slog.Error("archive: save failed", "symbol", symbol, "err", err)
			failed++
			continue
		}
		slog.Info("archived", "symbol", symbol, "interval", interval, "candles", len(candles))
	}

	if failed > 0 {
		return fmt.Errorf("archive: %d of %d symbols failed", failed, len(symbols))
	}
	return nil
}
