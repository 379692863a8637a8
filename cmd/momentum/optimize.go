package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/alejandrodnm/momentumbot/internal/adapters/notify"
	"github.com/alejandrodnm/momentumbot/internal/application/backtest"
	"github.com/alejandrodnm/momentumbot/internal/application/optimizer"
	"github.com/alejandrodnm/momentumbot/internal/metrics"
)

var (
	optFlags     replayFlags
	optResume    string
	optLatest    bool
	optWorkers   int
	optTopN      int
	optNoPersist bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Sweep strategy parameters over historical candles",
	Long: `Runs one backtest per combination of the optimizer.ranges grid over the same
candles and prints leaderboards by total return, trade count, win/loss
asymmetry and Sharpe ratio. Every finished combination is checkpointed, so an
interrupted sweep continues with --resume <sweep-id> or --resume-latest.`,
	RunE: runOptimize,
}

func init() {
	optFlags.register(optimizeCmd)
	optimizeCmd.Flags().StringVar(&optResume, "resume", "", "resume the sweep with this id")
	optimizeCmd.Flags().BoolVar(&optLatest, "resume-latest", false, "resume the most recently checkpointed sweep")
	optimizeCmd.Flags().IntVar(&optWorkers, "workers", 0, "parallel backtests (default optimizer.workers)")
	optimizeCmd.Flags().IntVar(&optTopN, "top", 0, "leaderboard size (default optimizer.top_n)")
	optimizeCmd.Flags().BoolVar(&optNoPersist, "no-checkpoint", false, "do not persist sweep progress")
	rootCmd.AddCommand(optimizeCmd)
}

func runOptimize(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	base := cfg.Momentum.MomentumParams
	candles, err := optFlags.loadCandles(cmd)
	if err != nil {
		return err
	}

	var checkpoints botStore
	if !optNoPersist {
		checkpoints, err = openStore(ctx)
		if err != nil {
			return err
		}
		defer checkpoints.Close()
	}

	sweepID, err := resolveSweepID(ctx, checkpoints)
	if err != nil {
		return err
	}

	workers := cfg.Optimizer.Workers
	if optWorkers > 0 {
		workers = optWorkers
	}
	topN := cfg.Optimizer.TopN
	if optTopN > 0 {
		topN = optTopN
	}

	ranges := optimizer.Ranges(cfg.Optimizer.Ranges)
	symbol := strings.ToUpper(optFlags.symbol)
	slog.Info("sweep starting",
		"sweep_id", sweepID,
		"symbol", symbol,
		"combinations", ranges.Size(base),
		"workers", workers,
		"checkpoint", checkpoints != nil,
	)

	m := metrics.New()
	serveMetrics(ctx, m, nil)

	// checkpoints nil (interfaz nil) desactiva el resume.
	opt := optimizer.New(optimizer.Config{Workers: workers, TopN: topN},
		backtest.NewEngine(symbol, nil), checkpoints, m)

	report, sweepErr := opt.Sweep(ctx, sweepID, candles, ranges, base, optFlags.startingCapital())
	if errors.Is(sweepErr, optimizer.ErrDatasetMismatch) {
		return fmt.Errorf("optimize: sweep %s was run on other candles or capital, start a new sweep without --resume: %w",
			sweepID, sweepErr)
	}

	rejected := make([]string, len(report.Rejected))
	for i, r := range report.Rejected {
		rejected[i] = r.String()
	}
	console := notify.NewConsole(tableOut)
	console.PrintSweepSummary(notify.SweepSummary{
		SweepID:  report.SweepID,
		Total:    report.Total,
		Resumed:  report.Resumed,
		Rejected: rejected,
		Failed:   report.Failed(),
	})
	console.PrintLeaderboard("TOP BY TOTAL RETURN", report.ByReturn)
	console.PrintLeaderboard("TOP BY TRADE COUNT", report.ByTradeCount)
	console.PrintLeaderboard("TOP BY WIN/LOSS ASYMMETRY", report.ByAsymmetry)
	console.PrintLeaderboard("TOP BY SHARPE", report.BySharpe)

	if errors.Is(sweepErr, context.Canceled) {
		slog.Warn("sweep interrupted, partial results shown", "sweep_id", sweepID,
			"resume", fmt.Sprintf("%s optimize --resume %s", appName, sweepID))
		return nil
	}
	if sweepErr != nil {
		return fmt.Errorf("optimize: %w", sweepErr)
	}
	slog.Info("sweep complete", "sweep_id", sweepID, "evaluated", len(report.Entries))
	return nil
}

// resolveSweepID elige el id del sweep: --resume, --resume-latest o uno nuevo.
func resolveSweepID(ctx context.Context, store botStore) (string, error) {
	switch {
	case optResume != "":
		return optResume, nil
	case optLatest:
		if store == nil {
			return "", errors.New("optimize: --resume-latest needs checkpoints enabled")
		}
		id, err := store.LatestSweepID(ctx)
		if err != nil {
			return "", fmt.Errorf("optimize: no sweep to resume: %w", err)
		}
		return id, nil
	default:
		return uuid.NewString(), nil
	}
}
