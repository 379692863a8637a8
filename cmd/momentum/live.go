package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/momentumbot/internal/adapters/notify"
	"github.com/alejandrodnm/momentumbot/internal/adapters/paper"
	"github.com/alejandrodnm/momentumbot/internal/application/engine/live"
	"github.com/alejandrodnm/momentumbot/internal/application/scanner"
	"github.com/alejandrodnm/momentumbot/internal/domain"
	"github.com/alejandrodnm/momentumbot/internal/domain/strategy"
	"github.com/alejandrodnm/momentumbot/internal/metrics"
	"github.com/alejandrodnm/momentumbot/internal/ports"
)

var (
	liveOnce     bool
	liveStrategy string
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Scan the universe and trade momentum breakouts",
	Long: `Runs the live loop: every scan interval the universe is evaluated, new
signals are registered and ACTIVE signals are entered; every monitor interval
open positions are checked against their exit triggers. With exchange.paper
enabled orders are simulated against live prices.`,
	RunE: runLive,
}

func init() {
	liveCmd.Flags().BoolVar(&liveOnce, "once", false, "run one scan cycle, print it and exit")
	liveCmd.Flags().StringVar(&liveStrategy, "strategy", strategy.MomentumName, "strategy name")
	rootCmd.AddCommand(liveCmd)
}

func runLive(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	momentum, err := cfg.MomentumConfig()
	if err != nil {
		return err
	}
	factory, ok := strategy.NewRegistry().Get(liveStrategy)
	if !ok {
		return fmt.Errorf("live: unknown strategy %q (available: %v)", liveStrategy, strategy.NewRegistry().Names())
	}
	decider := factory(momentum)

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	client := newExchange()
	market, closeCache := marketData(ctx, client, m)
	defer closeCache()

	var executor ports.OrderExecutor = client
	if cfg.Exchange.Paper {
		executor = paper.NewExecutor(market, cfg.Exchange.PaperBalance, cfg.Exchange.PaperFee)
	}

	scan := scanner.New(scanner.Config{
		Interval: cfg.Momentum.Interval,
		Symbols:  cfg.Scanner.Symbols,
		Workers:  cfg.Scanner.Workers,
		Filter: scanner.FilterConfig{
			QuoteAsset:     cfg.Scanner.QuoteAsset,
			MinQuoteVolume: cfg.Scanner.MinQuoteVolume,
			MaxSymbols:     cfg.Scanner.MaxSymbols,
		},
	}, market, client, decider, m)

	console := notify.NewConsole(tableOut)
	eng := live.New(live.Config{
		ScanInterval:     cfg.ScanInterval(),
		MonitorInterval:  cfg.MonitorInterval(),
		MaxOpenPositions: cfg.Scanner.MaxOpenPositions,
	}, live.Deps{
		Decider:  decider,
		Scanner:  scan,
		Market:   market,
		Executor: executor,
		Store:    store,
		Notifier: console,
		Metrics:  m,
		Breaker:  cfg.LossBreaker(),
	})

	slog.Info("momentum starting",
		"config", configPath,
		"strategy", decider.Name(),
		"interval", cfg.Momentum.Interval,
		"paper", cfg.Exchange.Paper,
		"storage", cfg.Storage.Driver,
		"once", liveOnce,
	)

	if liveOnce {
		if err := eng.Restore(ctx); err != nil {
			return err
		}
		res, err := eng.RunOnce(ctx)
		if err != nil {
			return err
		}
		console.PrintScan(res.Results)
		slog.Info("cycle complete",
			"scanned", len(res.Results),
			"new_signals", len(res.NewSignals),
			"expired", len(res.Expired),
			"opened", len(res.Opened),
			"closed", len(res.Closed),
		)
		return nil
	}

	serveMetrics(ctx, m, func() any { return liveStatus(eng) })

	if err := eng.Run(ctx); err != nil {
		return fmt.Errorf("live: %w", err)
	}
	slog.Info("momentum stopped cleanly")
	return nil
}

// statusView es lo que devuelve /status.
type statusView struct {
	Time      time.Time         `json:"time"`
	Signals   []domain.Signal   `json:"active_signals"`
	Positions []domain.Position `json:"open_positions"`
}

func liveStatus(eng *live.Engine) statusView {
	return statusView{
		Time:      time.Now().UTC(),
		Signals:   eng.Signals.Active(),
		Positions: eng.Positions.Positions(),
	}
}
