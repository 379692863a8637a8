// Package optimizer sweeps a parameter grid through the backtest engine and
// ranks the results.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sync"

	"github.com/alejandrodnm/momentumbot/internal/application/backtest"
	"github.com/alejandrodnm/momentumbot/internal/domain"
	"github.com/alejandrodnm/momentumbot/internal/metrics"
	"github.com/alejandrodnm/momentumbot/internal/ports"
)

var (
	ErrInvalidCombination = errors.New("invalid parameter combination")
	// ErrDatasetMismatch: el checkpoint pertenece a otras velas o a otro capital.
	ErrDatasetMismatch = errors.New("sweep checkpoint belongs to a different dataset")
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
	StatusResumed   = "resumed"
)

// Config del optimizador.
type Config struct {
	Workers int // 0 = NumCPU*2
	TopN    int // tamaño de cada leaderboard (0 = 10)
}

// Optimizer runs one backtest per valid combination. Each run owns its own
// simulated ledger, so combinations run in parallel on a bounded pool.
type Optimizer struct {
	cfg     Config
	engine  *backtest.Engine
	store   ports.SweepStore // opcional: checkpoints y resume
	metrics *metrics.Collectors
}

func New(cfg Config, engine *backtest.Engine, store ports.SweepStore, m *metrics.Collectors) *Optimizer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU() * 2
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	return &Optimizer{cfg: cfg, engine: engine, store: store, metrics: m}
}

// Report es el resultado de un sweep, completo o parcial.
type Report struct {
	SweepID  string
	Total    int
	Entries  []domain.SweepEntry // en orden del grid; incluye Failed
	Rejected []Rejection
	Resumed  int

	ByReturn     []domain.SweepEntry
	ByTradeCount []domain.SweepEntry
	ByAsymmetry  []domain.SweepEntry
	BySharpe     []domain.SweepEntry
}

// Failed returns the combinations that errored during evaluation.
func (r Report) Failed() []domain.SweepEntry {
	var out []domain.SweepEntry
	for _, e := range r.Entries {
		if e.Failed {
			out = append(out, e)
		}
	}
	return out
}

// Sweep evaluates every valid combination of ranges over the same candles.
// Invalid combinations are rejected before any backtest runs. Each finished
// combination is checkpointed through the SweepStore; with the same sweepID a
// later call skips what is already stored, provided the candles and capital
// match the ones the sweep started with (ErrDatasetMismatch otherwise).
// Cancellation is checked between combinations; on cancel the partial report
// is returned with ctx.Err().
func (o *Optimizer) Sweep(
	ctx context.Context,
	sweepID string,
	candles []domain.Candle,
	ranges Ranges,
	base domain.MomentumParams,
	capital float64,
) (Report, error) {
	report := Report{SweepID: sweepID}

	type job struct {
		idx int
		cfg domain.MomentumConfig
	}

	combos := ranges.Combinations(base)
	report.Total = len(combos)

	fingerprint := domain.SweepFingerprint(o.engine.Symbol(), candles, capital)
	done, err := o.loadCheckpoint(ctx, sweepID, fingerprint)
	if err != nil {
		return report, err
	}

	entries := make([]*domain.SweepEntry, len(combos))
	var jobs []job
	for i, p := range combos {
		cfg, err := domain.NewMomentumConfig(p)
		if err != nil {
			report.Rejected = append(report.Rejected, Rejection{
				Params: p,
				Err:    fmt.Errorf("%w: %w", ErrInvalidCombination, err),
			})
			o.metrics.SweepCombination(StatusRejected)
			continue
		}
		key := domain.ComboKey(cfg.Params())
		if prev, ok := done[key]; ok {
			entries[i] = &prev
			report.Resumed++
			o.metrics.SweepCombination(StatusResumed)
			continue
		}
		jobs = append(jobs, job{idx: i, cfg: cfg})
	}

	slog.Info("sweep starting",
		"sweep_id", sweepID,
		"combinations", len(combos),
		"rejected", len(report.Rejected),
		"resumed", report.Resumed,
		"to_run", len(jobs),
		"workers", o.cfg.Workers,
	)

	type result struct {
		idx   int
		entry domain.SweepEntry
	}

	workCh := make(chan job)
	resultCh := make(chan result, o.cfg.Workers)

	var wg sync.WaitGroup
	for w := 0; w < o.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range workCh {
				resultCh <- result{idx: j.idx, entry: o.evaluate(candles, j.cfg, capital)}
			}
		}()
	}

	// Alimentar el pool; se deja de alimentar al cancelar el contexto.
	go func() {
		defer close(workCh)
		for _, j := range jobs {
			if ctx.Err() != nil {
				return
			}
			select {
			case workCh <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// Checkpoint secuencial: un único escritor contra el store.
	var saveErr error
	completed := 0
	for r := range resultCh {
		e := r.entry
		entries[r.idx] = &e
		completed++
		status := StatusCompleted
		if e.Failed {
			status = StatusFailed
		}
		o.metrics.SweepCombination(status)

		if o.store != nil && saveErr == nil {
			// context.WithoutCancel: el checkpoint de trabajo ya hecho se guarda
			// aunque el sweep se haya cancelado.
			if err := o.store.SaveSweepEntry(context.WithoutCancel(ctx), sweepID, e); err != nil {
				saveErr = fmt.Errorf("optimizer.Sweep: checkpoint %s: %w", e.Key, err)
				slog.Error("sweep checkpoint failed", "sweep_id", sweepID, "err", err)
			}
		}
		if completed%100 == 0 {
			slog.Info("sweep progress", "sweep_id", sweepID, "done", completed, "of", len(jobs))
		}
	}

	for _, e := range entries {
		if e != nil {
			report.Entries = append(report.Entries, *e)
		}
	}
	o.rank(&report)

	if err := ctx.Err(); err != nil {
		slog.Warn("sweep cancelled", "sweep_id", sweepID, "completed", completed, "pending", len(jobs)-completed)
		return report, fmt.Errorf("optimizer.Sweep: %w", err)
	}
	if saveErr != nil {
		return report, saveErr
	}

	slog.Info("sweep finished",
		"sweep_id", sweepID,
		"evaluated", completed,
		"failed", len(report.Failed()),
	)
	return report, nil
}

// evaluate runs one backtest. A panic or a non-finite metric is recorded as a
// failed entry instead of aborting the sweep.
func (o *Optimizer) evaluate(candles []domain.Candle, cfg domain.MomentumConfig, capital float64) (entry domain.SweepEntry) {
	entry = domain.SweepEntry{Key: domain.ComboKey(cfg.Params()), Params: cfg.Params()}
	defer func() {
		if r := recover(); r != nil {
			entry.Failed = true
			entry.Error = fmt.Sprintf("panic: %v", r)
			entry.Result = domain.BacktestResult{}
		}
	}()

	res, err := o.engine.Run(candles, cfg, capital)
	if err != nil {
		entry.Failed = true
		entry.Error = err.Error()
		return entry
	}
	if !finite(res) {
		entry.Failed = true
		entry.Error = "non-finite metric in result"
		return entry
	}
	// Los trades individuales no se guardan en el sweep.
	res.Trades = nil
	entry.Result = res
	return entry
}

// loadCheckpoint devuelve las combinaciones ya completadas del sweep. Las
// Failed se omiten para que se vuelvan a evaluar.
func (o *Optimizer) loadCheckpoint(ctx context.Context, sweepID, fingerprint string) (map[string]domain.SweepEntry, error) {
	done := make(map[string]domain.SweepEntry)
	if o.store == nil {
		return done, nil
	}
	stored, err := o.store.GetSweepFingerprint(ctx, sweepID)
	if err != nil {
		return nil, fmt.Errorf("optimizer.Sweep: load fingerprint: %w", err)
	}
	prev, err := o.store.GetSweepEntries(ctx, sweepID)
	if err != nil {
		return nil, fmt.Errorf("optimizer.Sweep: load checkpoint: %w", err)
	}
	// sin fingerprint y con entradas no hay forma de saber de qué dataset vienen
	if stored != fingerprint && (stored != "" || len(prev) > 0) {
		return nil, fmt.Errorf("optimizer.Sweep: %s: %w (stored %q, current %q)",
			sweepID, ErrDatasetMismatch, stored, fingerprint)
	}
	if stored == "" {
		if err := o.store.SaveSweepFingerprint(ctx, sweepID, fingerprint); err != nil {
			return nil, fmt.Errorf("optimizer.Sweep: save fingerprint: %w", err)
		}
	}
	for _, e := range prev {
		if e.Failed {
			continue
		}
		done[e.Key] = e
	}
	return done, nil
}

func finite(r domain.BacktestResult) bool {
	for _, v := range []float64{
		r.TotalReturn, r.WinRate, r.AvgWin, r.AvgLoss,
		r.ProfitFactor, r.SharpeRatio, r.MaxDrawdown, r.FinalEquity,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
