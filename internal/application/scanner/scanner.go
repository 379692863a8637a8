package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/momentumbot/internal/domain"
	"github.com/alejandrodnm/momentumbot/internal/domain/strategy"
	"github.com/alejandrodnm/momentumbot/internal/metrics"
	"github.com/alejandrodnm/momentumbot/internal/ports"
)

// ErrEmptyUniverse se devuelve cuando ni la lista explícita ni el filtro
// dejan símbolos que escanear.
var ErrEmptyUniverse = errors.New("scanner: empty universe")

// Config contiene la configuración del scanner.
type Config struct {
	Interval string   // intervalo de vela, p.ej. "1h"
	Symbols  []string // universo explícito; vacío = universo dinámico
	Filter   FilterConfig
	Workers  int // goroutines para el escaneo (0 = NumCPU*2)
}

// Scanner evalúa el universo con el Decider inyectado. No abre posiciones:
// eso es trabajo del motor live.
type Scanner struct {
	cfg      Config
	data     ports.MarketDataSource
	universe ports.UniverseProvider
	decider  strategy.Decider
	filter   *Filter
	metrics  *metrics.Collectors
}

// New crea un Scanner. universe puede ser nil si cfg.Symbols no está vacío.
func New(
	cfg Config,
	data ports.MarketDataSource,
	universe ports.UniverseProvider,
	decider strategy.Decider,
	m *metrics.Collectors,
) *Scanner {
	if cfg.Interval == "" {
		cfg.Interval = domain.DefaultInterval
	}
	return &Scanner{
		cfg:      cfg,
		data:     data,
		universe: universe,
		decider:  decider,
		filter:   NewFilter(cfg.Filter),
		metrics:  m,
	}
}

// Universe devuelve los símbolos a escanear este ciclo. Con símbolos
// explícitos el ticker va vacío y se pide por símbolo durante el escaneo.
func (s *Scanner) Universe(ctx context.Context) ([]domain.TickerSnapshot, error) {
	if len(s.cfg.Symbols) > 0 {
		out := make([]domain.TickerSnapshot, len(s.cfg.Symbols))
		for i, sym := range s.cfg.Symbols {
			out[i] = domain.TickerSnapshot{Symbol: sym}
		}
		return out, nil
	}
	if s.universe == nil {
		return nil, fmt.Errorf("scanner.Universe: no symbols and no universe provider: %w", ErrEmptyUniverse)
	}

	tickers, err := s.universe.GetAllTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("scanner.Universe: fetch tickers: %w", err)
	}
	filtered := s.filter.Apply(tickers)
	if len(filtered) == 0 {
		return nil, fmt.Errorf("scanner.Universe: %d tickers, none passed filter: %w", len(tickers), ErrEmptyUniverse)
	}
	return filtered, nil
}

// Scan ejecuta un ciclo completo: universo → evaluación concurrente → ranking.
// Los fallos por símbolo van en ScanResult.Err, no abortan el ciclo.
func (s *Scanner) Scan(ctx context.Context) ([]domain.ScanResult, error) {
	start := time.Now()

	targets, err := s.Universe(ctx)
	if err != nil {
		return nil, err
	}

	results := s.scanConcurrent(ctx, targets, s.cfg.Workers)
	rank(results)

	failed, triggered := 0, 0
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Detection.Triggered:
			triggered++
		}
	}
	s.metrics.ScanCompleted(time.Since(start))

	slog.Info("scan cycle complete",
		"symbols", len(results),
		"triggered", triggered,
		"failed", failed,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return results, ctx.Err()
}

// evaluate descarga velas y ticker de un símbolo y aplica el Decider.
func (s *Scanner) evaluate(ctx context.Context, t domain.TickerSnapshot) domain.ScanResult {
	res := domain.ScanResult{Symbol: t.Symbol, Ticker: t}
	lookback := s.decider.Config().LookbackCandles()

	candles, err := s.data.GetRecentCandles(ctx, t.Symbol, s.cfg.Interval, lookback)
	if err != nil {
		slog.Debug("fetch candles failed", "symbol", t.Symbol, "err", err)
		res.Err = fmt.Errorf("candles: %w", err)
		return res
	}
	if n := len(candles); n > 0 {
		res.LastClose = candles[n-1].Close
	}

	if t.LastPrice <= 0 {
		ticker, err := s.data.GetTicker(ctx, t.Symbol)
		if err != nil {
			slog.Debug("fetch ticker failed", "symbol", t.Symbol, "err", err)
			res.Err = fmt.Errorf("ticker: %w", err)
			return res
		}
		res.Ticker = ticker
	}

	res.Detection = s.decider.Detect(candles, res.Ticker)
	return res
}

// rank ordena: disparadas primero, luego por score descendente y símbolo.
func rank(results []domain.ScanResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Detection.Triggered != b.Detection.Triggered {
			return a.Detection.Triggered
		}
		if a.Detection.Score != b.Detection.Score {
			return a.Detection.Score > b.Detection.Score
		}
		return a.Symbol < b.Symbol
	})
}
