package scanner

// concurrent.go — worker pool para evaluar el universo en paralelo. Cada
// símbolo son dos llamadas REST; con 200+ símbolos el ciclo secuencial
// supera el intervalo de escaneo.

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// scanConcurrent evalúa cada target con `workers` goroutines. El rate limiter
// del cliente del exchange acota la presión real sobre la API.
//
// Si workers <= 0 usa runtime.NumCPU() × 2.
func (s *Scanner) scanConcurrent(ctx context.Context, targets []domain.TickerSnapshot, workers int) []domain.ScanResult {
	if workers <= 0 {
		workers = runtime.NumCPU() * 2
	}
	if workers > len(targets) {
		workers = len(targets)
	}

	workCh := make(chan domain.TickerSnapshot, len(targets))
	resultCh := make(chan domain.ScanResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range workCh {
				if ctx.Err() != nil {
					resultCh <- domain.ScanResult{Symbol: t.Symbol, Err: ctx.Err()}
					continue
				}
				resultCh <- s.evaluate(ctx, t)
			}
		}()
	}

	for _, t := range targets {
		workCh <- t
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	results := make([]domain.ScanResult, 0, len(targets))
	for r := range resultCh {
		results = append(results, r)
	}

	slog.Debug("concurrent scan complete",
		"symbols", len(targets),
		"results", len(results),
		"workers", workers,
	)
	return results
}
