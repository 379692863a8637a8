// Package engine holds what the live loop shares with its collaborators.
package engine

import (
	"context"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// ScannerService es la interfaz mínima que el motor live necesita del scanner.
// Desacopla live.Engine de *scanner.Scanner concreto.
type ScannerService interface {
	Scan(ctx context.Context) ([]domain.ScanResult, error)
}

// PriceIndex indexa por símbolo el precio de referencia de un ciclo,
// descartando resultados con error o sin precio.
func PriceIndex(results []domain.ScanResult) map[string]float64 {
	out := make(map[string]float64, len(results))
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		if p := r.Price(); p > 0 {
			out[r.Symbol] = p
		}
	}
	return out
}
