package ports

import (
	"context"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// SweepStore checkpoints optimizer results one combination at a time so an
// interrupted sweep can resume.
type SweepStore interface {
	SaveSweepEntry(ctx context.Context, sweepID string, e domain.SweepEntry) error
	GetSweepEntries(ctx context.Context, sweepID string) ([]domain.SweepEntry, error)

	// SaveSweepFingerprint registra el dataset de un sweep la primera vez;
	// llamadas posteriores no lo sobrescriben.
	SaveSweepFingerprint(ctx context.Context, sweepID, fingerprint string) error
	// GetSweepFingerprint devuelve "" si el sweep no tiene fingerprint.
	GetSweepFingerprint(ctx context.Context, sweepID string) (string, error)
}
