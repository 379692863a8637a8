package ports

import (
	"context"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// Notifier informa al usuario de los eventos del ciclo de vida.
type Notifier interface {
	SignalDetected(ctx context.Context, s domain.Signal) error
	PositionOpened(ctx context.Context, p domain.Position) error
	PositionClosed(ctx context.Context, t domain.Trade) error
}
