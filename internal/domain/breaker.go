package domain

import (
	"sync"
	"time"
)

// LossBreaker pausa las entradas nuevas tras una racha de pérdidas y las
// bloquea del todo si el PnL realizado cae por debajo de MaxRealizedLoss.
// Las salidas nunca se bloquean. El zero value no pausa nunca.
type LossBreaker struct {
	MaxLosses       int           // pérdidas seguidas que abren la pausa (0 = off)
	Cooldown        time.Duration // duración de la pausa
	MaxRealizedLoss float64       // PnL realizado mínimo en $, negativo (0 = off)

	mu                sync.Mutex
	consecutiveLosses int
	cooldownUntil     time.Time
	realizedPnL       float64
	tripped           bool
	reason            string
}

// Allow reports whether a new position may be opened at now.
func (b *LossBreaker) Allow(now time.Time) bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.tripped && !now.Before(b.cooldownUntil)
}

// Record acumula el PnL de un trade cerrado. Un PnL de 0 cuenta como pérdida.
func (b *LossBreaker) Record(t Trade, now time.Time) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.realizedPnL += t.PnL
	if t.PnL > 0 {
		b.consecutiveLosses = 0
		return
	}

	b.consecutiveLosses++
	if b.MaxLosses > 0 && b.consecutiveLosses >= b.MaxLosses {
		b.cooldownUntil = now.Add(b.Cooldown)
		b.consecutiveLosses = 0
		b.reason = "consecutive losses"
	}
	if b.MaxRealizedLoss < 0 && b.realizedPnL <= b.MaxRealizedLoss {
		b.tripped = true
		b.reason = "max realized loss exceeded"
	}
}

// Restore seeds realized PnL from trades loaded at startup, oldest first.
func (b *LossBreaker) Restore(trades []Trade, now time.Time) {
	for _, t := range trades {
		b.Record(t, now)
	}
	if b != nil {
		b.mu.Lock()
		// una racha antigua no debe pausar el arranque
		b.cooldownUntil = time.Time{}
		b.mu.Unlock()
	}
}

// Reason devuelve por qué está pausado, o "" si no lo está.
func (b *LossBreaker) Reason(now time.Time) string {
	if b == nil || b.Allow(now) {
		return ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

// RealizedPnL devuelve el PnL acumulado desde el arranque.
func (b *LossBreaker) RealizedPnL() float64 {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.realizedPnL
}
