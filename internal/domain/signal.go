package domain

import "time"

// SignalStatus es el estado de una señal en el registro.
type SignalStatus string

const (
	SignalActive  SignalStatus = "ACTIVE"
	SignalTraded  SignalStatus = "TRADED"
	SignalExpired SignalStatus = "EXPIRED"
)

// Signal is a momentum detection that can be consumed by exactly one entry.
type Signal struct {
	ID          string
	Symbol      string
	Score       float64
	Reasons     []string
	TriggeredAt time.Time
	ExpiresAt   time.Time
	Status      SignalStatus
}

// Expired reports whether an ACTIVE signal has outlived its TTL at now.
func (s Signal) Expired(now time.Time) bool {
	return s.Status == SignalActive && !now.Before(s.ExpiresAt)
}
