// Package position implements the position lifecycle NONE → OPEN → CLOSED
// on top of a single open-position-per-symbol index.
package position

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/momentumbot/internal/domain"
	"github.com/alejandrodnm/momentumbot/internal/domain/strategy"
)

var (
	ErrPositionExists  = errors.New("position already open for symbol")
	ErrPositionClosed  = errors.New("position already closed")
	ErrNotFound        = errors.New("position not found")
	ErrSignalNotTraded = errors.New("signal must be TRADED before opening a position")
	ErrInvalidFill     = errors.New("invalid entry price or quantity")
)

// Manager owns every OPEN position. Open, Tick and Close serialize on one
// mutex; Close is a compare-and-set on the position status.
type Manager struct {
	decider strategy.Decider

	mu       sync.Mutex
	open     map[string]*domain.Position // symbol → OPEN
	reserved map[string]bool             // símbolos con entrada en curso

	now   func() time.Time
	newID func() string
}

// Option configura el Manager.
type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// NewManager crea el manager. Las salidas se evalúan siempre con decider.
func NewManager(decider strategy.Decider, opts ...Option) *Manager {
	m := &Manager{
		decider:  decider,
		open:     make(map[string]*domain.Position),
		reserved: make(map[string]bool),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Reserve claims symbol for an entry in progress. While reserved, other
// Reserve calls fail with ErrPositionExists and Count includes it.
// The returned release must be called once the entry succeeded or failed.
func (m *Manager) Reserve(symbol string) (release func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.open[symbol]; ok || m.reserved[symbol] {
		return nil, fmt.Errorf("position.Reserve: %s: %w", symbol, ErrPositionExists)
	}
	m.reserved[symbol] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.reserved, symbol)
			m.mu.Unlock()
		})
	}, nil
}

// Open registra una posición OPEN para una señal ya TRADED.
// predictedExit sustituye al take-profit si está por encima del stop.
func (m *Manager) Open(sig domain.Signal, entryPrice, quantity, predictedExit float64) (domain.Position, error) {
	if sig.Status != domain.SignalTraded {
		return domain.Position{}, fmt.Errorf("position.Open: %s signal %s is %s: %w", sig.Symbol, sig.ID, sig.Status, ErrSignalNotTraded)
	}
	if entryPrice <= 0 || quantity <= 0 {
		return domain.Position{}, fmt.Errorf("position.Open: %s price=%.8f qty=%.8f: %w", sig.Symbol, entryPrice, quantity, ErrInvalidFill)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.open[sig.Symbol]; ok {
		return domain.Position{}, fmt.Errorf("position.Open: %s: %w", sig.Symbol, ErrPositionExists)
	}

	p := domain.NewPosition(m.newID(), sig, entryPrice, quantity, predictedExit, m.decider.Config(), m.now())
	m.open[sig.Symbol] = &p
	return p, nil
}

// Tick registra una observación de precio. Actualiza HighestPrice y evalúa
// los triggers de salida; no cierra la posición. ExitNone = seguir abierta.
func (m *Manager) Tick(symbol string, price float64, advice *domain.ExitSignal) (domain.Position, domain.ExitReason, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.open[symbol]
	if !ok {
		return domain.Position{}, domain.ExitNone, fmt.Errorf("position.Tick: %s: %w", symbol, ErrNotFound)
	}
	if price <= 0 {
		return *p, domain.ExitNone, nil
	}
	p.Observe(price)
	return *p, m.decider.EvaluateExit(*p, price, advice), nil
}

// Close commits OPEN → CLOSED after the exit order has been filled. Only the
// first caller for a given position succeeds; later calls get
// ErrPositionClosed and have no effect.
func (m *Manager) Close(positionID, symbol string, exitPrice float64, reason domain.ExitReason) (domain.Position, domain.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.open[symbol]
	if !ok || p.ID != positionID || p.Status != domain.PositionOpen {
		return domain.Position{}, domain.Trade{}, fmt.Errorf("position.Close: %s %s: %w", symbol, positionID, ErrPositionClosed)
	}

	p.Status = domain.PositionClosed
	p.ExitPrice = exitPrice
	p.ExitReason = reason
	p.ClosedAt = m.now()
	delete(m.open, symbol)

	closed := *p
	return closed, domain.TradeFromPosition(m.newID(), closed), nil
}

// CloseAll cierra a precio de mercado todas las posiciones abiertas con
// la razón dada. Lo usa el backtest al final de los datos (END_OF_DATA).
func (m *Manager) CloseAll(prices map[string]float64, reason domain.ExitReason) []domain.Trade {
	var trades []domain.Trade
	for _, p := range m.Positions() {
		price, ok := prices[p.Symbol]
		if !ok {
			continue
		}
		if _, t, err := m.Close(p.ID, p.Symbol, price, reason); err == nil {
			trades = append(trades, t)
		}
	}
	return trades
}

// Get devuelve la posición OPEN del símbolo.
func (m *Manager) Get(symbol string) (domain.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.open[symbol]
	if !ok {
		return domain.Position{}, false
	}
	return *p, true
}

// Positions returns a snapshot of every OPEN position sorted by symbol.
func (m *Manager) Positions() []domain.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Position, 0, len(m.open))
	for _, p := range m.open {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Count returns the number of OPEN positions plus entries in progress.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open) + len(m.reserved)
}

// Restore reloads OPEN positions after a restart. A symbol already in the
// index is skipped.
func (m *Manager) Restore(positions []domain.Position) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range positions {
		if p.Status != domain.PositionOpen {
			continue
		}
		if _, ok := m.open[p.Symbol]; ok {
			continue
		}
		p := p
		m.open[p.Symbol] = &p
		n++
	}
	return n
}
