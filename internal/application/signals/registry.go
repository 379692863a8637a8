// Package signals tracks momentum signals from detection until they are
// traded or expire.
package signals

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

var ErrSignalNotActive = errors.New("signal is not active")

// Registry guarantees at most one ACTIVE signal per symbol. All transitions
// happen under a single mutex, so TryCreate is an atomic check-and-insert.
type Registry struct {
	mu     sync.Mutex
	active map[string]domain.Signal // symbol → señal ACTIVE
	now    func() time.Time
	newID  func() string
}

// Option configura el Registry.
type Option func(*Registry)

// WithClock sustituye time.Now (backtests usan el tiempo de la vela).
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithIDGenerator sustituye uuid.NewString.
func WithIDGenerator(newID func() string) Option {
	return func(r *Registry) { r.newID = newID }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		active: make(map[string]domain.Signal),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// TryCreate registra una nueva señal ACTIVE para symbol. Devuelve false si
// ya existe una ACTIVE sin caducar. Una ACTIVE caducada se expira en el acto
// y se devuelve en expired para que el caller la persista.
func (r *Registry) TryCreate(symbol string, score float64, reasons []string, cfg domain.MomentumConfig) (sig domain.Signal, expired *domain.Signal, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if cur, exists := r.active[symbol]; exists {
		if !cur.Expired(now) {
			return domain.Signal{}, nil, false
		}
		cur.Status = domain.SignalExpired
		expired = &cur
		delete(r.active, symbol)
	}

	sig = domain.Signal{
		ID:          r.newID(),
		Symbol:      symbol,
		Score:       score,
		Reasons:     append([]string(nil), reasons...),
		TriggeredAt: now,
		ExpiresAt:   now.Add(cfg.SignalTTL()),
		Status:      domain.SignalActive,
	}
	r.active[symbol] = sig
	return sig, expired, true
}

// MarkTraded moves the ACTIVE signal for symbol to TRADED. It is the only
// way a signal leaves the registry into a position entry.
func (r *Registry) MarkTraded(signalID, symbol string) (domain.Signal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.active[symbol]
	if !ok || cur.ID != signalID {
		return domain.Signal{}, fmt.Errorf("signals.MarkTraded: %s %s: %w", symbol, signalID, ErrSignalNotActive)
	}
	if cur.Expired(r.now()) {
		return domain.Signal{}, fmt.Errorf("signals.MarkTraded: %s %s expired at %s: %w",
			symbol, signalID, cur.ExpiresAt.Format(time.RFC3339), ErrSignalNotActive)
	}
	cur.Status = domain.SignalTraded
	delete(r.active, symbol)
	return cur, nil
}

// Sweep expira todas las señales ACTIVE cuyo TTL ya pasó y las devuelve
// ordenadas por símbolo.
func (r *Registry) Sweep() []domain.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var out []domain.Signal
	for sym, s := range r.active {
		if !s.Expired(now) {
			continue
		}
		s.Status = domain.SignalExpired
		out = append(out, s)
		delete(r.active, sym)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Get devuelve la señal ACTIVE del símbolo, si existe.
func (r *Registry) Get(symbol string) (domain.Signal, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.active[symbol]
	return s, ok
}

// Active returns a snapshot of every ACTIVE signal sorted by symbol.
func (r *Registry) Active() []domain.Signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Signal, 0, len(r.active))
	for _, s := range r.active {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Restore carga señales persistidas tras un reinicio. Ignora las que no
// están ACTIVE y, por símbolo, conserva la más reciente.
func (r *Registry) Restore(sigs []domain.Signal) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range sigs {
		if s.Status != domain.SignalActive {
			continue
		}
		if cur, ok := r.active[s.Symbol]; ok && !s.TriggeredAt.After(cur.TriggeredAt) {
			continue
		}
		r.active[s.Symbol] = s
		n++
	}
	return n
}
