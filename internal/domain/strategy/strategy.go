package strategy

import (
	"sort"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// Decider es la única función de decisión del sistema. El motor live, el
// scanner, el backtester y el optimizador reciben un Decider; ninguno
// recalcula el score por su cuenta.
type Decider interface {
	// Name devuelve el identificador único de la estrategia.
	Name() string

	// Config devuelve los parámetros validados con los que decide.
	Config() domain.MomentumConfig

	// Detect evalúa una ventana de velas y el ticker del símbolo.
	Detect(candles []domain.Candle, ticker domain.TickerSnapshot) domain.Detection

	// EvaluateExit devuelve el primer trigger de salida que dispara, o ExitNone.
	EvaluateExit(pos domain.Position, price float64, advice *domain.ExitSignal) domain.ExitReason
}

// Factory builds a Decider for a given parameter set. The optimizer uses it
// to get one Decider per grid combination.
type Factory func(cfg domain.MomentumConfig) Decider

// Registry mantiene las estrategias disponibles indexadas por nombre.
type Registry map[string]Factory

// NewRegistry crea un registry con la estrategia momentum registrada.
func NewRegistry() Registry {
	r := make(Registry)
	r.Register(MomentumName, func(cfg domain.MomentumConfig) Decider { return NewMomentum(cfg) })
	return r
}

// Register añade una estrategia al registry.
func (r Registry) Register(name string, f Factory) {
	r[name] = f
}

// Get devuelve la factory por nombre.
func (r Registry) Get(name string) (Factory, bool) {
	f, ok := r[name]
	return f, ok
}

// Names returns the registered strategy names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
