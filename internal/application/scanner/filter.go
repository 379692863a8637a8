package scanner

import (
	"sort"
	"strings"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// FilterConfig define el universo dinámico cuando no hay símbolos explícitos.
type FilterConfig struct {
	// QuoteAsset filtra por sufijo del símbolo (p.ej. "USDT").
	QuoteAsset string
	// MinQuoteVolume descarta símbolos con menos volumen 24h en quote asset.
	MinQuoteVolume float64
	// MaxSymbols limita el universo a los N más líquidos (0 = sin límite).
	MaxSymbols int
}

// Filter selecciona símbolos operables a partir de los tickers 24h.
type Filter struct {
	cfg FilterConfig
}

func NewFilter(cfg FilterConfig) *Filter {
	return &Filter{cfg: cfg}
}

// Apply devuelve los tickers que pasan el filtro, ordenados por volumen
// descendente y luego por símbolo.
func (f *Filter) Apply(tickers []domain.TickerSnapshot) []domain.TickerSnapshot {
	out := make([]domain.TickerSnapshot, 0, len(tickers))
	for _, t := range tickers {
		if f.passes(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].QuoteVolume24h != out[j].QuoteVolume24h {
			return out[i].QuoteVolume24h > out[j].QuoteVolume24h
		}
		return out[i].Symbol < out[j].Symbol
	})
	if f.cfg.MaxSymbols > 0 && len(out) > f.cfg.MaxSymbols {
		out = out[:f.cfg.MaxSymbols]
	}
	return out
}

func (f *Filter) passes(t domain.TickerSnapshot) bool {
	if t.LastPrice <= 0 {
		return false
	}
	if q := f.cfg.QuoteAsset; q != "" {
		if !strings.HasSuffix(t.Symbol, q) || len(t.Symbol) == len(q) {
			return false
		}
	}
	if f.cfg.MinQuoteVolume > 0 && t.QuoteVolume24h < f.cfg.MinQuoteVolume {
		return false
	}
	return true
}
