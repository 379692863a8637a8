package optimizer

import (
	"fmt"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// Ranges lista los valores a probar por parámetro. Un rango vacío usa el
// valor del config base.
type Ranges struct {
	MinPrice1h        []float64 `yaml:"min_price_1h"`
	MinVolumeRatio    []float64 `yaml:"min_volume_ratio"`
	BreakoutThreshold []float64 `yaml:"breakout_threshold"`
	MinMomentumScore  []float64 `yaml:"min_momentum_score"`
	StopLossPct       []float64 `yaml:"stop_loss_pct"`
	TakeProfitPct     []float64 `yaml:"take_profit_pct"`
	TrailingStopPct   []float64 `yaml:"trailing_stop_pct"`
	MaxPositionValue  []float64 `yaml:"max_position_value"`
	SignalTTLHours    []float64 `yaml:"signal_ttl_hours"`
	LookbackCandles   []int     `yaml:"lookback_candles"`
}

type axis struct {
	values []float64
	set    func(*domain.MomentumParams, float64)
}

func (r Ranges) axes(base domain.MomentumParams) []axis {
	or := func(vals []float64, def float64) []float64 {
		if len(vals) == 0 {
			return []float64{def}
		}
		return vals
	}
	lookback := make([]float64, 0, len(r.LookbackCandles))
	for _, v := range r.LookbackCandles {
		lookback = append(lookback, float64(v))
	}

	return []axis{
		{or(r.MinPrice1h, base.MinPrice1h), func(p *domain.MomentumParams, v float64) { p.MinPrice1h = v }},
		{or(r.MinVolumeRatio, base.MinVolumeRatio), func(p *domain.MomentumParams, v float64) { p.MinVolumeRatio = v }},
		{or(r.BreakoutThreshold, base.BreakoutThresh), func(p *domain.MomentumParams, v float64) { p.BreakoutThresh = v }},
		{or(r.MinMomentumScore, base.MinMomentumScore), func(p *domain.MomentumParams, v float64) { p.MinMomentumScore = v }},
		{or(r.StopLossPct, base.StopLossPct), func(p *domain.MomentumParams, v float64) { p.StopLossPct = v }},
		{or(r.TakeProfitPct, base.TakeProfitPct), func(p *domain.MomentumParams, v float64) { p.TakeProfitPct = v }},
		{or(r.TrailingStopPct, base.TrailingStopPct), func(p *domain.MomentumParams, v float64) { p.TrailingStopPct = v }},
		{or(r.MaxPositionValue, base.MaxPositionValue), func(p *domain.MomentumParams, v float64) { p.MaxPositionValue = v }},
		{or(r.SignalTTLHours, base.SignalTTLHours), func(p *domain.MomentumParams, v float64) { p.SignalTTLHours = v }},
		{or(lookback, float64(base.LookbackCandles)), func(p *domain.MomentumParams, v float64) { p.LookbackCandles = int(v) }},
	}
}

// Size devuelve el número de combinaciones del producto cartesiano.
func (r Ranges) Size(base domain.MomentumParams) int {
	n := 1
	for _, a := range r.axes(base) {
		n *= len(a.values)
	}
	return n
}

// Combinations enumerates the Cartesian product in a fixed order: the last
// parameter varies fastest.
func (r Ranges) Combinations(base domain.MomentumParams) []domain.MomentumParams {
	axes := r.axes(base)
	out := make([]domain.MomentumParams, 0, r.Size(base))

	var walk func(i int, cur domain.MomentumParams)
	walk = func(i int, cur domain.MomentumParams) {
		if i == len(axes) {
			out = append(out, cur)
			return
		}
		for _, v := range axes[i].values {
			next := cur
			axes[i].set(&next, v)
			walk(i+1, next)
		}
	}
	walk(0, base)
	return out
}

// Rejection es una combinación descartada antes de ejecutar el backtest.
type Rejection struct {
	Params domain.MomentumParams
	Err    error
}

func (r Rejection) String() string {
	return fmt.Sprintf("%s: %v", domain.ComboKey(r.Params), r.Err)
}
