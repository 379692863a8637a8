package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig se devuelve cuando un MomentumConfig viola sus invariantes.
// Los configs inválidos se rechazan, nunca se corrigen en silencio.
var ErrInvalidConfig = errors.New("invalid momentum config")

const (
	DefaultLookbackCandles = 25
	DefaultInterval        = "1h"
	DefaultCapitalFraction = 0.95
)

// MomentumParams are the raw, unvalidated strategy parameters as they come
// from configuration files or an optimizer grid.
type MomentumParams struct {
	MinPrice1h       float64 `yaml:"min_price_1h" json:"min_price_1h"`
	MinVolumeRatio   float64 `yaml:"min_volume_ratio" json:"min_volume_ratio"`
	BreakoutThresh   float64 `yaml:"breakout_threshold" json:"breakout_threshold"`
	MinMomentumScore float64 `yaml:"min_momentum_score" json:"min_momentum_score"`
	StopLossPct      float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`
	TakeProfitPct    float64 `yaml:"take_profit_pct" json:"take_profit_pct"`
	TrailingStopPct  float64 `yaml:"trailing_stop_pct" json:"trailing_stop_pct"`
	MaxPositionValue float64 `yaml:"max_position_value" json:"max_position_value"`
	SignalTTLHours   float64 `yaml:"signal_ttl_hours" json:"signal_ttl_hours"`
	LookbackCandles  int     `yaml:"lookback_candles" json:"lookback_candles"`
	CapitalFraction  float64 `yaml:"capital_fraction" json:"capital_fraction"`
}

// MomentumConfig is the validated, immutable parameter set. The only way to
// obtain one is NewMomentumConfig; the zero value is not usable.
type MomentumConfig struct {
	p MomentumParams
}

// NewMomentumConfig validates params and returns an immutable config.
// LookbackCandles and CapitalFraction fall back to their defaults when zero.
func NewMomentumConfig(p MomentumParams) (MomentumConfig, error) {
	if p.LookbackCandles == 0 {
		p.LookbackCandles = DefaultLookbackCandles
	}
	if p.CapitalFraction == 0 {
		p.CapitalFraction = DefaultCapitalFraction
	}
	if err := p.Validate(); err != nil {
		return MomentumConfig{}, err
	}
	return MomentumConfig{p: p}, nil
}

// Validate checks every invariant and returns the first violation.
func (p MomentumParams) Validate() error {
	switch {
	case p.StopLossPct <= 0 || p.StopLossPct >= 100:
		return fmt.Errorf("%w: stop_loss_pct %.4f must be in (0, 100)", ErrInvalidConfig, p.StopLossPct)
	case p.TakeProfitPct <= 0:
		return fmt.Errorf("%w: take_profit_pct %.4f must be positive", ErrInvalidConfig, p.TakeProfitPct)
	case p.TrailingStopPct <= 0:
		return fmt.Errorf("%w: trailing_stop_pct %.4f must be positive", ErrInvalidConfig, p.TrailingStopPct)
	case p.TrailingStopPct >= p.StopLossPct:
		return fmt.Errorf("%w: trailing_stop_pct %.4f must be below stop_loss_pct %.4f",
			ErrInvalidConfig, p.TrailingStopPct, p.StopLossPct)
	case p.TakeProfitPct <= p.StopLossPct:
		return fmt.Errorf("%w: take_profit_pct %.4f must be above stop_loss_pct %.4f",
			ErrInvalidConfig, p.TakeProfitPct, p.StopLossPct)
	case p.MinMomentumScore <= 0 || p.MinMomentumScore > 100:
		return fmt.Errorf("%w: min_momentum_score %.4f must be in (0, 100]", ErrInvalidConfig, p.MinMomentumScore)
	case p.MinVolumeRatio < 0:
		return fmt.Errorf("%w: min_volume_ratio %.4f cannot be negative", ErrInvalidConfig, p.MinVolumeRatio)
	case p.BreakoutThresh <= 0 || p.BreakoutThresh > 100:
		return fmt.Errorf("%w: breakout_threshold %.4f must be in (0, 100]", ErrInvalidConfig, p.BreakoutThresh)
	case p.MaxPositionValue <= 0:
		return fmt.Errorf("%w: max_position_value %.4f must be positive", ErrInvalidConfig, p.MaxPositionValue)
	case p.SignalTTLHours <= 0:
		return fmt.Errorf("%w: signal_ttl_hours %.4f must be positive", ErrInvalidConfig, p.SignalTTLHours)
	case p.LookbackCandles < 2:
		return fmt.Errorf("%w: lookback_candles %d must be at least 2", ErrInvalidConfig, p.LookbackCandles)
	case p.CapitalFraction <= 0 || p.CapitalFraction > 1:
		return fmt.Errorf("%w: capital_fraction %.4f must be in (0, 1]", ErrInvalidConfig, p.CapitalFraction)
	}
	return nil
}

// Params returns a copy of the underlying parameters.
func (c MomentumConfig) Params() MomentumParams { return c.p }

func (c MomentumConfig) MinPrice1h() float64        { return c.p.MinPrice1h }
func (c MomentumConfig) MinVolumeRatio() float64    { return c.p.MinVolumeRatio }
func (c MomentumConfig) BreakoutThreshold() float64 { return c.p.BreakoutThresh }
func (c MomentumConfig) MinMomentumScore() float64  { return c.p.MinMomentumScore }
func (c MomentumConfig) StopLossPct() float64       { return c.p.StopLossPct }
func (c MomentumConfig) TakeProfitPct() float64     { return c.p.TakeProfitPct }
func (c MomentumConfig) TrailingStopPct() float64   { return c.p.TrailingStopPct }
func (c MomentumConfig) MaxPositionValue() float64  { return c.p.MaxPositionValue }
func (c MomentumConfig) LookbackCandles() int       { return c.p.LookbackCandles }
func (c MomentumConfig) CapitalFraction() float64   { return c.p.CapitalFraction }

// SignalTTL devuelve la vida de una señal ACTIVE como time.Duration.
func (c MomentumConfig) SignalTTL() time.Duration {
	return time.Duration(c.p.SignalTTLHours * float64(time.Hour))
}

// IsZero reports whether c was never built by NewMomentumConfig.
func (c MomentumConfig) IsZero() bool {
	return c.p.LookbackCandles == 0
}
