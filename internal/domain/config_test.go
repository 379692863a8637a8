package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMomentumConfig_Defaults(t *testing.T) {
	cfg, err := NewMomentumConfig(baseParams())
	require.NoError(t, err)
	assert.Equal(t, DefaultLookbackCandles, cfg.LookbackCandles())
	assert.Equal(t, DefaultCapitalFraction, cfg.CapitalFraction())
	assert.Equal(t, 4*time.Hour, cfg.SignalTTL())
	assert.False(t, cfg.IsZero())
}

func TestNewMomentumConfig_RejectsInvalid(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*MomentumParams)
	}{
		{"trailing equal to stop", func(p *MomentumParams) { p.TrailingStopPct = p.StopLossPct }},
		{"trailing above stop", func(p *MomentumParams) { p.TrailingStopPct = 6 }},
		{"take profit equal to stop", func(p *MomentumParams) { p.TakeProfitPct = p.StopLossPct }},
		{"take profit below stop", func(p *MomentumParams) { p.TakeProfitPct = 3 }},
		{"zero stop", func(p *MomentumParams) { p.StopLossPct = 0 }},
		{"negative trailing", func(p *MomentumParams) { p.TrailingStopPct = -1 }},
		{"zero score", func(p *MomentumParams) { p.MinMomentumScore = 0 }},
		{"zero position value", func(p *MomentumParams) { p.MaxPositionValue = 0 }},
		{"zero ttl", func(p *MomentumParams) { p.SignalTTLHours = 0 }},
		{"lookback of one", func(p *MomentumParams) { p.LookbackCandles = 1 }},
		{"fraction above one", func(p *MomentumParams) { p.CapitalFraction = 1.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := baseParams()
			tc.mutate(&p)
			cfg, err := NewMomentumConfig(p)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.True(t, cfg.IsZero())
		})
	}
}

func TestNewMomentumConfig_DoesNotClamp(t *testing.T) {
	p := baseParams()
	p.TrailingStopPct = 7
	_, err := NewMomentumConfig(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trailing_stop_pct")
	assert.Equal(t, 7.0, p.TrailingStopPct)
}
