package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func baseParams() MomentumParams {
	return MomentumParams{
		MinPrice1h:       1.5,
		MinVolumeRatio:   1.5,
		BreakoutThresh:   93,
		MinMomentumScore: 60,
		StopLossPct:      5,
		TakeProfitPct:    10,
		TrailingStopPct:  2.5,
		MaxPositionValue: 1000,
		SignalTTLHours:   4,
	}
}

func mustConfig(t *testing.T, mutate func(*MomentumParams)) MomentumConfig {
	t.Helper()
	p := baseParams()
	if mutate != nil {
		mutate(&p)
	}
	cfg, err := NewMomentumConfig(p)
	require.NoError(t, err)
	return cfg
}

// flatWindow builds n hourly candles at price 100 with volume 10.
func flatWindow(n int) []Candle {
	out := make([]Candle, n)
	for i := range out {
		out[i] = Candle{
			OpenTime: t0.Add(time.Duration(i) * time.Hour),
			Open:     100, High: 100, Low: 100, Close: 100, Volume: 10,
		}
	}
	return out
}
