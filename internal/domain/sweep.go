package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SweepEntry es el resultado de una combinación del grid del optimizador.
// Failed marca combinaciones que no pudieron evaluarse; nunca entran en
// los leaderboards.
type SweepEntry struct {
	Key    string
	Params MomentumParams
	Result BacktestResult
	Failed bool
	Error  string
}

// ComboKey identifica de forma estable una combinación de parámetros.
func ComboKey(p MomentumParams) string {
	vals := []float64{
		p.MinPrice1h, p.MinVolumeRatio, p.BreakoutThresh, p.MinMomentumScore,
		p.StopLossPct, p.TakeProfitPct, p.TrailingStopPct, p.MaxPositionValue,
		p.SignalTTLHours, float64(p.LookbackCandles), p.CapitalFraction,
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(parts, "|")
}

func (e SweepEntry) String() string {
	if e.Failed {
		return fmt.Sprintf("%s FAILED: %s", e.Key, e.Error)
	}
	return fmt.Sprintf("%s return=%.2f%% trades=%d", e.Key, e.Result.TotalReturn, e.Result.TotalTrades)
}

// SweepFingerprint identifica el dataset de un sweep: símbolo, intervalo,
// rango y número de velas, y capital inicial. Un checkpoint solo se reanuda
// si el fingerprint coincide.
func SweepFingerprint(symbol string, candles []Candle, capital float64) string {
	var step time.Duration
	var first, last int64
	if n := len(candles); n > 0 {
		first = candles[0].OpenTime.UnixMilli()
		last = candles[n-1].OpenTime.UnixMilli()
		if n > 1 {
			step = candles[1].OpenTime.Sub(candles[0].OpenTime)
		}
	}
	return fmt.Sprintf("%s|%s|%d|%d|%d|%s",
		strings.ToUpper(symbol), step, first, last, len(candles),
		strconv.FormatFloat(capital, 'g', -1, 64))
}
