package domain

import (
	"fmt"
	"math"
)

const (
	priceTermWeight   = 2.0
	priceTermCap      = 40.0
	volumeTermWeight  = 15.0
	volumeTermCap     = 30.0
	breakoutTermValue = 30.0

	ReasonInsufficientData = "insufficient data"
	ReasonMissingTicker    = "missing ticker data"
)

// Detection es el resultado de evaluar una ventana de velas.
type Detection struct {
	Score     float64
	Reasons   []string
	Triggered bool

	PriceChange1h float64
	VolumeRatio   float64
	BreakoutScore float64
}

// MomentumInputs are the three raw features the score is built from.
type MomentumInputs struct {
	PriceChange1h float64 // (close[-1] - close[-2]) / close[-2] * 100
	VolumeRatio   float64 // volume[-1] / mean(volume[:-1])
	BreakoutScore float64 // close[-1] / max(high) * 100
}

// Detect computes the momentum score for a candle window and a ticker.
//
// Fewer than cfg.LookbackCandles() candles, or a ticker without a price, is a
// normal no-signal outcome (Triggered=false with an explanatory reason), never
// an error. The last LookbackCandles() candles of the window are used.
func Detect(candles []Candle, ticker TickerSnapshot, cfg MomentumConfig) Detection {
	lookback := cfg.LookbackCandles()
	if len(candles) < lookback || lookback < 2 {
		return Detection{Reasons: []string{ReasonInsufficientData}}
	}
	if ticker.LastPrice <= 0 {
		return Detection{Reasons: []string{ReasonMissingTicker}}
	}

	window := candles[len(candles)-lookback:]
	in, ok := ExtractInputs(window)
	if !ok {
		return Detection{Reasons: []string{ReasonInsufficientData}}
	}

	return ScoreInputs(in, cfg)
}

// ExtractInputs calcula price_change_1h, volume_ratio y breakout_score.
// Devuelve false si el penúltimo cierre o el máximo son cero.
func ExtractInputs(window []Candle) (MomentumInputs, bool) {
	n := len(window)
	if n < 2 {
		return MomentumInputs{}, false
	}
	last, prev := window[n-1], window[n-2]
	if prev.Close <= 0 {
		return MomentumInputs{}, false
	}

	var volSum float64
	for _, c := range window[:n-1] {
		volSum += c.Volume
	}
	volMean := volSum / float64(n-1)

	var ratio float64
	if volMean > 0 {
		ratio = last.Volume / volMean
	}

	maxHigh := 0.0
	for _, c := range window {
		maxHigh = math.Max(maxHigh, c.High)
	}
	if maxHigh <= 0 {
		return MomentumInputs{}, false
	}

	return MomentumInputs{
		PriceChange1h: (last.Close - prev.Close) / prev.Close * 100,
		VolumeRatio:   ratio,
		BreakoutScore: last.Close / maxHigh * 100,
	}, true
}

// ScoreInputs aplica los tres gates y suma los términos.
//
//	price    = min(pc*2, 40)          si pc >= min_price_1h
//	volume   = min((vr-1)*15, 30)     si vr >= min_volume_ratio
//	breakout = 30                     si bs >= breakout_threshold
//
// Price and volume terms are floored at zero so the score never drops when
// a gate opens below 1x volume or below 0% change.
func ScoreInputs(in MomentumInputs, cfg MomentumConfig) Detection {
	d := Detection{
		PriceChange1h: in.PriceChange1h,
		VolumeRatio:   in.VolumeRatio,
		BreakoutScore: in.BreakoutScore,
	}

	if in.PriceChange1h >= cfg.MinPrice1h() {
		term := math.Max(0, math.Min(in.PriceChange1h*priceTermWeight, priceTermCap))
		d.Score += term
		d.Reasons = append(d.Reasons, fmt.Sprintf("price +%.2f%% 1h (+%.1f)", in.PriceChange1h, term))
	}

	if in.VolumeRatio >= cfg.MinVolumeRatio() {
		term := math.Max(0, math.Min((in.VolumeRatio-1)*volumeTermWeight, volumeTermCap))
		d.Score += term
		d.Reasons = append(d.Reasons, fmt.Sprintf("volume %.2fx avg (+%.1f)", in.VolumeRatio, term))
	}

	if in.BreakoutScore >= cfg.BreakoutThreshold() {
		d.Score += breakoutTermValue
		d.Reasons = append(d.Reasons, fmt.Sprintf("breakout %.1f%% of high (+%.0f)", in.BreakoutScore, breakoutTermValue))
	}

	d.Triggered = d.Score >= cfg.MinMomentumScore()
	return d
}

// PositionSize devuelve la cantidad a comprar para un precio dado.
// El nocional es min(equity × fraction, max_position_value); equity <= 0
// significa "sin límite de equity" y usa max_position_value directamente.
func PositionSize(equity, price float64, cfg MomentumConfig) float64 {
	if price <= 0 {
		return 0
	}
	notional := cfg.MaxPositionValue()
	if equity > 0 {
		notional = math.Min(equity*cfg.CapitalFraction(), notional)
	}
	if notional <= 0 {
		return 0
	}
	return notional / price
}
