package domain

import "time"

// Candle es una vela OHLCV. Las secuencias de velas van siempre en orden
// ascendente por OpenTime.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// TickerSnapshot is the 24h ticker for a symbol as reported by the exchange.
type TickerSnapshot struct {
	Symbol                string
	LastPrice             float64
	PriceChangePercent24h float64
	QuoteVolume24h        float64
}

// Side is the direction of a market order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderFill is the exchange response to a market order.
type OrderFill struct {
	OrderID     string
	Symbol      string
	Side        Side
	Quantity    float64
	FilledPrice float64
	Status      string
}

// TickerFromCandles builds the ticker a replay would have seen at the last
// candle of the window: last close, change and quote volume over the trailing
// `span` candles.
func TickerFromCandles(symbol string, candles []Candle, span int) TickerSnapshot {
	if len(candles) == 0 {
		return TickerSnapshot{Symbol: symbol}
	}
	if span <= 0 || span > len(candles) {
		span = len(candles)
	}
	window := candles[len(candles)-span:]
	last := window[len(window)-1]

	var quoteVol float64
	for _, c := range window {
		quoteVol += c.Close * c.Volume
	}

	var change float64
	if first := window[0].Open; first > 0 {
		change = (last.Close - first) / first * 100
	}

	return TickerSnapshot{
		Symbol:                symbol,
		LastPrice:             last.Close,
		PriceChangePercent24h: change,
		QuoteVolume24h:        quoteVol,
	}
}
