package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

const maxKlinesPerRequest = 1000

// rawKline es una fila de /api/v3/klines:
// [openTime, open, high, low, close, volume, closeTime, ...]
type rawKline []json.RawMessage

type rawTicker struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	QuoteVolume        string `json:"quoteVolume"`
}

// GetRecentCandles devuelve las últimas `limit` velas cerradas en orden
// ascendente. Binance incluye la vela en curso al final; se pide una más y
// se descarta si su closeTime aún no ha pasado.
func (c *Client) GetRecentCandles(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	if limit <= 0 || limit >= maxKlinesPerRequest {
		limit = maxKlinesPerRequest - 1
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit+1))

	var raw []rawKline
	if err := c.get(ctx, "/api/v3/klines", params, &raw); err != nil {
		return nil, fmt.Errorf("binance.GetRecentCandles: %s: %w", symbol, err)
	}
	raw = dropOpenKline(raw, c.now())
	if len(raw) > limit {
		raw = raw[len(raw)-limit:]
	}
	candles, err := parseKlines(raw)
	if err != nil {
		return nil, fmt.Errorf("binance.GetRecentCandles: %s: %w", symbol, err)
	}
	return candles, nil
}

// dropOpenKline quita la última fila si su closeTime (campo 6) es >= now.
func dropOpenKline(raw []rawKline, now time.Time) []rawKline {
	if len(raw) == 0 {
		return raw
	}
	last := raw[len(raw)-1]
	if len(last) < 7 {
		return raw
	}
	var closeMs int64
	if err := json.Unmarshal(last[6], &closeMs); err != nil {
		return raw
	}
	if closeMs >= now.UnixMilli() {
		return raw[:len(raw)-1]
	}
	return raw
}

// GetCandles pagina /klines entre from y to (inclusive) para replays largos.
// Como GetRecentCandles, nunca devuelve la vela en curso.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, from, to time.Time) ([]domain.Candle, error) {
	var out []domain.Candle
	cursor := from
	for cursor.Before(to) || cursor.Equal(to) {
		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("interval", interval)
		params.Set("startTime", strconv.FormatInt(cursor.UnixMilli(), 10))
		params.Set("endTime", strconv.FormatInt(to.UnixMilli(), 10))
		params.Set("limit", strconv.Itoa(maxKlinesPerRequest))

		var raw []rawKline
		if err := c.get(ctx, "/api/v3/klines", params, &raw); err != nil {
			return nil, fmt.Errorf("binance.GetCandles: %s from %s: %w", symbol, cursor.Format(time.RFC3339), err)
		}
		raw = dropOpenKline(raw, c.now())
		page, err := parseKlines(raw)
		if err != nil {
			return nil, fmt.Errorf("binance.GetCandles: %w", err)
		}
		if len(page) == 0 {
			break
		}
		out = append(out, page...)
		next := page[len(page)-1].OpenTime.Add(time.Millisecond)
		if !next.After(cursor) || len(page) < maxKlinesPerRequest {
			break
		}
		cursor = next
	}
	return out, nil
}

// GetTicker devuelve el ticker 24h de un símbolo.
func (c *Client) GetTicker(ctx context.Context, symbol string) (domain.TickerSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var raw rawTicker
	if err := c.get(ctx, "/api/v3/ticker/24hr", params, &raw); err != nil {
		return domain.TickerSnapshot{}, fmt.Errorf("binance.GetTicker: %s: %w", symbol, err)
	}
	return raw.toDomain(), nil
}

// GetAllTickers devuelve el ticker 24h de todos los símbolos (peso 80).
func (c *Client) GetAllTickers(ctx context.Context) ([]domain.TickerSnapshot, error) {
	var raw []rawTicker
	if err := c.get(ctx, "/api/v3/ticker/24hr", nil, &raw); err != nil {
		return nil, fmt.Errorf("binance.GetAllTickers: %w", err)
	}
	out := make([]domain.TickerSnapshot, 0, len(raw))
	for _, r := range raw {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (r rawTicker) toDomain() domain.TickerSnapshot {
	return domain.TickerSnapshot{
		Symbol:                r.Symbol,
		LastPrice:             parseFloat(r.LastPrice),
		PriceChangePercent24h: parseFloat(r.PriceChangePercent),
		QuoteVolume24h:        parseFloat(r.QuoteVolume),
	}
}

func parseKlines(raw []rawKline) ([]domain.Candle, error) {
	out := make([]domain.Candle, 0, len(raw))
	for i, k := range raw {
		if len(k) < 6 {
			return nil, fmt.Errorf("kline %d: expected at least 6 fields, got %d", i, len(k))
		}
		var openMs int64
		if err := json.Unmarshal(k[0], &openMs); err != nil {
			return nil, fmt.Errorf("kline %d open time: %w", i, err)
		}
		var vals [5]float64
		for j := 1; j <= 5; j++ {
			var s string
			if err := json.Unmarshal(k[j], &s); err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j, err)
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("kline %d field %d: %w", i, j, err)
			}
			vals[j-1] = v
		}
		out = append(out, domain.Candle{
			OpenTime: time.UnixMilli(openMs).UTC(),
			Open:     vals[0],
			High:     vals[1],
			Low:      vals[2],
			Close:    vals[3],
			Volume:   vals[4],
		})
	}
	return out, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
