package binance

// orders.go — órdenes MARKET firmadas.
//
// Cada orden lleva un newClientOrderId generado una sola vez; los reintentos
// reenvían el mismo id, así que Binance rechaza el duplicado en lugar de
// ejecutar dos veces.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// codeNewOrderRejected es el código genérico de rechazo (incluye duplicados).
const codeNewOrderRejected = -2010

type orderResponse struct {
	Symbol              string `json:"symbol"`
	OrderID             int64  `json:"orderId"`
	ClientOrderID       string `json:"clientOrderId"`
	Status              string `json:"status"`
	ExecutedQty         string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
}

type exchangeInfo struct {
	Symbols []struct {
		Symbol  string `json:"symbol"`
		Filters []struct {
			FilterType string `json:"filterType"`
			StepSize   string `json:"stepSize"`
			MinQty     string `json:"minQty"`
		} `json:"filters"`
	} `json:"symbols"`
}

type lotSize struct {
	step   float64
	minQty float64
}

// filterCache guarda el LOT_SIZE por símbolo; no cambia durante una sesión.
type filterCache struct {
	mu   sync.Mutex
	lots map[string]lotSize
}

func newFilterCache() *filterCache {
	return &filterCache{lots: make(map[string]lotSize)}
}

// PlaceMarketOrder envía una orden MARKET. La cantidad se redondea hacia
// abajo al stepSize del símbolo.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (domain.OrderFill, error) {
	lot, err := c.lotSize(ctx, symbol)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("binance.PlaceMarketOrder: %w", err)
	}
	qty := roundDown(quantity, lot.step)
	if qty <= 0 || qty < lot.minQty {
		return domain.OrderFill{}, fmt.Errorf("binance.PlaceMarketOrder: %s qty %.8f below min %.8f: %w",
			symbol, quantity, lot.minQty, ErrOrderRejected)
	}

	clientID := "mb-" + uuid.NewString()[:30]
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", string(side))
	params.Set("type", "MARKET")
	params.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))
	params.Set("newClientOrderId", clientID)
	params.Set("newOrderRespType", "RESULT")

	var resp orderResponse
	if err := c.signed(ctx, "POST", "/api/v3/order", params, &resp); err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return domain.OrderFill{}, fmt.Errorf("binance.PlaceMarketOrder: %s %s: %w", side, symbol, err)
		}
		// Un reintento tras una respuesta perdida choca con el id duplicado:
		// si la orden original existe, esa es la ejecución buena.
		if apiErr.Code != codeNewOrderRejected {
			return domain.OrderFill{}, fmt.Errorf("binance.PlaceMarketOrder: %s %s: %w: %w", side, symbol, ErrOrderRejected, err)
		}
		prev, qerr := c.queryOrder(ctx, symbol, clientID)
		if qerr != nil {
			return domain.OrderFill{}, fmt.Errorf("binance.PlaceMarketOrder: %s %s: %w: %w", side, symbol, ErrOrderRejected, err)
		}
		resp = prev
	}

	executed := parseFloat(resp.ExecutedQty)
	quote := parseFloat(resp.CummulativeQuoteQty)
	if executed <= 0 || (resp.Status != "FILLED" && resp.Status != "PARTIALLY_FILLED") {
		return domain.OrderFill{}, fmt.Errorf("binance.PlaceMarketOrder: %s %s status %s: %w",
			side, symbol, resp.Status, ErrOrderRejected)
	}

	fill := domain.OrderFill{
		OrderID:     strconv.FormatInt(resp.OrderID, 10),
		Symbol:      symbol,
		Side:        side,
		Quantity:    executed,
		FilledPrice: quote / executed,
		Status:      resp.Status,
	}
	slog.Info("market order filled",
		"symbol", symbol,
		"side", side,
		"qty", fmt.Sprintf("%.8f", fill.Quantity),
		"price", fmt.Sprintf("%.4f", fill.FilledPrice),
		"client_order_id", clientID,
	)
	return fill, nil
}

func (c *Client) queryOrder(ctx context.Context, symbol, clientID string) (orderResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("origClientOrderId", clientID)
	var resp orderResponse
	if err := c.signed(ctx, "GET", "/api/v3/order", params, &resp); err != nil {
		return orderResponse{}, err
	}
	return resp, nil
}

func (c *Client) lotSize(ctx context.Context, symbol string) (lotSize, error) {
	c.filters.mu.Lock()
	lot, ok := c.filters.lots[symbol]
	c.filters.mu.Unlock()
	if ok {
		return lot, nil
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	var info exchangeInfo
	if err := c.get(ctx, "/api/v3/exchangeInfo", params, &info); err != nil {
		return lotSize{}, fmt.Errorf("exchange info %s: %w", symbol, err)
	}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		for _, f := range s.Filters {
			if f.FilterType == "LOT_SIZE" {
				lot = lotSize{step: parseFloat(f.StepSize), minQty: parseFloat(f.MinQty)}
			}
		}
	}

	c.filters.mu.Lock()
	c.filters.lots[symbol] = lot
	c.filters.mu.Unlock()
	return lot, nil
}

// roundDown trunca qty a un múltiplo de step. step 0 deja qty intacta.
func roundDown(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	n := math.Floor(qty/step + 1e-9)
	decimals := int(math.Max(0, math.Round(-math.Log10(step))))
	pow := math.Pow(10, float64(decimals))
	return math.Round(n*step*pow) / pow
}
