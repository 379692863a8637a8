// Package paper simulates order execution against live prices. No order ever
// reaches the exchange.
package paper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/alejandrodnm/momentumbot/internal/domain"
	"github.com/alejandrodnm/momentumbot/internal/ports"
)

var (
	ErrInsufficientBalance = errors.New("insufficient paper balance")
	ErrNoHoldings          = errors.New("no paper holdings for symbol")
	ErrNoPrice             = errors.New("no price for symbol")
)

var _ ports.StatefulExecutor = (*Executor)(nil)

// Executor llena órdenes MARKET al lastPrice del ticker y lleva un balance
// virtual en la moneda de cotización más las cantidades por símbolo.
type Executor struct {
	prices ports.MarketDataSource
	fee    float64 // fracción, ej. 0.001 = 0.1%
	start  float64

	mu       sync.Mutex
	balance  float64
	holdings map[string]float64
}

// NewExecutor crea un executor con balance inicial y comisión por lado.
func NewExecutor(prices ports.MarketDataSource, balance, fee float64) *Executor {
	return &Executor{
		prices:   prices,
		fee:      fee,
		start:    balance,
		balance:  balance,
		holdings: make(map[string]float64),
	}
}

func (e *Executor) PlaceMarketOrder(ctx context.Context, symbol string, side domain.Side, quantity float64) (domain.OrderFill, error) {
	tk, err := e.prices.GetTicker(ctx, symbol)
	if err != nil {
		return domain.OrderFill{}, fmt.Errorf("paper.PlaceMarketOrder: %w", err)
	}
	if tk.LastPrice <= 0 {
		return domain.OrderFill{}, fmt.Errorf("paper.PlaceMarketOrder: %s: %w", symbol, ErrNoPrice)
	}
	price := tk.LastPrice

	e.mu.Lock()
	defer e.mu.Unlock()

	switch side {
	case domain.SideBuy:
		cost := price * quantity * (1 + e.fee)
		if cost > e.balance {
			return domain.OrderFill{}, fmt.Errorf("paper.PlaceMarketOrder: need $%.2f have $%.2f: %w", cost, e.balance, ErrInsufficientBalance)
		}
		e.balance -= cost
		e.holdings[symbol] += quantity
	case domain.SideSell:
		if e.holdings[symbol] < quantity*(1-1e-9) {
			return domain.OrderFill{}, fmt.Errorf("paper.PlaceMarketOrder: %s hold %.8f sell %.8f: %w",
				symbol, e.holdings[symbol], quantity, ErrNoHoldings)
		}
		e.holdings[symbol] -= quantity
		if e.holdings[symbol] <= 0 {
			delete(e.holdings, symbol)
		}
		e.balance += price * quantity * (1 - e.fee)
	default:
		return domain.OrderFill{}, fmt.Errorf("paper.PlaceMarketOrder: unknown side %q", side)
	}

	fill := domain.OrderFill{
		OrderID:     "paper-" + uuid.NewString(),
		Symbol:      symbol,
		Side:        side,
		Quantity:    quantity,
		FilledPrice: price,
		Status:      "FILLED",
	}
	slog.Info("[PAPER] order filled",
		"symbol", symbol,
		"side", side,
		"qty", fmt.Sprintf("%.8f", quantity),
		"price", fmt.Sprintf("%.4f", price),
		"balance", fmt.Sprintf("$%.2f", e.balance),
	)
	return fill, nil
}

// Balance devuelve el saldo virtual en la moneda de cotización.
func (e *Executor) Balance() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// Holding returns the simulated quantity held for symbol.
func (e *Executor) Holding(symbol string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.holdings[symbol]
}

// RestoreState rebuilds balance and holdings after a restart: the starting
// balance plus the net of every closed trade, minus the cost of the positions
// still open, whose quantities become holdings again.
func (e *Executor) RestoreState(trades []domain.Trade, open []domain.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.balance = e.start
	e.holdings = make(map[string]float64)
	for _, t := range trades {
		e.balance += t.ExitPrice*t.Quantity*(1-e.fee) - t.EntryPrice*t.Quantity*(1+e.fee)
	}
	for _, p := range open {
		e.balance -= p.EntryPrice * p.Quantity * (1 + e.fee)
		e.holdings[p.Symbol] += p.Quantity
	}
	slog.Info("[PAPER] state restored",
		"trades", len(trades),
		"open_positions", len(open),
		"balance", fmt.Sprintf("$%.2f", e.balance),
	)
}
