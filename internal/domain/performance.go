package domain

import (
	"math"
	"time"
)

const tradingYear = 365 * 24 * time.Hour

// BacktestResult resume una simulación completa (o el histórico live).
type BacktestResult struct {
	StartingCapital float64
	FinalEquity     float64
	TotalReturn     float64 // % sobre el capital inicial
	WinRate         float64 // % de trades con pnl > 0
	AvgWin          float64
	AvgLoss         float64 // <= 0
	ProfitFactor    float64
	SharpeRatio     float64
	MaxDrawdown     float64 // % del pico de equity
	TotalTrades     int
	Trades          []Trade
}

// Asymmetry returns avgWin / |avgLoss|, or 0 when either side is empty.
func (r BacktestResult) Asymmetry() float64 {
	if r.AvgWin <= 0 || r.AvgLoss >= 0 {
		return 0
	}
	return r.AvgWin / math.Abs(r.AvgLoss)
}

// HasWinsAndLosses reports whether the trade set contains both outcomes.
func (r BacktestResult) HasWinsAndLosses() bool {
	var wins, losses bool
	for _, t := range r.Trades {
		wins = wins || t.PnL > 0
		losses = losses || t.PnL < 0
	}
	return wins && losses
}

// Summarize computes every performance metric from an ordered trade list.
// span is the wall-clock period the trades were drawn from and is used to
// annualize the Sharpe ratio; span <= 0 disables annualization.
func Summarize(trades []Trade, startingCapital float64, span time.Duration) BacktestResult {
	r := BacktestResult{
		StartingCapital: startingCapital,
		FinalEquity:     startingCapital,
		TotalTrades:     len(trades),
		Trades:          trades,
	}
	if len(trades) == 0 {
		return r
	}

	var grossWin, grossLoss, net float64
	var wins, losses int
	for _, t := range trades {
		net += t.PnL
		switch {
		case t.PnL > 0:
			wins++
			grossWin += t.PnL
		case t.PnL < 0:
			losses++
			grossLoss += t.PnL
		}
	}

	r.FinalEquity = startingCapital + net
	if startingCapital > 0 {
		r.TotalReturn = net / startingCapital * 100
	}
	r.WinRate = float64(wins) / float64(len(trades)) * 100
	if wins > 0 {
		r.AvgWin = grossWin / float64(wins)
	}
	if losses > 0 {
		r.AvgLoss = grossLoss / float64(losses)
	}
	r.ProfitFactor = ProfitFactor(grossWin, grossLoss)
	r.SharpeRatio = SharpeRatio(trades, span)
	r.MaxDrawdown = MaxDrawdown(trades, startingCapital)
	return r
}

// ProfitFactor = gross win / |gross loss|; 0 when there is no loss.
func ProfitFactor(grossWin, grossLoss float64) float64 {
	if grossLoss == 0 {
		return 0
	}
	return grossWin / math.Abs(grossLoss)
}

// SharpeRatio usa la desviación muestral de pnlPct por trade, anualizada con
// sqrt(trades por año). 0 con menos de dos trades o desviación nula.
func SharpeRatio(trades []Trade, span time.Duration) float64 {
	n := len(trades)
	if n < 2 {
		return 0
	}

	var sum float64
	for _, t := range trades {
		sum += t.PnLPct
	}
	mean := sum / float64(n)

	var sq float64
	for _, t := range trades {
		d := t.PnLPct - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(n-1))
	if std == 0 || math.IsNaN(std) {
		return 0
	}

	annual := 1.0
	if span > 0 {
		perYear := float64(n) * float64(tradingYear) / float64(span)
		annual = math.Sqrt(perYear)
	}
	return mean / std * annual
}

// MaxDrawdown returns the largest peak-to-trough decline of the equity curve
// startingCapital + cumulative pnl, as a percentage of the peak.
func MaxDrawdown(trades []Trade, startingCapital float64) float64 {
	equity := startingCapital
	peak := startingCapital
	var maxDD float64
	for _, t := range trades {
		equity += t.PnL
		if equity > peak {
			peak = equity
			continue
		}
		if peak <= 0 {
			continue
		}
		if dd := (peak - equity) / peak * 100; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// TradeSpan devuelve el periodo entre la primera apertura y el último cierre.
func TradeSpan(trades []Trade) time.Duration {
	if len(trades) == 0 {
		return 0
	}
	first, last := trades[0].OpenedAt, trades[0].ClosedAt
	for _, t := range trades[1:] {
		if t.OpenedAt.Before(first) {
			first = t.OpenedAt
		}
		if t.ClosedAt.After(last) {
			last = t.ClosedAt
		}
	}
	return last.Sub(first)
}
