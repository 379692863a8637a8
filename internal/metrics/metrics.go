// Package metrics exposes the bot's Prometheus collectors. Every method is
// safe on a nil *Collectors, so components can run without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "momentumbot"

// Collectors holds every metric the bot reports.
type Collectors struct {
	Registry *prometheus.Registry

	ScanDuration   prometheus.Histogram
	ScansTotal     prometheus.Counter
	SignalsTotal   *prometheus.CounterVec // status: created, expired, traded
	EntriesTotal   prometheus.Counter
	ExitsTotal     *prometheus.CounterVec // reason
	OrderFailures  *prometheus.CounterVec // side
	OpenPositions  prometheus.Gauge
	RealizedPnL    prometheus.Counter
	RealizedLosses prometheus.Counter
	SweepCombos    *prometheus.CounterVec // status
	CacheRequests  *prometheus.CounterVec // result: hit, miss
}

// New registers all collectors on a fresh registry.
func New() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),

		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Duration of one universe scan",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		ScansTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Universe scans completed",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Signal transitions by resulting status",
		}, []string{"status"}),
		EntriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_total",
			Help:      "Positions opened",
		}),
		ExitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exits_total",
			Help:      "Positions closed by exit reason",
		}, []string{"reason"}),
		OrderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_failures_total",
			Help:      "Market orders that failed by side",
		}, []string{"side"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_positions",
			Help:      "Positions currently OPEN",
		}),
		RealizedPnL: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realized_profit_usd_total",
			Help:      "Sum of positive realized PnL",
		}),
		RealizedLosses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realized_loss_usd_total",
			Help:      "Sum of absolute realized losses",
		}),
		SweepCombos: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_combinations_total",
			Help:      "Optimizer combinations by status",
		}, []string{"status"}),
		CacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candle_cache_requests_total",
			Help:      "Candle cache lookups by result",
		}, []string{"result"}),
	}

	c.Registry.MustRegister(
		c.ScanDuration, c.ScansTotal, c.SignalsTotal, c.EntriesTotal, c.ExitsTotal,
		c.OrderFailures, c.OpenPositions, c.RealizedPnL, c.RealizedLosses,
		c.SweepCombos, c.CacheRequests,
	)
	return c
}

func (c *Collectors) ScanCompleted(d time.Duration) {
	if c == nil {
		return
	}
	c.ScansTotal.Inc()
	c.ScanDuration.Observe(d.Seconds())
}

func (c *Collectors) Signal(status string) {
	if c == nil {
		return
	}
	c.SignalsTotal.WithLabelValues(status).Inc()
}

func (c *Collectors) PositionOpened() {
	if c == nil {
		return
	}
	c.EntriesTotal.Inc()
}

// PositionClosed cuenta la salida y acumula el PnL realizado.
func (c *Collectors) PositionClosed(reason string, pnl float64) {
	if c == nil {
		return
	}
	c.ExitsTotal.WithLabelValues(reason).Inc()
	if pnl >= 0 {
		c.RealizedPnL.Add(pnl)
	} else {
		c.RealizedLosses.Add(-pnl)
	}
}

func (c *Collectors) OrderFailed(side string) {
	if c == nil {
		return
	}
	c.OrderFailures.WithLabelValues(side).Inc()
}

func (c *Collectors) SetOpenPositions(n int) {
	if c == nil {
		return
	}
	c.OpenPositions.Set(float64(n))
}

func (c *Collectors) SweepCombination(status string) {
	if c == nil {
		return
	}
	c.SweepCombos.WithLabelValues(status).Inc()
}

func (c *Collectors) CacheLookup(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.CacheRequests.WithLabelValues(result).Inc()
}
