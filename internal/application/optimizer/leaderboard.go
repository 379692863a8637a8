package optimizer

import (
	"sort"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// rank construye los leaderboards. Las entradas Failed nunca participan.
func (o *Optimizer) rank(r *Report) {
	var ok []domain.SweepEntry
	for _, e := range r.Entries {
		if !e.Failed {
			ok = append(ok, e)
		}
	}

	r.ByReturn = top(ok, o.cfg.TopN, nil, func(e domain.SweepEntry) float64 {
		return e.Result.TotalReturn
	})

	r.ByTradeCount = top(ok, o.cfg.TopN,
		func(e domain.SweepEntry) bool { return e.Result.TotalReturn > 0 },
		func(e domain.SweepEntry) float64 { return float64(e.Result.TotalTrades) },
	)

	r.ByAsymmetry = top(ok, o.cfg.TopN,
		func(e domain.SweepEntry) bool { return e.Result.AvgWin > 0 && e.Result.AvgLoss < 0 },
		func(e domain.SweepEntry) float64 { return e.Result.Asymmetry() },
	)

	r.BySharpe = top(ok, o.cfg.TopN,
		func(e domain.SweepEntry) bool { return e.Result.TotalTrades >= 2 },
		func(e domain.SweepEntry) float64 { return e.Result.SharpeRatio },
	)
}

// top filtra, ordena desc por score y corta a n. Empates: mayor retorno,
// luego la clave, para que el orden sea estable entre ejecuciones.
func top(entries []domain.SweepEntry, n int, keep func(domain.SweepEntry) bool, score func(domain.SweepEntry) float64) []domain.SweepEntry {
	var out []domain.SweepEntry
	for _, e := range entries {
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := score(out[i]), score(out[j])
		if si != sj {
			return si > sj
		}
		if out[i].Result.TotalReturn != out[j].Result.TotalReturn {
			return out[i].Result.TotalReturn > out[j].Result.TotalReturn
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
