package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

const sweepSchema = `
CREATE TABLE IF NOT EXISTS sweep_entries (
    sweep_id      TEXT NOT NULL,
    combo_key     TEXT NOT NULL,
    params        JSONB NOT NULL,
    failed        BOOLEAN NOT NULL DEFAULT FALSE,
    error         TEXT NOT NULL DEFAULT '',
    total_return  DOUBLE PRECISION NOT NULL DEFAULT 0,
    win_rate      DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_win       DOUBLE PRECISION NOT NULL DEFAULT 0,
    avg_loss      DOUBLE PRECISION NOT NULL DEFAULT 0,
    profit_factor DOUBLE PRECISION NOT NULL DEFAULT 0,
    sharpe        DOUBLE PRECISION NOT NULL DEFAULT 0,
    max_drawdown  DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_trades  INTEGER NOT NULL DEFAULT 0,
    final_equity  DOUBLE PRECISION NOT NULL DEFAULT 0,
    start_capital DOUBLE PRECISION NOT NULL DEFAULT 0,
    saved_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (sweep_id, combo_key)
);

CREATE INDEX IF NOT EXISTS idx_sweep_saved ON sweep_entries(saved_at DESC);

CREATE TABLE IF NOT EXISTS sweeps (
    sweep_id    TEXT PRIMARY KEY,
    fingerprint TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// SaveSweepEntry hace upsert del checkpoint de una combinación.
func (s *Store) SaveSweepEntry(ctx context.Context, sweepID string, e domain.SweepEntry) error {
	params, err := json.Marshal(e.Params)
	if err != nil {
		return fmt.Errorf("postgres.SaveSweepEntry: marshal params: %w", err)
	}
	r := e.Result
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO sweep_entries
			(sweep_id, combo_key, params, failed, error, total_return, win_rate, avg_win, avg_loss,
			 profit_factor, sharpe, max_drawdown, total_trades, final_equity, start_capital, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, now())
		ON CONFLICT (sweep_id, combo_key) DO UPDATE SET
			failed        = EXCLUDED.failed,
			error         = EXCLUDED.error,
			total_return  = EXCLUDED.total_return,
			win_rate      = EXCLUDED.win_rate,
			avg_win       = EXCLUDED.avg_win,
			avg_loss      = EXCLUDED.avg_loss,
			profit_factor = EXCLUDED.profit_factor,
			sharpe        = EXCLUDED.sharpe,
			max_drawdown  = EXCLUDED.max_drawdown,
			total_trades  = EXCLUDED.total_trades,
			final_equity  = EXCLUDED.final_equity,
			start_capital = EXCLUDED.start_capital,
			saved_at      = EXCLUDED.saved_at
	`, sweepID, e.Key, params, e.Failed, e.Error, r.TotalReturn, r.WinRate, r.AvgWin, r.AvgLoss,
		r.ProfitFactor, r.SharpeRatio, r.MaxDrawdown, r.TotalTrades, r.FinalEquity, r.StartingCapital,
	); err != nil {
		return fmt.Errorf("postgres.SaveSweepEntry: upsert %s/%s: %w", sweepID, e.Key, err)
	}
	return nil
}

// GetSweepEntries devuelve los checkpoints de un sweep (vacío si no existe).
func (s *Store) GetSweepEntries(ctx context.Context, sweepID string) ([]domain.SweepEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT combo_key, params, failed, error, total_return, win_rate, avg_win, avg_loss,
		       profit_factor, sharpe, max_drawdown, total_trades, final_equity, start_capital
		FROM sweep_entries WHERE sweep_id = $1 ORDER BY combo_key
	`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("postgres.GetSweepEntries: query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SweepEntry, error) {
		var e domain.SweepEntry
		var params []byte
		r := &e.Result
		if err := row.Scan(&e.Key, &params, &e.Failed, &e.Error, &r.TotalReturn, &r.WinRate, &r.AvgWin,
			&r.AvgLoss, &r.ProfitFactor, &r.SharpeRatio, &r.MaxDrawdown, &r.TotalTrades,
			&r.FinalEquity, &r.StartingCapital,
		); err != nil {
			return e, err
		}
		if err := json.Unmarshal(params, &e.Params); err != nil {
			return e, fmt.Errorf("params %s: %w", e.Key, err)
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres.GetSweepEntries: %w", err)
	}
	return out, nil
}

// SaveSweepFingerprint guarda el dataset del sweep; el primero gana.
func (s *Store) SaveSweepFingerprint(ctx context.Context, sweepID, fingerprint string) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO sweeps (sweep_id, fingerprint) VALUES ($1, $2)
		ON CONFLICT (sweep_id) DO NOTHING
	`, sweepID, fingerprint); err != nil {
		return fmt.Errorf("postgres.SaveSweepFingerprint: %s: %w", sweepID, err)
	}
	return nil
}

// GetSweepFingerprint devuelve "" si el sweep no existe.
func (s *Store) GetSweepFingerprint(ctx context.Context, sweepID string) (string, error) {
	var fp string
	err := s.pool.QueryRow(ctx,
		`SELECT fingerprint FROM sweeps WHERE sweep_id = $1`, sweepID,
	).Scan(&fp)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("postgres.GetSweepFingerprint: %s: %w", sweepID, err)
	}
	return fp, nil
}

// LatestSweepID devuelve el sweep con el checkpoint más reciente.
func (s *Store) LatestSweepID(ctx context.Context) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT sweep_id FROM sweep_entries ORDER BY saved_at DESC LIMIT 1`,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("postgres.LatestSweepID: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("postgres.LatestSweepID: %w", err)
	}
	return id, nil
}
