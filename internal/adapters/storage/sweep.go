package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

// sweepSchema guarda una fila por combinación evaluada. Los trades
// individuales no se persisten, solo las métricas.
const sweepSchema = `
CREATE TABLE IF NOT EXISTS sweep_entries (
    sweep_id      TEXT NOT NULL,
    combo_key     TEXT NOT NULL,
    params        TEXT NOT NULL,
    failed        INTEGER NOT NULL DEFAULT 0,
    error         TEXT NOT NULL DEFAULT '',
    total_return  REAL NOT NULL DEFAULT 0,
    win_rate      REAL NOT NULL DEFAULT 0,
    avg_win       REAL NOT NULL DEFAULT 0,
    avg_loss      REAL NOT NULL DEFAULT 0,
    profit_factor REAL NOT NULL DEFAULT 0,
    sharpe        REAL NOT NULL DEFAULT 0,
    max_drawdown  REAL NOT NULL DEFAULT 0,
    total_trades  INTEGER NOT NULL DEFAULT 0,
    final_equity  REAL NOT NULL DEFAULT 0,
    start_capital REAL NOT NULL DEFAULT 0,
    saved_at      TEXT NOT NULL,
    PRIMARY KEY (sweep_id, combo_key)
);

CREATE INDEX IF NOT EXISTS idx_sweep_saved ON sweep_entries(saved_at DESC);

CREATE TABLE IF NOT EXISTS sweeps (
    sweep_id    TEXT PRIMARY KEY,
    fingerprint TEXT NOT NULL,
    created_at  TEXT NOT NULL
);
`

// SaveSweepEntry hace upsert del checkpoint de una combinación.
func (s *SQLiteStorage) SaveSweepEntry(ctx context.Context, sweepID string, e domain.SweepEntry) error {
	params, err := json.Marshal(e.Params)
	if err != nil {
		return fmt.Errorf("storage.SaveSweepEntry: marshal params: %w", err)
	}
	failed := 0
	if e.Failed {
		failed = 1
	}
	r := e.Result
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sweep_entries
			(sweep_id, combo_key, params, failed, error, total_return, win_rate, avg_win, avg_loss,
			 profit_factor, sharpe, max_drawdown, total_trades, final_equity, start_capital, saved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sweep_id, combo_key) DO UPDATE SET
			failed        = excluded.failed,
			error         = excluded.error,
			total_return  = excluded.total_return,
			win_rate      = excluded.win_rate,
			avg_win       = excluded.avg_win,
			avg_loss      = excluded.avg_loss,
			profit_factor = excluded.profit_factor,
			sharpe        = excluded.sharpe,
			max_drawdown  = excluded.max_drawdown,
			total_trades  = excluded.total_trades,
			final_equity  = excluded.final_equity,
			start_capital = excluded.start_capital,
			saved_at      = excluded.saved_at
	`, sweepID, e.Key, string(params), failed, e.Error, r.TotalReturn, r.WinRate, r.AvgWin, r.AvgLoss,
		r.ProfitFactor, r.SharpeRatio, r.MaxDrawdown, r.TotalTrades, r.FinalEquity, r.StartingCapital,
		formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("storage.SaveSweepEntry: upsert %s/%s: %w", sweepID, e.Key, err)
	}
	return nil
}

// GetSweepEntries devuelve los checkpoints de un sweep (vacío si no existe).
func (s *SQLiteStorage) GetSweepEntries(ctx context.Context, sweepID string) ([]domain.SweepEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT combo_key, params, failed, error, total_return, win_rate, avg_win, avg_loss,
		       profit_factor, sharpe, max_drawdown, total_trades, final_equity, start_capital
		FROM sweep_entries WHERE sweep_id = ? ORDER BY combo_key
	`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("storage.GetSweepEntries: query: %w", err)
	}
	defer rows.Close()

	var out []domain.SweepEntry
	for rows.Next() {
		var e domain.SweepEntry
		var params string
		var failed int
		r := &e.Result
		if err := rows.Scan(&e.Key, &params, &failed, &e.Error, &r.TotalReturn, &r.WinRate, &r.AvgWin,
			&r.AvgLoss, &r.ProfitFactor, &r.SharpeRatio, &r.MaxDrawdown, &r.TotalTrades,
			&r.FinalEquity, &r.StartingCapital,
		); err != nil {
			return nil, fmt.Errorf("storage.GetSweepEntries: scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &e.Params); err != nil {
			return nil, fmt.Errorf("storage.GetSweepEntries: params %s: %w", e.Key, err)
		}
		e.Failed = failed == 1
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveSweepFingerprint guarda el dataset del sweep; el primero gana.
func (s *SQLiteStorage) SaveSweepFingerprint(ctx context.Context, sweepID, fingerprint string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO sweeps (sweep_id, fingerprint, created_at) VALUES (?, ?, ?)
		ON CONFLICT(sweep_id) DO NOTHING
	`, sweepID, fingerprint, formatTime(time.Now())); err != nil {
		return fmt.Errorf("storage.SaveSweepFingerprint: %s: %w", sweepID, err)
	}
	return nil
}

// GetSweepFingerprint devuelve "" si el sweep no existe.
func (s *SQLiteStorage) GetSweepFingerprint(ctx context.Context, sweepID string) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM sweeps WHERE sweep_id = ?`, sweepID,
	).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage.GetSweepFingerprint: %s: %w", sweepID, err)
	}
	return fp, nil
}

// LatestSweepID devuelve el sweep con el checkpoint más reciente.
func (s *SQLiteStorage) LatestSweepID(ctx context.Context) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT sweep_id FROM sweep_entries ORDER BY saved_at DESC LIMIT 1`,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("storage.LatestSweepID: %w", ErrNotFound)
	}
	return id, nil
}
