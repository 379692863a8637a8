package storage

// sqlite.go — persistencia del motor live en SQLite (pure Go, sin CGo).
//
//   - `signals`: una fila por señal, UPSERT por id (ACTIVE → TRADED/EXPIRED).
//   - `positions`: una fila por posición, UPSERT por id (OPEN → CLOSED).
//   - `trades`: append-only, un INSERT por cierre.
//   - `sweep_entries`: checkpoints del optimizador (ver sweep.go).
//
// Los timestamps se guardan como texto RFC3339Nano en UTC.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS signals (
    id           TEXT PRIMARY KEY,
    symbol       TEXT NOT NULL,
    score        REAL NOT NULL,
    reasons      TEXT NOT NULL DEFAULT '[]',
    triggered_at TEXT NOT NULL,
    expires_at   TEXT NOT NULL,
    status       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id                TEXT PRIMARY KEY,
    symbol            TEXT NOT NULL,
    signal_id         TEXT NOT NULL,
    entry_price       REAL NOT NULL,
    quantity          REAL NOT NULL,
    stop_loss         REAL NOT NULL,
    take_profit       REAL NOT NULL,
    trailing_stop_pct REAL NOT NULL,
    highest_price     REAL NOT NULL,
    status            TEXT NOT NULL,
    opened_at         TEXT NOT NULL,
    closed_at         TEXT NOT NULL DEFAULT '',
    exit_reason       TEXT NOT NULL DEFAULT '',
    exit_price        REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trades (
    id               TEXT PRIMARY KEY,
    position_id      TEXT NOT NULL,
    symbol           TEXT NOT NULL,
    side             TEXT NOT NULL,
    entry_price      REAL NOT NULL,
    exit_price       REAL NOT NULL,
    quantity         REAL NOT NULL,
    pnl              REAL NOT NULL,
    pnl_pct          REAL NOT NULL,
    duration_seconds INTEGER NOT NULL,
    exit_reason      TEXT NOT NULL,
    opened_at        TEXT NOT NULL,
    closed_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_status   ON signals(status);
CREATE INDEX IF NOT EXISTS idx_signals_symbol   ON signals(symbol, triggered_at);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
CREATE INDEX IF NOT EXISTS idx_positions_symbol ON positions(symbol, opened_at);
CREATE INDEX IF NOT EXISTS idx_trades_closed    ON trades(closed_at);
CREATE INDEX IF NOT EXISTS idx_trades_symbol    ON trades(symbol, closed_at);
`

// SQLiteStorage implementa ports.Storage y ports.SweepStore.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica
// el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	for _, ddl := range []string{schema, sweepSchema} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
		}
	}
	return &SQLiteStorage{db: db}, nil
}

// --- signals ---

func (s *SQLiteStorage) SaveSignal(ctx context.Context, sig domain.Signal) error {
	reasons, err := json.Marshal(nonNil(sig.Reasons))
	if err != nil {
		return fmt.Errorf("storage.SaveSignal: marshal reasons: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO signals (id, symbol, score, reasons, triggered_at, expires_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			score      = excluded.score,
			reasons    = excluded.reasons,
			expires_at = excluded.expires_at,
			status     = excluded.status
	`, sig.ID, sig.Symbol, sig.Score, string(reasons),
		formatTime(sig.TriggeredAt), formatTime(sig.ExpiresAt), string(sig.Status),
	); err != nil {
		return fmt.Errorf("storage.SaveSignal: upsert %s: %w", sig.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) GetActiveSignals(ctx context.Context) ([]domain.Signal, error) {
	return s.querySignals(ctx, "storage.GetActiveSignals",
		`WHERE status = ? ORDER BY symbol, triggered_at`, string(domain.SignalActive))
}

func (s *SQLiteStorage) GetSignalsBySymbol(ctx context.Context, symbol string) ([]domain.Signal, error) {
	return s.querySignals(ctx, "storage.GetSignalsBySymbol",
		`WHERE symbol = ? ORDER BY triggered_at`, symbol)
}

func (s *SQLiteStorage) querySignals(ctx context.Context, op, where string, args ...any) ([]domain.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, score, reasons, triggered_at, expires_at, status
		FROM signals `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var reasons, triggered, expires, status string
		if err := rows.Scan(&sig.ID, &sig.Symbol, &sig.Score, &reasons, &triggered, &expires, &status); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		if err := json.Unmarshal([]byte(reasons), &sig.Reasons); err != nil {
			// la señal sigue siendo válida sin sus razones
			slog.Warn("storage: corrupt signal reasons ignored", "op", op, "signal_id", sig.ID, "err", err)
			sig.Reasons = nil
		}
		sig.TriggeredAt = parseTime(triggered)
		sig.ExpiresAt = parseTime(expires)
		sig.Status = domain.SignalStatus(status)
		out = append(out, sig)
	}
	return out, rows.Err()
}

// --- positions ---

func (s *SQLiteStorage) SavePosition(ctx context.Context, p domain.Position) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO positions
			(id, symbol, signal_id, entry_price, quantity, stop_loss, take_profit,
			 trailing_stop_pct, highest_price, status, opened_at, closed_at, exit_reason, exit_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			highest_price = MAX(highest_price, excluded.highest_price),
			status        = excluded.status,
			closed_at     = excluded.closed_at,
			exit_reason   = excluded.exit_reason,
			exit_price    = excluded.exit_price
	`, p.ID, p.Symbol, p.SignalID, p.EntryPrice, p.Quantity, p.StopLoss, p.TakeProfit,
		p.TrailingStopPct, p.HighestPrice, string(p.Status), formatTime(p.OpenedAt),
		formatTime(p.ClosedAt), string(p.ExitReason), p.ExitPrice,
	); err != nil {
		return fmt.Errorf("storage.SavePosition: upsert %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStorage) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	return s.queryPositions(ctx, "storage.GetOpenPositions",
		`WHERE status = ? ORDER BY symbol`, string(domain.PositionOpen))
}

func (s *SQLiteStorage) GetPositionsBySymbol(ctx context.Context, symbol string) ([]domain.Position, error) {
	return s.queryPositions(ctx, "storage.GetPositionsBySymbol",
		`WHERE symbol = ? ORDER BY opened_at`, symbol)
}

// GetPosition devuelve una posición por id o ErrNotFound.
func (s *SQLiteStorage) GetPosition(ctx context.Context, id string) (domain.Position, error) {
	ps, err := s.queryPositions(ctx, "storage.GetPosition", `WHERE id = ?`, id)
	if err != nil {
		return domain.Position{}, err
	}
	if len(ps) == 0 {
		return domain.Position{}, fmt.Errorf("storage.GetPosition: %s: %w", id, ErrNotFound)
	}
	return ps[0], nil
}

func (s *SQLiteStorage) queryPositions(ctx context.Context, op, where string, args ...any) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, signal_id, entry_price, quantity, stop_loss, take_profit,
		       trailing_stop_pct, highest_price, status, opened_at, closed_at, exit_reason, exit_price
		FROM positions `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		var p domain.Position
		var status, opened, closed, reason string
		if err := rows.Scan(&p.ID, &p.Symbol, &p.SignalID, &p.EntryPrice, &p.Quantity,
			&p.StopLoss, &p.TakeProfit, &p.TrailingStopPct, &p.HighestPrice,
			&status, &opened, &closed, &reason, &p.ExitPrice,
		); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		p.Status = domain.PositionStatus(status)
		p.OpenedAt = parseTime(opened)
		p.ClosedAt = parseTime(closed)
		p.ExitReason = domain.ExitReason(reason)
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- trades ---

// SaveTrade inserta un trade. Un id repetido devuelve ErrDuplicateKey.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, t domain.Trade) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, position_id, symbol, side, entry_price, exit_price, quantity, pnl, pnl_pct,
			 duration_seconds, exit_reason, opened_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, t.ID, t.PositionID, t.Symbol, string(t.Side), t.EntryPrice, t.ExitPrice, t.Quantity,
		t.PnL, t.PnLPct, t.DurationSeconds, string(t.ExitReason),
		formatTime(t.OpenedAt), formatTime(t.ClosedAt),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: insert %s: %w", t.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("storage.SaveTrade: %s: %w", t.ID, ErrDuplicateKey)
	}
	return nil
}

// GetTrades devuelve los trades cerrados en [from, to], más antiguos primero.
func (s *SQLiteStorage) GetTrades(ctx context.Context, from, to time.Time) ([]domain.Trade, error) {
	return s.queryTrades(ctx, "storage.GetTrades",
		`WHERE closed_at BETWEEN ? AND ? ORDER BY closed_at, id`, formatTime(from), formatTime(to))
}

func (s *SQLiteStorage) GetTradesBySymbol(ctx context.Context, symbol string) ([]domain.Trade, error) {
	return s.queryTrades(ctx, "storage.GetTradesBySymbol",
		`WHERE symbol = ? ORDER BY closed_at, id`, symbol)
}

func (s *SQLiteStorage) queryTrades(ctx context.Context, op, where string, args ...any) ([]domain.Trade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, position_id, symbol, side, entry_price, exit_price, quantity, pnl, pnl_pct,
		       duration_seconds, exit_reason, opened_at, closed_at
		FROM trades `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var side, reason, opened, closed string
		if err := rows.Scan(&t.ID, &t.PositionID, &t.Symbol, &side, &t.EntryPrice, &t.ExitPrice,
			&t.Quantity, &t.PnL, &t.PnLPct, &t.DurationSeconds, &reason, &opened, &closed,
		); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		t.Side = domain.Side(side)
		t.ExitReason = domain.ExitReason(reason)
		t.OpenedAt = parseTime(opened)
		t.ClosedAt = parseTime(closed)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// formatTime usa un ancho fijo para que el orden lexicográfico sea el
// cronológico. El cero se guarda como cadena vacía.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
