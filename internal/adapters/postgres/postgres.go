package postgres

// postgres.go — persistencia del motor live en PostgreSQL. Mismos ports que
// adapters/storage; se elige con storage.driver = postgres.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alejandrodnm/momentumbot/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")
)

const pgErrUniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS signals (
    id           TEXT PRIMARY KEY,
    symbol       TEXT NOT NULL,
    score        DOUBLE PRECISION NOT NULL,
    reasons      TEXT[] NOT NULL DEFAULT '{}',
    triggered_at TIMESTAMPTZ NOT NULL,
    expires_at   TIMESTAMPTZ NOT NULL,
    status       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id                TEXT PRIMARY KEY,
    symbol            TEXT NOT NULL,
    signal_id         TEXT NOT NULL,
    entry_price       DOUBLE PRECISION NOT NULL,
    quantity          DOUBLE PRECISION NOT NULL,
    stop_loss         DOUBLE PRECISION NOT NULL,
    take_profit       DOUBLE PRECISION NOT NULL,
    trailing_stop_pct DOUBLE PRECISION NOT NULL,
    highest_price     DOUBLE PRECISION NOT NULL,
    status            TEXT NOT NULL,
    opened_at         TIMESTAMPTZ NOT NULL,
    closed_at         TIMESTAMPTZ,
    exit_reason       TEXT NOT NULL DEFAULT '',
    exit_price        DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS trades (
    id               TEXT PRIMARY KEY,
    position_id      TEXT NOT NULL,
    symbol           TEXT NOT NULL,
    side             TEXT NOT NULL,
    entry_price      DOUBLE PRECISION NOT NULL,
    exit_price       DOUBLE PRECISION NOT NULL,
    quantity         DOUBLE PRECISION NOT NULL,
    pnl              DOUBLE PRECISION NOT NULL,
    pnl_pct          DOUBLE PRECISION NOT NULL,
    duration_seconds BIGINT NOT NULL,
    exit_reason      TEXT NOT NULL,
    opened_at        TIMESTAMPTZ NOT NULL,
    closed_at        TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_signals_status   ON signals(status);
CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
CREATE INDEX IF NOT EXISTS idx_trades_closed    ON trades(closed_at);
`

// Store implementa ports.Storage sobre un pool de pgx.
type Store struct {
	pool *pgxpool.Pool
}

// New conecta, hace ping y aplica el schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}
	for _, ddl := range []string{schema, sweepSchema} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres.New: apply schema: %w", err)
		}
	}
	return &Store{pool: pool}, nil
}

// Close cierra el pool. Nunca falla; devuelve error para cumplir ports.Storage.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// --- signals ---

func (s *Store) SaveSignal(ctx context.Context, sig domain.Signal) error {
	reasons := sig.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO signals (id, symbol, score, reasons, triggered_at, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			score      = EXCLUDED.score,
			reasons    = EXCLUDED.reasons,
			expires_at = EXCLUDED.expires_at,
			status     = EXCLUDED.status
	`, sig.ID, sig.Symbol, sig.Score, reasons, sig.TriggeredAt, sig.ExpiresAt, string(sig.Status)); err != nil {
		return fmt.Errorf("postgres.SaveSignal: upsert %s: %w", sig.ID, err)
	}
	return nil
}

func (s *Store) GetActiveSignals(ctx context.Context) ([]domain.Signal, error) {
	return s.querySignals(ctx, "postgres.GetActiveSignals",
		`WHERE status = $1 ORDER BY symbol, triggered_at`, string(domain.SignalActive))
}

func (s *Store) GetSignalsBySymbol(ctx context.Context, symbol string) ([]domain.Signal, error) {
	return s.querySignals(ctx, "postgres.GetSignalsBySymbol",
		`WHERE symbol = $1 ORDER BY triggered_at`, symbol)
}

func (s *Store) querySignals(ctx context.Context, op, where string, args ...any) ([]domain.Signal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, symbol, score, reasons, triggered_at, expires_at, status
		FROM signals `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Signal
	for rows.Next() {
		var sig domain.Signal
		var status string
		if err := rows.Scan(&sig.ID, &sig.Symbol, &sig.Score, &sig.Reasons,
			&sig.TriggeredAt, &sig.ExpiresAt, &status); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		sig.TriggeredAt = sig.TriggeredAt.UTC()
		sig.ExpiresAt = sig.ExpiresAt.UTC()
		sig.Status = domain.SignalStatus(status)
		out = append(out, sig)
	}
	return out, rows.Err()
}

// --- positions ---

func (s *Store) SavePosition(ctx context.Context, p domain.Position) error {
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO positions
			(id, symbol, signal_id, entry_price, quantity, stop_loss, take_profit,
			 trailing_stop_pct, highest_price, status, opened_at, closed_at, exit_reason, exit_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			highest_price = GREATEST(positions.highest_price, EXCLUDED.highest_price),
			status        = EXCLUDED.status,
			closed_at     = EXCLUDED.closed_at,
			exit_reason   = EXCLUDED.exit_reason,
			exit_price    = EXCLUDED.exit_price
	`, p.ID, p.Symbol, p.SignalID, p.EntryPrice, p.Quantity, p.StopLoss, p.TakeProfit,
		p.TrailingStopPct, p.HighestPrice, string(p.Status), p.OpenedAt, nullTime(p.ClosedAt),
		string(p.ExitReason), p.ExitPrice,
	); err != nil {
		return fmt.Errorf("postgres.SavePosition: upsert %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) GetOpenPositions(ctx context.Context) ([]domain.Position, error) {
	return s.queryPositions(ctx, "postgres.GetOpenPositions",
		`WHERE status = $1 ORDER BY symbol`, string(domain.PositionOpen))
}

func (s *Store) GetPositionsBySymbol(ctx context.Context, symbol string) ([]domain.Position, error) {
	return s.queryPositions(ctx, "postgres.GetPositionsBySymbol",
		`WHERE symbol = $1 ORDER BY opened_at`, symbol)
}

// GetPosition devuelve una posición por id o ErrNotFound.
func (s *Store) GetPosition(ctx context.Context, id string) (domain.Position, error) {
	ps, err := s.queryPositions(ctx, "postgres.GetPosition", `WHERE id = $1`, id)
	if err != nil {
		return domain.Position{}, err
	}
	if len(ps) == 0 {
		return domain.Position{}, fmt.Errorf("postgres.GetPosition: %s: %w", id, ErrNotFound)
	}
	return ps[0], nil
}

func (s *Store) queryPositions(ctx context.Context, op, where string, args ...any) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx, `
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
		var status, reason string
		var closed *time.Time
		if err := rows.Scan(&p.ID, &p.Symbol, &p.SignalID, &p.EntryPrice, &p.Quantity,
			&p.StopLoss, &p.TakeProfit, &p.TrailingStopPct, &p.HighestPrice,
			&status, &p.OpenedAt, &closed, &reason, &p.ExitPrice,
		); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		p.Status = domain.PositionStatus(status)
		p.OpenedAt = p.OpenedAt.UTC()
		if closed != nil {
			p.ClosedAt = closed.UTC()
		}
		p.ExitReason = domain.ExitReason(reason)
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- trades ---

// SaveTrade inserta un trade. Un id repetido devuelve ErrDuplicateKey.
func (s *Store) SaveTrade(ctx context.Context, t domain.Trade) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO trades
			(id, position_id, symbol, side, entry_price, exit_price, quantity, pnl, pnl_pct,
			 duration_seconds, exit_reason, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, t.ID, t.PositionID, t.Symbol, string(t.Side), t.EntryPrice, t.ExitPrice, t.Quantity,
		t.PnL, t.PnLPct, t.DurationSeconds, string(t.ExitReason), t.OpenedAt, t.ClosedAt,
	)
	if isDuplicateKeyError(err) {
		return fmt.Errorf("postgres.SaveTrade: %s: %w", t.ID, ErrDuplicateKey)
	}
	if err != nil {
		return fmt.Errorf("postgres.SaveTrade: insert %s: %w", t.ID, err)
	}
	return nil
}

func (s *Store) GetTrades(ctx context.Context, from, to time.Time) ([]domain.Trade, error) {
	return s.queryTrades(ctx, "postgres.GetTrades",
		`WHERE closed_at BETWEEN $1 AND $2 ORDER BY closed_at, id`, from, to)
}

func (s *Store) GetTradesBySymbol(ctx context.Context, symbol string) ([]domain.Trade, error) {
	return s.queryTrades(ctx, "postgres.GetTradesBySymbol",
		`WHERE symbol = $1 ORDER BY closed_at, id`, symbol)
}

func (s *Store) queryTrades(ctx context.Context, op, where string, args ...any) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, position_id, symbol, side, entry_price, exit_price, quantity, pnl, pnl_pct,
		       duration_seconds, exit_reason, opened_at, closed_at
		FROM trades `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}
	defer rows.Close()

	trades, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Trade, error) {
		var t domain.Trade
		var side, reason string
		err := row.Scan(&t.ID, &t.PositionID, &t.Symbol, &side, &t.EntryPrice, &t.ExitPrice,
			&t.Quantity, &t.PnL, &t.PnLPct, &t.DurationSeconds, &reason, &t.OpenedAt, &t.ClosedAt)
		t.Side = domain.Side(side)
		t.ExitReason = domain.ExitReason(reason)
		t.OpenedAt = t.OpenedAt.UTC()
		t.ClosedAt = t.ClosedAt.UTC()
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: scan rows: %w", op, err)
	}
	return trades, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
