package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ErgunUral/BorsaVerileri2025-sub001/internal/scheduler"
)

// DB is the subset of *pgxpool.Pool used by TargetStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const schema = `
CREATE TABLE IF NOT EXISTS polling_targets (
	name        TEXT PRIMARY KEY,
	symbols     TEXT[] NOT NULL,
	interval_ms BIGINT NOT NULL,
	priority    TEXT NOT NULL,
	enabled     BOOLEAN NOT NULL DEFAULT TRUE,
	market      BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertTarget = `
INSERT INTO polling_targets (name, symbols, interval_ms, priority, enabled, market, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
ON CONFLICT (name) DO UPDATE SET
	symbols     = EXCLUDED.symbols,
	interval_ms = EXCLUDED.interval_ms,
	priority    = EXCLUDED.priority,
	enabled     = EXCLUDED.enabled,
	market      = EXCLUDED.market,
	updated_at  = now()`

// ErrTargetNotFound is returned by Delete for unknown names.
var ErrTargetNotFound = errors.New("database: target not found")

// targetRow mirrors a polling_targets row.
type targetRow struct {
	Name       string    `db:"name"`
	Symbols    []string  `db:"symbols"`
	IntervalMS int64     `db:"interval_ms"`
	Priority   string    `db:"priority"`
	Enabled    bool      `db:"enabled"`
	Market     bool      `db:"market"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r targetRow) target() scheduler.Target {
	return scheduler.Target{
		Name:     r.Name,
		Symbols:  r.Symbols,
		Interval: time.Duration(r.IntervalMS) * time.Millisecond,
		Priority: scheduler.Priority(r.Priority),
		Enabled:  r.Enabled,
		Market:   r.Market,
	}
}

func rowArgs(t scheduler.Target) []any {
	return []any{t.Name, t.Symbols, t.Interval.Milliseconds(), string(t.Priority), t.Enabled, t.Market}
}

// TargetStore reads and writes polling targets.
type TargetStore struct {
	db     DB
	logger *slog.Logger
}

// NewTargetStore creates a TargetStore.
func NewTargetStore(db DB, logger *slog.Logger) *TargetStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &TargetStore{
		db:     db,
		logger: logger.With("component", "target_store"),
	}
}

// EnsureSchema creates the polling_targets table if it does not exist.
func (s *TargetStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create polling_targets: %w", err)
	}
	return nil
}

// List returns every stored target ordered by name.
func (s *TargetStore) List(ctx context.Context) ([]scheduler.Target, error) {
	rows, err := s.db.Query(ctx, `
		SELECT name, symbols, interval_ms, priority, enabled, market, updated_at
		FROM polling_targets
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query targets: %w", err)
	}

	stored, err := pgx.CollectRows(rows, pgx.RowToStructByName[targetRow])
	if err != nil {
		return nil, fmt.Errorf("scan targets: %w", err)
	}

	targets := make([]scheduler.Target, 0, len(stored))
	for _, r := range stored {
		targets = append(targets, r.target())
	}
	return targets, nil
}

// Upsert inserts or replaces a target.
func (s *TargetStore) Upsert(ctx context.Context, t scheduler.Target) error {
	if _, err := s.db.Exec(ctx, upsertTarget, rowArgs(t)...); err != nil {
		return fmt.Errorf("upsert target %q: %w", t.Name, err)
	}
	s.logger.Debug("target stored", "target", t.Name)
	return nil
}

// UpsertAll writes targets in one batch.
func (s *TargetStore) UpsertAll(ctx context.Context, targets []scheduler.Target) error {
	if len(targets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range targets {
		batch.Queue(upsertTarget, rowArgs(t)...)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for _, t := range targets {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert target %q: %w", t.Name, err)
		}
	}
	return nil
}

// Delete removes a target by name.
func (s *TargetStore) Delete(ctx context.Context, name string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM polling_targets WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete target %q: %w", name, err)
	}
	if ct.RowsAffected() == 0 {
		return ErrTargetNotFound
	}
	s.logger.Debug("target deleted", "target", name)
	return nil
}
