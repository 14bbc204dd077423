package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/website-archiver/internal/archive"
)

// DefaultRunTable holds run summaries.
const DefaultRunTable = "archive_runs"

// RunStore persists run summaries next to the website table.
//
//	CREATE TABLE archive_runs (
//		run_id      text PRIMARY KEY,
//		run_date    date NOT NULL,
//		started_at  timestamptz NOT NULL,
//		finished_at timestamptz NOT NULL,
//		archived    integer NOT NULL,
//		dead        integer NOT NULL,
//		failed      integer NOT NULL,
//		interrupted boolean NOT NULL
//	);
type RunStore struct {
	pool  pool
	table string
}

// NewRunStore shares the website store's pool.
func NewRunStore(s *WebsiteStore, table string) (*RunStore, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("website store is required")
	}
	return NewRunStoreWithPool(s.pool, table)
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool, table string) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = DefaultRunTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: p, table: table}, nil
}

// RecordRun upserts a run summary.
func (s *RunStore) RecordRun(ctx context.Context, run archive.RunSummary) error {
	query := fmt.Sprintf(`
INSERT INTO %q (run_id, run_date, started_at, finished_at, archived, dead, failed, interrupted)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (run_id) DO UPDATE
SET finished_at = EXCLUDED.finished_at,
	archived = EXCLUDED.archived,
	dead = EXCLUDED.dead,
	failed = EXCLUDED.failed,
	interrupted = EXCLUDED.interrupted`, s.table)
	_, err := s.pool.Exec(ctx, query,
		run.RunID,
		run.RunDate,
		run.StartedAt,
		run.FinishedAt,
		run.Archived,
		run.Dead,
		run.Failed,
		run.Interrupted,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.RunID, err)
	}
	return nil
}

// ListRuns returns up to limit summaries, newest first.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]archive.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`
SELECT run_id, run_date::text, started_at, finished_at, archived, dead, failed, interrupted
FROM %q
ORDER BY started_at DESC
LIMIT $1`, s.table)
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (archive.RunSummary, error) {
		var r archive.RunSummary
		err := row.Scan(
			&r.RunID,
			&r.RunDate,
			&r.StartedAt,
			&r.FinishedAt,
			&r.Archived,
			&r.Dead,
			&r.Failed,
			&r.Interrupted,
		)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan runs: %w", err)
	}
	return runs, nil
}
