package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/pitwall/internal/ir"
)

const runLogDDL = `
	CREATE TABLE IF NOT EXISTS dwh_run_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id      TEXT NOT NULL,
		process     TEXT NOT NULL,
		inserted    INTEGER NOT NULL,
		updated     INTEGER NOT NULL,
		executed_at TEXT NOT NULL
	)
`

const runLogIndexDDL = `
	CREATE INDEX IF NOT EXISTS idx_dwh_run_log_process
	ON dwh_run_log(process, id)
`

// LogRun appends one immutable run log entry. Existing entries are never
// updated or deleted. The table is created on first use.
func (t *Tx) LogRun(ctx context.Context, runID, process string, inserted, updated int64, at time.Time) (int64, error) {
	if err := ensureRunLog(ctx, t.tx); err != nil {
		return 0, err
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO dwh_run_log (run_id, process, inserted, updated, executed_at)
		VALUES (?, ?, ?, ?, ?)
	`, runID, process, inserted, updated, ir.FormatTime(at))
	if err != nil {
		return 0, fmt.Errorf("log run %s: %w", process, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("log run %s: last insert id: %w", process, err)
	}
	return id, nil
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Process string // empty = every process
	Limit   int    // <= 0 = no limit
}

// ListRuns returns run log entries newest first.
// Returns an empty slice (not nil) when nothing matches.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]ir.RunLogEntry, error) {
	if err := ensureRunLog(ctx, s.db); err != nil {
		return nil, err
	}

	query := `SELECT id, run_id, process, inserted, updated, executed_at FROM dwh_run_log`
	var args []any
	if f.Process != "" {
		query += ` WHERE process = ?`
		args = append(args, f.Process)
	}
	query += ` ORDER BY id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	out := []ir.RunLogEntry{}
	if err := sqlx.SelectContext(ctx, s.db, &out, query, args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return out, nil
}

// CountRuns returns the number of run log entries for process.
func (s *Store) CountRuns(ctx context.Context, process string) (int, error) {
	if err := ensureRunLog(ctx, s.db); err != nil {
		return 0, err
	}
	var n int
	if err := sqlx.GetContext(ctx, s.db, &n, `SELECT COUNT(*) FROM dwh_run_log WHERE process = ?`, process); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

func ensureRunLog(ctx context.Context, q queryer) error {
	if _, err := q.ExecContext(ctx, runLogDDL); err != nil {
		return fmt.Errorf("run log: create table: %w", err)
	}
	if _, err := q.ExecContext(ctx, runLogIndexDDL); err != nil {
		return fmt.Errorf("run log: create index: %w", err)
	}
	return nil
}
