package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/pitwall/internal/ir"
)

const watermarkDDL = `
	CREATE TABLE IF NOT EXISTS dwh_watermark (
		process  TEXT PRIMARY KEY,
		last_run TEXT NOT NULL
	)
`

// GetWatermark returns the last successful run start of process, or
// ir.Epoch when the process has never completed. It lazily creates the
// watermark table but never modifies existing rows.
func (t *Tx) GetWatermark(ctx context.Context, process string) (time.Time, error) {
	return getWatermark(ctx, t.tx, process)
}

// SetWatermark upserts the watermark of process. Idempotent.
func (t *Tx) SetWatermark(ctx context.Context, process string, ts time.Time) error {
	return setWatermark(ctx, t.tx, process, ts)
}

// GetWatermark reads a watermark outside of a load.
func (s *Store) GetWatermark(ctx context.Context, process string) (time.Time, error) {
	return getWatermark(ctx, s.db, process)
}

// SetWatermark overwrites a watermark outside of a load, e.g. to force a
// process to re-extract from an earlier point.
func (s *Store) SetWatermark(ctx context.Context, process string, ts time.Time) error {
	return s.Tx(ctx, func(tx *Tx) error {
		return tx.SetWatermark(ctx, process, ts)
	})
}

// Watermarks lists every stored watermark ordered by process name.
// Returns an empty slice (not nil) when none exist.
func (s *Store) Watermarks(ctx context.Context) ([]ir.Watermark, error) {
	if _, err := s.db.ExecContext(ctx, watermarkDDL); err != nil {
		return nil, fmt.Errorf("list watermarks: create table: %w", err)
	}

	out := []ir.Watermark{}
	if err := sqlx.SelectContext(ctx, s.db, &out, `
		SELECT process, last_run
		FROM dwh_watermark
		ORDER BY process COLLATE BINARY ASC
	`); err != nil {
		return nil, fmt.Errorf("list watermarks: %w", err)
	}
	return out, nil
}

func getWatermark(ctx context.Context, q queryer, process string) (time.Time, error) {
	if _, err := q.ExecContext(ctx, watermarkDDL); err != nil {
		return time.Time{}, fmt.Errorf("get watermark: create table: %w", err)
	}

	var w ir.Watermark
	err := sqlx.GetContext(ctx, q, &w, `
		SELECT process, last_run
		FROM dwh_watermark
		WHERE process = ?
	`, process)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Epoch, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get watermark %s: %w", process, err)
	}

	ts, err := w.Time()
	if err != nil {
		return time.Time{}, fmt.Errorf("get watermark %s: %w", process, err)
	}
	return ts, nil
}

func setWatermark(ctx context.Context, q queryer, process string, ts time.Time) error {
	if _, err := q.ExecContext(ctx, watermarkDDL); err != nil {
		return fmt.Errorf("set watermark: create table: %w", err)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO dwh_watermark (process, last_run)
		VALUES (?, ?)
		ON CONFLICT(process) DO UPDATE SET last_run = excluded.last_run
	`, process, ir.FormatTime(ts))
	if err != nil {
		return fmt.Errorf("set watermark %s: %w", process, err)
	}
	return nil
}
