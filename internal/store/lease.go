package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/pitwall/internal/ir"
)

// AcquireLease claims the single-flight lease for process on behalf of
// holder until now+ttl. An expired lease is reclaimed. Returns false when
// another holder owns a live lease.
//
// The claim is one short transaction of its own; callers acquire before
// starting the load transaction and release after it ends.
func (s *Store) AcquireLease(ctx context.Context, process, holder string, now time.Time, ttl time.Duration) (bool, error) {
	var claimed bool
	err := s.Tx(ctx, func(tx *Tx) error {
		if _, err := tx.Exec(ctx, `
			DELETE FROM process_leases
			WHERE process = ? AND julianday(expires_at) <= julianday(?)
		`, process, ir.FormatTime(now)); err != nil {
			return fmt.Errorf("reclaim expired lease: %w", err)
		}

		res, err := tx.Exec(ctx, `
			INSERT INTO process_leases (process, holder, acquired_at, expires_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(process) DO NOTHING
		`, process, holder, ir.FormatTime(now), ir.FormatTime(now.Add(ttl)))
		if err != nil {
			return fmt.Errorf("insert lease: %w", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("insert lease: rows affected: %w", err)
		}
		claimed = n == 1
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", process, err)
	}
	return claimed, nil
}

// ReleaseLease drops the lease for process if holder still owns it.
func (s *Store) ReleaseLease(ctx context.Context, process, holder string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM process_leases
		WHERE process = ? AND holder = ?
	`, process, holder)
	if err != nil {
		return fmt.Errorf("release lease %s: %w", process, err)
	}
	return nil
}

// ListLeases returns every lease row, live or expired, by process name.
func (s *Store) ListLeases(ctx context.Context) ([]ir.Lease, error) {
	out := []ir.Lease{}
	if err := sqlx.SelectContext(ctx, s.db, &out, `
		SELECT process, holder, acquired_at, expires_at
		FROM process_leases
		ORDER BY process COLLATE BINARY ASC
	`); err != nil {
		return nil, fmt.Errorf("list leases: %w", err)
	}
	return out, nil
}
