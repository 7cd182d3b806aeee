package store

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Tx is a warehouse transaction. Every step of an entity load (watermark
// read, extraction, guard, merge, run log, watermark advance) runs through
// one Tx so they commit together or not at all.
type Tx struct {
	tx *sqlx.Tx
}

// Queryx runs a query inside the transaction.
// Callers are responsible for closing the returned rows.
func (t *Tx) Queryx(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return t.tx.QueryxContext(ctx, query, args...)
}

// Exec runs a statement inside the transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, query, args...)
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx so read helpers can
// run inside or outside a load.
type queryer interface {
	sqlx.ExtContext
}
