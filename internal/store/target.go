package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/roach88/pitwall/internal/ir"
	"github.com/roach88/pitwall/internal/queryir"
	"github.com/roach88/pitwall/internal/querysql"
)

// lookupBatchSize bounds the number of key tuples per lookup statement,
// keeping composite-key lookups under SQLite's variable limit.
const lookupBatchSize = 500

// Bookkeeping columns carried by every target table.
const (
	ColID         = "dwh_id"
	ColHash       = "dwh_hash"
	ColValidFrom  = "dwh_valid_from"
	ColModifiedAt = "dwh_modified_at"
	ColValidTo    = "dwh_valid_to"
)

var quote = querysql.QuoteIdent

// EnsureTarget creates the target table of e if it does not exist yet.
// Key columns are NOT NULL and UNIQUE together; ref columns reference the
// parent target's surrogate key.
func (t *Tx) EnsureTarget(ctx context.Context, e *ir.Entity) error {
	if _, err := t.tx.ExecContext(ctx, targetDDL(e)); err != nil {
		return fmt.Errorf("ensure target %s: %w", e.Target, err)
	}
	return nil
}

func targetDDL(e *ir.Entity) string {
	isKey := make(map[string]bool, len(e.Key))
	for _, k := range e.Key {
		isKey[k] = true
	}

	cols := []string{quote(ColID) + " INTEGER PRIMARY KEY AUTOINCREMENT"}
	for _, a := range e.Attributes {
		col := quote(a.Name) + " " + a.Type.SQLType()
		if isKey[a.Name] {
			col += " NOT NULL"
		}
		if a.Type == ir.TypeRef {
			if p, ok := e.Parent(a.Name); ok && p.Target != "" {
				col += fmt.Sprintf(" REFERENCES %s(%s)", quote(p.Target), quote(ColID))
			}
		}
		cols = append(cols, col)
	}
	cols = append(cols,
		quote(ColHash)+" TEXT NOT NULL",
		quote(ColValidFrom)+" TEXT NOT NULL",
		quote(ColModifiedAt)+" TEXT NOT NULL",
		quote(ColValidTo)+" TEXT",
	)

	keys := make([]string, len(e.Key))
	for i, k := range e.Key {
		keys[i] = quote(k)
	}
	cols = append(cols, "UNIQUE("+strings.Join(keys, ", ")+")")

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS main.%s (\n\t%s\n)", quote(e.Target), strings.Join(cols, ",\n\t"))
}

// TableExists reports whether a warehouse table named name exists.
func (t *Tx) TableExists(ctx context.Context, name string) (bool, error) {
	return tableExists(ctx, t.tx, name)
}

// TableExists reports whether a warehouse table named name exists.
func (s *Store) TableExists(ctx context.Context, name string) (bool, error) {
	return tableExists(ctx, s.db, name)
}

func tableExists(ctx context.Context, qr queryer, name string) (bool, error) {
	var n int
	if err := sqlx.GetContext(ctx, qr, &n, `
		SELECT COUNT(*) FROM main.sqlite_master
		WHERE type = 'table' AND name = ?
	`, name); err != nil {
		return false, fmt.Errorf("table exists %s: %w", name, err)
	}
	return n > 0, nil
}

// LookupTargets fetches the stored rows of e whose natural key is in keys,
// indexed by ir.KeyOf of the key values. Keys are looked up in batches.
//
// Stored key values are coerced with the attribute's declared type so the
// returned index keys match the keys of freshly extracted candidates.
func (t *Tx) LookupTargets(ctx context.Context, c *querysql.SQLCompiler, e *ir.Entity, keys [][]ir.Value) (map[string]ir.TargetRow, error) {
	out := make(map[string]ir.TargetRow, len(keys))

	keyTypes := make([]ir.AttrType, len(e.Key))
	for i, k := range e.Key {
		a, ok := e.Attribute(k)
		if !ok {
			return nil, fmt.Errorf("lookup %s: key %q is not an attribute", e.Target, k)
		}
		keyTypes[i] = a.Type
	}

	for start := 0; start < len(keys); start += lookupBatchSize {
		end := min(start+lookupBatchSize, len(keys))

		query, params, err := c.Compile(queryir.Lookup(e, keys[start:end]))
		if err != nil {
			return nil, fmt.Errorf("lookup %s: %w", e.Target, err)
		}
		if err := t.scanTargets(ctx, query, params, keyTypes, out); err != nil {
			return nil, fmt.Errorf("lookup %s: %w", e.Target, err)
		}
	}
	return out, nil
}

func (t *Tx) scanTargets(ctx context.Context, query string, params []any, keyTypes []ir.AttrType, out map[string]ir.TargetRow) error {
	rows, err := t.tx.QueryxContext(ctx, query, params...)
	if err != nil {
		return err
	}
	defer rows.Close()

	n := len(keyTypes)
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		if len(vals) != n+5 {
			return fmt.Errorf("scan: got %d columns, want %d", len(vals), n+5)
		}

		id, ok := vals[0].(int64)
		if !ok {
			return fmt.Errorf("scan: dwh_id is %T", vals[0])
		}

		keyVals := make([]ir.Value, n)
		for i, typ := range keyTypes {
			v, err := ir.Coerce(typ, vals[1+i])
			if err != nil {
				return fmt.Errorf("scan key of row %d: %w", id, err)
			}
			keyVals[i] = v
		}
		key, err := ir.KeyOf(keyVals)
		if err != nil {
			return fmt.Errorf("scan key of row %d: %w", id, err)
		}

		out[key] = ir.TargetRow{
			DwhID:      id,
			Key:        key,
			Hash:       textOf(vals[n+1]),
			ValidFrom:  textOf(vals[n+2]),
			ModifiedAt: textOf(vals[n+3]),
			ValidTo:    optionalText(vals[n+4]),
		}
	}
	return rows.Err()
}

// InsertTarget inserts a new row for candidate c and returns its surrogate
// key. valid_from = modified_at = now. The row starts active unless closeAt
// is non-empty, in which case it is born closed at closeAt.
func (t *Tx) InsertTarget(ctx context.Context, e *ir.Entity, c ir.Candidate, now, closeAt string) (int64, error) {
	cols := make([]string, 0, len(e.Attributes)+4)
	args := make([]any, 0, len(e.Attributes)+4)
	for i, a := range e.Attributes {
		cols = append(cols, quote(a.Name))
		args = append(args, ir.Param(c.Values[i]))
	}
	cols = append(cols, quote(ColHash), quote(ColValidFrom), quote(ColModifiedAt), quote(ColValidTo))
	args = append(args, c.Hash, now, now, nullIfEmpty(closeAt))

	stmt := fmt.Sprintf("INSERT INTO main.%s (%s) VALUES (%s)",
		quote(e.Target),
		strings.Join(cols, ", "),
		placeholders(len(cols)))

	res, err := t.tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s %s: %w", e.Target, c.Key, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert %s %s: last insert id: %w", e.Target, c.Key, err)
	}
	return id, nil
}

// OverwriteTarget rewrites every attribute and the hash of row id in place.
// When closeAt is non-empty and the row is still active it is closed at
// closeAt; an already closed row keeps its valid_to.
func (t *Tx) OverwriteTarget(ctx context.Context, e *ir.Entity, id int64, c ir.Candidate, now, closeAt string) error {
	sets := make([]string, 0, len(e.Attributes)+3)
	args := make([]any, 0, len(e.Attributes)+4)
	for i, a := range e.Attributes {
		sets = append(sets, quote(a.Name)+" = ?")
		args = append(args, ir.Param(c.Values[i]))
	}
	sets = append(sets,
		quote(ColHash)+" = ?",
		quote(ColModifiedAt)+" = ?",
		fmt.Sprintf("%s = COALESCE(%s, ?)", quote(ColValidTo), quote(ColValidTo)),
	)
	args = append(args, c.Hash, now, nullIfEmpty(closeAt), id)

	stmt := fmt.Sprintf("UPDATE main.%s SET %s WHERE %s = ?",
		quote(e.Target), strings.Join(sets, ", "), quote(ColID))

	if _, err := t.tx.ExecContext(ctx, stmt, args...); err != nil {
		return fmt.Errorf("overwrite %s %s: %w", e.Target, c.Key, err)
	}
	return nil
}

// CloseTarget sets valid_to on an active row. Closed rows are left alone.
func (t *Tx) CloseTarget(ctx context.Context, e *ir.Entity, id int64, now string) error {
	stmt := fmt.Sprintf("UPDATE main.%s SET %s = ?, %s = ? WHERE %s = ? AND %s IS NULL",
		quote(e.Target), quote(ColValidTo), quote(ColModifiedAt), quote(ColID), quote(ColValidTo))

	if _, err := t.tx.ExecContext(ctx, stmt, now, now, id); err != nil {
		return fmt.Errorf("close %s row %d: %w", e.Target, id, err)
	}
	return nil
}

// FindRow returns the stored row of e with the given natural key as a
// column-name map, or nil when no row matches.
func (s *Store) FindRow(ctx context.Context, e *ir.Entity, key []ir.Value) (map[string]any, error) {
	if len(key) != len(e.Key) {
		return nil, fmt.Errorf("find %s: got %d key values, want %d", e.Target, len(key), len(e.Key))
	}

	conds := make([]string, len(e.Key))
	args := make([]any, len(e.Key))
	for i, k := range e.Key {
		conds[i] = quote(k) + " = ?"
		args[i] = ir.Param(key[i])
	}
	stmt := fmt.Sprintf("SELECT * FROM main.%s WHERE %s", quote(e.Target), strings.Join(conds, " AND "))

	rows, err := s.db.QueryxContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", e.Target, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	row := make(map[string]any)
	if err := rows.MapScan(row); err != nil {
		return nil, fmt.Errorf("find %s: scan: %w", e.Target, err)
	}
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		}
	}
	return row, nil
}

// CountRows returns the number of rows in a warehouse table, or 0 when the
// table does not exist.
func (s *Store) CountRows(ctx context.Context, table string) (int, error) {
	ok, err := s.TableExists(ctx, table)
	if err != nil || !ok {
		return 0, err
	}
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM main."+quote(table)); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func textOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func optionalText(v any) *string {
	if v == nil {
		return nil
	}
	s := textOf(v)
	return &s
}
