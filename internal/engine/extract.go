package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/pitwall/internal/ir"
	"github.com/roach88/pitwall/internal/queryir"
	"github.com/roach88/pitwall/internal/querysql"
	"github.com/roach88/pitwall/internal/store"
)

// extract runs the change-extraction query of e inside tx and returns the
// normalized candidates in natural key order.
//
// A candidate is any source record whose latest modification across the
// joined rows is after windowStart. Records whose inner-joined parent has
// no target row are excluded by the join and simply wait for a later run.
func extract(ctx context.Context, tx *store.Tx, c *querysql.SQLCompiler, e *ir.Entity, windowStart time.Time) ([]ir.Candidate, error) {
	query, params, err := c.Compile(queryir.ForEntity(e, ir.FormatTime(windowStart)))
	if err != nil {
		return nil, fmt.Errorf("compile extraction: %w", err)
	}

	rows, err := tx.Queryx(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	defer rows.Close()

	var out []ir.Candidate
	for rows.Next() {
		raw, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("extract: scan: %w", err)
		}
		cand, err := newCandidate(e, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, cand)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}

	if err := checkCandidates(e, out); err != nil {
		return nil, err
	}
	return out, nil
}

// newCandidate normalizes one extracted row: attributes in declaration
// order, then the max modified time, then the coalesced end marker.
func newCandidate(e *ir.Entity, raw []any) (ir.Candidate, error) {
	n := len(e.Attributes)
	if len(raw) != n+2 {
		return ir.Candidate{}, fmt.Errorf("extract: got %d columns, want %d", len(raw), n+2)
	}

	values := make([]ir.Value, n)
	for i, a := range e.Attributes {
		v, err := ir.Coerce(a.Type, raw[i])
		if err != nil {
			return ir.Candidate{}, NewInvalidCandidateError(e.Name, a.Name, err)
		}
		values[i] = v
	}

	c := ir.Candidate{Values: values}

	for _, i := range e.KeyIndexes() {
		if ir.IsNull(values[i]) {
			return ir.Candidate{}, NewInvalidCandidateError(e.Name, e.Attributes[i].Name, fmt.Errorf("natural key attribute is null"))
		}
	}

	key, err := ir.KeyOf(c.KeyValues(e))
	if err != nil {
		return ir.Candidate{}, NewInvalidCandidateError(e.Name, "key", err)
	}
	c.Key = key

	hashIdx := e.HashIndexes()
	hashVals := make([]ir.Value, len(hashIdx))
	for i, j := range hashIdx {
		hashVals[i] = values[j]
	}
	hash, err := ir.RowHash(hashVals)
	if err != nil {
		return ir.Candidate{}, NewInvalidCandidateError(e.Name, "hash", err)
	}
	c.Hash = hash

	modified, err := ir.Coerce(ir.TypeTimestamp, raw[n])
	if err != nil {
		return ir.Candidate{}, NewInvalidCandidateError(e.Name, querysql.ColModifiedAt, err)
	}
	if ts, ok := modified.(ir.Timestamp); ok {
		c.ModifiedAt = string(ts)
	}

	validTo, err := ir.Coerce(ir.TypeTimestamp, raw[n+1])
	if err != nil {
		return ir.Candidate{}, NewInvalidCandidateError(e.Name, querysql.ColValidTo, err)
	}
	if ts, ok := validTo.(ir.Timestamp); ok {
		s := string(ts)
		c.SourceValidTo = &s
	}

	return c, nil
}

// checkCandidates rejects extractions that return the same natural key
// twice. Keys are compared after normalization, so two source spellings of
// one NFC string collide too.
func checkCandidates(e *ir.Entity, cands []ir.Candidate) error {
	seen := make(map[string]int, len(cands))
	var dups []string
	for _, c := range cands {
		seen[c.Key]++
		if seen[c.Key] == 2 {
			dups = append(dups, c.Key)
		}
	}
	if len(dups) > 0 {
		return NewDuplicateKeyError(e.Name, dups)
	}
	return nil
}
