package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/pitwall/internal/ir"
	"github.com/roach88/pitwall/internal/querysql"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// countryEntity is a single-key mutable dimension.
func countryEntity() *ir.Entity {
	return &ir.Entity{
		Name:   "country",
		Kind:   ir.KindDimension,
		Policy: ir.PolicyMutable,
		Target: "dim_country",
		Key:    []string{"name"},
		Attributes: []ir.Attribute{
			{Name: "name", Type: ir.TypeString, Expr: "c.name"},
			{Name: "code", Type: ir.TypeString, Expr: "c.code"},
		},
		Hash: []string{"name", "code"},
		Source: ir.SourceSpec{
			From: ir.TableRef{Table: "countries", Alias: "c"},
		},
	}
}

// raceEntity is a composite-key immutable dimension.
func raceEntity() *ir.Entity {
	return &ir.Entity{
		Name:   "race",
		Kind:   ir.KindDimension,
		Policy: ir.PolicyImmutable,
		Target: "dim_race",
		Key:    []string{"year", "round"},
		Attributes: []ir.Attribute{
			{Name: "year", Type: ir.TypeInt, Expr: "r.year"},
			{Name: "round", Type: ir.TypeInt, Expr: "r.round"},
			{Name: "date", Type: ir.TypeDate, Expr: "r.date"},
		},
		Hash: []string{"year", "round", "date"},
		Source: ir.SourceSpec{
			From: ir.TableRef{Table: "races", Alias: "r"},
		},
	}
}

// testCandidate builds a keyed, hashed candidate for e from values in
// attribute order.
func testCandidate(t *testing.T, e *ir.Entity, values ...ir.Value) ir.Candidate {
	t.Helper()
	c := ir.Candidate{Values: values, ModifiedAt: "2024-01-01 00:00:00.000000"}

	key, err := ir.KeyOf(c.KeyValues(e))
	if err != nil {
		t.Fatalf("KeyOf() failed: %v", err)
	}
	c.Key = key

	hashVals := make([]ir.Value, 0, len(e.Hash))
	for _, i := range e.HashIndexes() {
		hashVals = append(hashVals, values[i])
	}
	c.Hash = ir.MustRowHash(hashVals)
	return c
}

func testCompiler() *querysql.SQLCompiler {
	return querysql.NewSQLCompiler(SourceSchema)
}
