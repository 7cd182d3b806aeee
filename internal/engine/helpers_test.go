package engine

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pitwall/internal/ir"
	"github.com/roach88/pitwall/internal/store"
)

var testStart = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

const sourceDDL = `
	CREATE TABLE countries (
		name        TEXT,
		code        TEXT,
		modified_at TEXT NOT NULL,
		valid_to    TEXT
	);
	CREATE TABLE circuits (
		ref          TEXT,
		name         TEXT,
		country_name TEXT,
		modified_at  TEXT NOT NULL,
		valid_to     TEXT
	);
	CREATE TABLE races (
		year        INTEGER,
		round       INTEGER,
		name        TEXT,
		date        TEXT,
		circuit_ref TEXT,
		modified_at TEXT NOT NULL,
		valid_to    TEXT
	);
`

// setupTestStore opens a warehouse whose main schema also holds the
// source tables, so extraction reads unqualified table names.
func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "warehouse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	_, err = s.DB().Exec(sourceDDL)
	require.NoError(t, err)
	return s
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine builds an engine with a fixed clock at testStart,
// deterministic run ids and no log output. opts are applied last.
func newTestEngine(s *store.Store, opts ...EngineOption) *Engine {
	base := []EngineOption{
		WithLogger(discardLogger()),
		WithClock(NewFixedClock(testStart)),
		WithRunIDs(NewFixedGenerator()),
	}
	return New(s, append(base, opts...)...)
}

func execSQL(t *testing.T, s *store.Store, query string, args ...any) {
	t.Helper()
	_, err := s.DB().Exec(query, args...)
	require.NoError(t, err)
}

type countryRow struct {
	Name, Code, Modified string
}

func seedCountries(t *testing.T, s *store.Store, rows ...countryRow) {
	t.Helper()
	for _, r := range rows {
		execSQL(t, s, `INSERT INTO countries (name, code, modified_at) VALUES (?, ?, ?)`, r.Name, r.Code, r.Modified)
	}
}

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

func circuitEntity(join ir.JoinKind) *ir.Entity {
	return &ir.Entity{
		Name:   "circuit",
		Kind:   ir.KindDimension,
		Policy: ir.PolicyMutable,
		Target: "dim_circuit",
		Key:    []string{"ref"},
		Attributes: []ir.Attribute{
			{Name: "ref", Type: ir.TypeString, Expr: "ci.ref"},
			{Name: "name", Type: ir.TypeString, Expr: "ci.name"},
			{Name: "country", Type: ir.TypeRef},
		},
		Hash: []string{"ref", "name", "country"},
		Parents: []ir.ParentRef{{
			Attribute: "country",
			Entity:    "country",
			Target:    "dim_country",
			Match:     []ir.MatchClause{{Column: "name", Expr: "ci.country_name"}},
			Join:      join,
		}},
		Source: ir.SourceSpec{
			From: ir.TableRef{Table: "circuits", Alias: "ci"},
		},
	}
}

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
			{Name: "name", Type: ir.TypeString, Expr: "r.name"},
			{Name: "date", Type: ir.TypeDate, Expr: "r.date"},
			{Name: "circuit", Type: ir.TypeRef},
		},
		Hash: []string{"year", "round", "name", "date", "circuit"},
		Parents: []ir.ParentRef{{
			Attribute: "circuit",
			Entity:    "circuit",
			Target:    "dim_circuit",
			Match:     []ir.MatchClause{{Column: "ref", Expr: "r.circuit_ref"}},
			Join:      ir.JoinInner,
		}},
		Source: ir.SourceSpec{
			From: ir.TableRef{Table: "races", Alias: "r"},
		},
	}
}

// candidate builds a keyed, hashed candidate from values in attribute order.
func candidate(t *testing.T, e *ir.Entity, ended bool, values ...ir.Value) ir.Candidate {
	t.Helper()
	c := ir.Candidate{Values: values}

	key, err := ir.KeyOf(c.KeyValues(e))
	require.NoError(t, err)
	c.Key = key

	var hv []ir.Value
	for _, i := range e.HashIndexes() {
		hv = append(hv, values[i])
	}
	c.Hash = ir.MustRowHash(hv)

	if ended {
		end := "2024-01-01 00:00:00.000000"
		c.SourceValidTo = &end
	}
	return c
}
