package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pitwall/internal/engine"
)

func TestLoad_Country(t *testing.T) {
	src := countrySource(t)
	db := filepath.Join(t.TempDir(), "dwh.db")

	out, err := execute(t, "load", "--db", db, "--source", src, "--entity", "country", miniCatalog)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ country: 2 inserted, 0 updated")
	assert.Contains(t, out, "Load Summary: 1 loaded, 0 failed, 1 total")

	// The watermark moved past the source records: nothing is new, and the
	// skew re-read finds the rows unchanged.
	out, err = execute(t, "load", "--db", db, "--source", src, "--entity", "country", miniCatalog)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ country: 0 inserted, 0 updated")
}

func TestLoad_JSON(t *testing.T) {
	src := countrySource(t)
	db := filepath.Join(t.TempDir(), "dwh.db")

	out, err := execute(t, "--format", "json", "load", "--db", db, "--source", src, "--entity", "country", miniCatalog)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   LoadSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Loaded)
	require.Len(t, resp.Data.Entities, 1)
	assert.Equal(t, EntityReport{Entity: "country", Kind: "dimension", Inserted: 2, Attempts: 1}, resp.Data.Entities[0])
}

func TestLoad_EnvironmentDefaults(t *testing.T) {
	t.Setenv(EnvDatabase, filepath.Join(t.TempDir(), "dwh.db"))
	t.Setenv(EnvSource, countrySource(t))

	out, err := execute(t, "load", "--entity", "country", miniCatalog)
	require.NoError(t, err)
	assert.Contains(t, out, "2 inserted")
}

func TestLoad_ParentNotLoaded(t *testing.T) {
	src := newSourceDB(t,
		`CREATE TABLE constructors (name TEXT, country TEXT, modified_at TEXT NOT NULL, valid_to TEXT)`,
		`INSERT INTO constructors VALUES ('Ferrari', 'Italy', '2024-01-09 08:00:00', NULL)`,
	)
	db := filepath.Join(t.TempDir(), "dwh.db")

	out, err := execute(t, "--format", "json", "load", "--db", db, "--source", src, "--entity", "constructor", miniCatalog)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string      `json:"status"`
		Data   LoadSummary `json:"data"`
		Error  *CLIError   `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(engine.ErrCodeParentNotLoaded), resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Failed)
	assert.Contains(t, resp.Data.Entities[0].Error, "parent country has not been loaded")
}

func TestLoad_UnknownEntity(t *testing.T) {
	db := filepath.Join(t.TempDir(), "dwh.db")

	out, err := execute(t, "load", "--db", db, "--entity", "pit_stop", miniCatalog)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, string(engine.ErrCodeUnknownEntity))
}

func TestLoad_MissingDatabase(t *testing.T) {
	t.Setenv(EnvDatabase, "")

	_, err := execute(t, "load", miniCatalog)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no warehouse database")
}

func TestLoad_MissingSource(t *testing.T) {
	db := filepath.Join(t.TempDir(), "dwh.db")

	_, err := execute(t, "load", "--db", db, "--source", filepath.Join(t.TempDir(), "nope.db"), miniCatalog)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestLoad_InvalidCatalog(t *testing.T) {
	dir := writeCatalog(t, `
package bad

entity: country: {
	policy: "immutable"
	target: "dim_country"
	attributes: country_name: "c.name"
	source: from: {table: "countries", as: "c"}
}
`)
	db := filepath.Join(t.TempDir(), "dwh.db")

	out, err := execute(t, "load", "--db", db, dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E102")
}

func TestSummarize(t *testing.T) {
	reports := []engine.Report{
		{Entity: "country", Kind: "dimension", Inserted: 3, Attempts: 1},
		{Entity: "race", Kind: "dimension", Attempts: 1, Err: engine.NewIntegrityError("race", []string{`["2024-03-02"]`})},
	}

	s := summarize(reports)
	assert.Equal(t, 1, s.Loaded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, "INTEGRITY_VIOLATION", s.Entities[1].Code)
	assert.Equal(t, []string{`["2024-03-02"]`}, s.Entities[1].Keys)
	assert.Equal(t, "INTEGRITY_VIOLATION", firstFailureCode(s))
}
