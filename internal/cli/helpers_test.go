package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

const (
	miniCatalog      = "../harness/testdata/catalogs/mini"
	warehouseCatalog = "../../warehouse/f1"
	harnessScenarios = "../harness/testdata/scenarios"
)

// execute runs the root command with args and returns stdout and the error.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// newSourceDB creates a SQLite source database populated by stmts.
func newSourceDB(t *testing.T, stmts ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "source.db")
	db, err := sqlx.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	return path
}

// countrySource holds two countries for the mini catalog's country entity.
func countrySource(t *testing.T) string {
	t.Helper()
	return newSourceDB(t,
		`CREATE TABLE countries (name TEXT, alpha3 TEXT, modified_at TEXT NOT NULL, valid_to TEXT)`,
		`INSERT INTO countries VALUES ('Monaco', 'MCO', '2024-01-09 08:00:00', NULL)`,
		`INSERT INTO countries VALUES ('Italy', 'ITA', '2024-01-09 08:00:00', NULL)`,
	)
}

// writeCatalog writes a one-file CUE catalog into a temp directory.
func writeCatalog(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "catalog.cue"), []byte(content), 0644))
	return dir
}
