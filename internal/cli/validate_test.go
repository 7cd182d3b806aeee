package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidCatalogs(t *testing.T) {
	tests := []struct {
		dir  string
		want string
	}{
		{miniCatalog, "✓ 5 entities valid"},
		{warehouseCatalog, "✓ 9 entities valid"},
	}

	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			out, err := execute(t, "validate", tt.dir)
			require.NoError(t, err)
			assert.Contains(t, out, tt.want)
		})
	}
}

func TestValidate_JSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", miniCatalog)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 5, resp.Data.Entities)
}

func TestValidate_ReportsEveryError(t *testing.T) {
	dir := writeCatalog(t, `
package bad

entity: country: {
	policy: "sometimes"
	target: "dim_country"
	attributes: country_name: "c.name"
	source: from: {table: "countries", as: "c"}
}

entity: race: {
	policy: "immutable"
	target: "dim_race"
	key: ["race_date"]
	attributes: {
		race_date: {type: "date", from: "r.date"}
		circuit_id: {
			type: "ref"
			parent: {entity: "circuit", match: {circuit_name: "r.circuit"}}
		}
	}
	source: from: {table: "races", as: "r"}
}
`)

	out, err := execute(t, "--format", "json", "validate", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	codes := make(map[string]bool)
	for _, e := range resp.Data.Errors {
		codes[e.Code] = true
	}
	assert.True(t, codes["E108"], "invalid policy")
	assert.True(t, codes["E102"], "missing key")
	assert.True(t, codes["E111"], "unknown parent")
}

func TestValidate_TextErrors(t *testing.T) {
	dir := writeCatalog(t, `
package bad

entity: country: {
	policy: "immutable"
	target: "dim_country"
	key: ["alpha3"]
	attributes: country_name: "c.name"
	source: from: {table: "countries", as: "c"}
}
`)

	out, err := execute(t, "validate", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, `[E104] country.key[0]: key attribute "alpha3" is not declared`)
}

func TestValidate_LoadErrors(t *testing.T) {
	tests := []struct {
		name string
		dir  string
		code string
	}{
		{"not found", "/nonexistent/catalog", "E005"},
		{"no files", t.TempDir(), "E003"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, "validate", tt.dir)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.code)
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}
