package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScenario writes content to dir/name.yaml next to an empty catalog
// directory named "catalog".
func writeScenario(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "catalog"), 0755))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validScenario = `
name: test_scenario
description: "Test scenario for validation"
entities: catalog
source:
  - CREATE TABLE countries (name TEXT, modified_at TEXT NOT NULL, valid_to TEXT)
steps:
  - at: "2024-01-10T12:00:00Z"
    load: [country]
    expect:
      country: {inserted: 1, updated: 0}
  - at: "2024-01-11T12:00:00Z"
    source:
      - UPDATE countries SET valid_to = '2024-01-11 00:00:00'
    expect:
      country: {error: INTEGRITY_VIOLATION}
assertions:
  - type: row
    entity: country
    key: [Monaco]
    expect: {dwh_valid_from: "@step:1"}
  - type: watermark
    process: country
    equals: epoch
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, validScenario)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "catalog"), scenario.Entities, "entities resolves relative to the file")
	assert.Len(t, scenario.Source, 1)
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, []string{"country"}, scenario.Steps[0].Load)
	assert.Equal(t, int64(1), *scenario.Steps[0].Expect["country"].Inserted)
	assert.Equal(t, int64(0), *scenario.Steps[0].Expect["country"].Updated)
	assert.Nil(t, scenario.Steps[1].Expect["country"].Inserted)
	assert.Equal(t, "INTEGRITY_VIOLATION", scenario.Steps[1].Expect["country"].Error)
	assert.True(t, scenario.Steps[1].loadsAll())
	require.Len(t, scenario.Assertions, 2)
	assert.Equal(t, []any{"Monaco"}, scenario.Assertions[0].Key)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_MalformedYAML(t *testing.T) {
	path := writeScenario(t, "name: [unclosed\n")
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, validScenario+"assertion: []\n")
	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion")
}

func TestLoadScenario_MissingEntitiesDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validScenario), 0644))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entities directory not found")
}

func TestValidateScenario(t *testing.T) {
	catalog := t.TempDir()
	count := func(n int) *int { return &n }

	base := func() Scenario {
		return Scenario{
			Name:        "s",
			Description: "d",
			Entities:    catalog,
			Steps:       []Step{{At: "2024-01-10T12:00:00Z"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Scenario)
		wantErr string
	}{
		{"valid", func(*Scenario) {}, ""},
		{"no name", func(s *Scenario) { s.Name = "" }, "name is required"},
		{"no description", func(s *Scenario) { s.Description = "" }, "description is required"},
		{"no entities", func(s *Scenario) { s.Entities = "" }, "entities directory is required"},
		{"no steps", func(s *Scenario) { s.Steps = nil }, "steps list is required"},
		{"step without at", func(s *Scenario) { s.Steps[0].At = "" }, "steps[0]: at is required"},
		{"step with bad at", func(s *Scenario) { s.Steps[0].At = "yesterday" }, "RFC 3339"},
		{"assertion without type", func(s *Scenario) {
			s.Assertions = []Assertion{{}}
		}, "type is required"},
		{"unknown assertion", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: "trace_contains"}}
		}, `unknown assertion type "trace_contains"`},
		{"row without key", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertRow, Entity: "country", Expect: map[string]any{"a": 1}}}
		}, "key is required"},
		{"row without expect", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertRow, Entity: "country", Key: []any{"x"}}}
		}, "expect is required"},
		{"absent row", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertRow, Entity: "country", Key: []any{"x"}, Absent: true}}
		}, ""},
		{"row step ref out of range", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertRow, Entity: "country", Key: []any{"x"}, Expect: map[string]any{"dwh_valid_from": "@step:2"}}}
		}, "out of range"},
		{"row_count without count", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertRowCount, Entity: "country"}}
		}, "count is required"},
		{"negative run_log_count", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertRunLogCount, Process: "country", Count: count(-1)}}
		}, "count is required"},
		{"watermark without equals", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertWatermark, Process: "country"}}
		}, "equals is required"},
		{"watermark malformed step ref", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertWatermark, Process: "country", Equals: "@step:one"}}
		}, "malformed step reference"},
		{"watermark step ref", func(s *Scenario) {
			s.Assertions = []Assertion{{Type: AssertWatermark, Process: "country", Equals: "@step:1"}}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base()
			tt.mutate(&s)
			err := validateScenario(&s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStepLoadsAll(t *testing.T) {
	assert.True(t, Step{}.loadsAll())
	assert.True(t, Step{Load: []string{"all"}}.loadsAll())
	assert.False(t, Step{Load: []string{"country"}}.loadsAll())
	assert.False(t, Step{Load: []string{"all", "country"}}.loadsAll())
}
