package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a warehouse load scenario.
// A scenario seeds a source database, then runs a sequence of load steps
// against a catalog, each at a fixed wall time, and asserts on the
// per-step outcomes and the final warehouse state.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file and
	// prefixes run ids.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Entities is the CUE catalog directory, relative to the scenario file.
	Entities string `yaml:"entities"`

	// Source holds SQL statements that create and seed the source database
	// before the first step.
	Source []string `yaml:"source"`

	// Steps run in order. Each step moves the clock, applies source
	// mutations and loads entities.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final warehouse state.
	// Supported types: row, row_count, watermark, run_log_count
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one load run.
type Step struct {
	// At is the run start (RFC 3339). It becomes valid_from/modified_at of
	// the rows the run touches and the new watermark on success.
	At string `yaml:"at"`

	// Source holds SQL mutations applied to the source before loading.
	Source []string `yaml:"source,omitempty"`

	// Load names the entities to load; ["all"] or empty loads the whole
	// catalog.
	Load []string `yaml:"load,omitempty"`

	// Expect maps entity names to their expected outcome in this step.
	// Entities not listed are not checked.
	Expect map[string]LoadExpect `yaml:"expect,omitempty"`
}

// LoadExpect is the expected outcome of one entity load.
// Counts are only compared when set; Error is the expected LoadError code,
// empty meaning success.
type LoadExpect struct {
	Inserted *int64 `yaml:"inserted,omitempty"`
	Updated  *int64 `yaml:"updated,omitempty"`
	Error    string `yaml:"error,omitempty"`
}

// Assertion validates final warehouse state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "row": Find a row by natural key and verify column values
	// - "row_count": Count rows in an entity's target table
	// - "watermark": Verify a process watermark
	// - "run_log_count": Count run log entries of a process
	Type string `yaml:"type"`

	// Entity names the catalog entity (row, row_count).
	Entity string `yaml:"entity,omitempty"`

	// Key is the natural key of the row, in key attribute order (row).
	Key []any `yaml:"key,omitempty"`

	// Absent asserts that no row with Key exists (row).
	Absent bool `yaml:"absent,omitempty"`

	// Expect contains expected column values (row).
	// Subset match - only specified columns are validated.
	// "@set" matches any non-null value; "@step:N" matches the run start
	// of step N (1-based).
	Expect map[string]any `yaml:"expect,omitempty"`

	// Process names the watermark or run log process (watermark,
	// run_log_count).
	Process string `yaml:"process,omitempty"`

	// Equals is the expected watermark: an RFC 3339 time, "epoch" or
	// "@step:N" (watermark).
	Equals string `yaml:"equals,omitempty"`

	// Count is the expected number of rows or run log entries
	// (row_count, run_log_count).
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertRow         = "row"
	AssertRowCount    = "row_count"
	AssertWatermark   = "watermark"
	AssertRunLogCount = "run_log_count"
)

// loadAll is the Step.Load value selecting the whole catalog.
const loadAll = "all"

// LoadScenario reads and parses a scenario YAML file, resolving the
// entities directory relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the entities directory relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Entities != "" && !filepath.IsAbs(scenario.Entities) && basePath != "" {
		scenario.Entities = filepath.Join(basePath, scenario.Entities)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Entities == "" {
		return fmt.Errorf("entities directory is required")
	}
	if info, err := os.Stat(s.Entities); err != nil || !info.IsDir() {
		return fmt.Errorf("entities directory not found: %s", s.Entities)
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.At == "" {
			return fmt.Errorf("steps[%d]: at is required", i)
		}
		if _, err := time.Parse(time.RFC3339, step.At); err != nil {
			return fmt.Errorf("steps[%d]: at must be RFC 3339: %w", i, err)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i], len(s.Steps)); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps int) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRow:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for row", index)
		}
		if len(a.Key) == 0 {
			return fmt.Errorf("assertions[%d]: key is required for row", index)
		}
		if !a.Absent && len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for row (or absent: true)", index)
		}
		for col, v := range a.Expect {
			if s, ok := v.(string); ok {
				if _, err := resolveStepRef(s, steps); err != nil {
					return fmt.Errorf("assertions[%d]: expect.%s: %w", index, col, err)
				}
			}
		}
	case AssertRowCount:
		if a.Entity == "" {
			return fmt.Errorf("assertions[%d]: entity is required for row_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for row_count", index)
		}
	case AssertWatermark:
		if a.Process == "" {
			return fmt.Errorf("assertions[%d]: process is required for watermark", index)
		}
		if a.Equals == "" {
			return fmt.Errorf("assertions[%d]: equals is required for watermark", index)
		}
		if _, err := resolveStepRef(a.Equals, steps); err != nil {
			return fmt.Errorf("assertions[%d]: equals: %w", index, err)
		}
	case AssertRunLogCount:
		if a.Process == "" {
			return fmt.Errorf("assertions[%d]: process is required for run_log_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for run_log_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// loadsAll reports whether the step selects the whole catalog.
func (s Step) loadsAll() bool {
	return len(s.Load) == 0 || (len(s.Load) == 1 && s.Load[0] == loadAll)
}
