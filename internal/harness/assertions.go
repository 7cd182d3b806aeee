package harness

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/pitwall/internal/ir"
	"github.com/roach88/pitwall/internal/store"
)

// Special expected values.
const (
	// valueSet matches any non-null column value.
	valueSet = "@set"
	// stepRefPrefix introduces "@step:N", the run start of step N.
	stepRefPrefix = "@step:"
	// watermarkEpoch is the watermark of a process that never completed.
	watermarkEpoch = "epoch"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Subject  string // Entity or process under test
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Subject != "" {
		fmt.Fprintf(&buf, " (%s)", e.Subject)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext provides the warehouse and scenario facts assertions
// evaluate against.
type AssertionContext struct {
	Ctx       context.Context
	Store     *store.Store
	Entities  []ir.Entity
	StepTimes []time.Time // run start of each step, in order
}

// EvaluateAssertions evaluates all assertions against the final state.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error
		if actx == nil || actx.Store == nil {
			err = fmt.Errorf("assertion[%d]: %s requires database context", i, assertion.Type)
		} else {
			switch assertion.Type {
			case AssertRow:
				err = assertRow(actx, assertion)
			case AssertRowCount:
				err = assertRowCount(actx, assertion)
			case AssertWatermark:
				err = assertWatermark(actx, assertion)
			case AssertRunLogCount:
				err = assertRunLogCount(actx, assertion)
			default:
				err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
			}
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// assertRow finds the row of an entity by natural key and checks the
// expected columns (subset semantics), or asserts the row is absent.
func assertRow(actx *AssertionContext, a Assertion) error {
	e, err := findEntity(actx.Entities, a.Entity)
	if err != nil {
		return err
	}
	key, err := keyValues(e, a.Key)
	if err != nil {
		return fmt.Errorf("row assertion on %s: %w", a.Entity, err)
	}

	row, err := actx.Store.FindRow(actx.Ctx, e, key)
	if err != nil {
		return &AssertionError{
			Type:     AssertRow,
			Subject:  a.Entity,
			Expected: fmt.Sprintf("row with key %v", a.Key),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	if a.Absent {
		if row != nil {
			return &AssertionError{
				Type:     AssertRow,
				Subject:  a.Entity,
				Expected: fmt.Sprintf("no row with key %v", a.Key),
				Actual:   fmt.Sprintf("row found with dwh_id %v", row[store.ColID]),
			}
		}
		return nil
	}
	if row == nil {
		return &AssertionError{
			Type:     AssertRow,
			Subject:  a.Entity,
			Expected: fmt.Sprintf("row with key %v", a.Key),
			Actual:   "row not found",
		}
	}

	for _, col := range sortedKeys(a.Expect) {
		actual, exists := row[col]
		if !exists {
			return &AssertionError{
				Type:     AssertRow,
				Subject:  a.Entity,
				Expected: fmt.Sprintf("column %q to exist", col),
				Actual:   fmt.Sprintf("columns: %v", sortedKeys(row)),
			}
		}

		expected, err := resolveExpected(a.Expect[col], actx.StepTimes)
		if err != nil {
			return fmt.Errorf("row assertion on %s: column %s: %w", a.Entity, col, err)
		}
		if !stateValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertRow,
				Subject:  fmt.Sprintf("%s %v", a.Entity, a.Key),
				Expected: fmt.Sprintf("column %q = %v (type %T)", col, expected, expected),
				Actual:   fmt.Sprintf("column %q = %v (type %T)", col, actual, actual),
			}
		}
	}
	return nil
}

func assertRowCount(actx *AssertionContext, a Assertion) error {
	e, err := findEntity(actx.Entities, a.Entity)
	if err != nil {
		return err
	}
	n, err := actx.Store.CountRows(actx.Ctx, e.Target)
	if err != nil {
		return fmt.Errorf("row_count assertion on %s: %w", a.Entity, err)
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertRowCount,
			Subject:  a.Entity,
			Expected: fmt.Sprintf("%d rows in %s", *a.Count, e.Target),
			Actual:   fmt.Sprintf("%d rows", n),
		}
	}
	return nil
}

func assertWatermark(actx *AssertionContext, a Assertion) error {
	var want time.Time
	switch {
	case a.Equals == watermarkEpoch:
		want = ir.Epoch
	case strings.HasPrefix(a.Equals, stepRefPrefix):
		n, err := resolveStepRef(a.Equals, len(actx.StepTimes))
		if err != nil {
			return fmt.Errorf("watermark assertion on %s: %w", a.Process, err)
		}
		want = actx.StepTimes[n-1]
	default:
		t, err := time.Parse(time.RFC3339, a.Equals)
		if err != nil {
			return fmt.Errorf("watermark assertion on %s: %w", a.Process, err)
		}
		want = t
	}

	got, err := actx.Store.GetWatermark(actx.Ctx, a.Process)
	if err != nil {
		return fmt.Errorf("watermark assertion on %s: %w", a.Process, err)
	}
	if !got.Equal(want) {
		return &AssertionError{
			Type:     AssertWatermark,
			Subject:  a.Process,
			Expected: ir.FormatTime(want),
			Actual:   ir.FormatTime(got),
		}
	}
	return nil
}

func assertRunLogCount(actx *AssertionContext, a Assertion) error {
	n, err := actx.Store.CountRuns(actx.Ctx, a.Process)
	if err != nil {
		return fmt.Errorf("run_log_count assertion on %s: %w", a.Process, err)
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     AssertRunLogCount,
			Subject:  a.Process,
			Expected: fmt.Sprintf("%d run log entries", *a.Count),
			Actual:   fmt.Sprintf("%d run log entries", n),
		}
	}
	return nil
}

func findEntity(entities []ir.Entity, name string) (*ir.Entity, error) {
	for i := range entities {
		if entities[i].Name == name {
			return &entities[i], nil
		}
	}
	return nil, fmt.Errorf("unknown entity %q", name)
}

// keyValues coerces YAML key values with the key attributes' types.
func keyValues(e *ir.Entity, raw []any) ([]ir.Value, error) {
	if len(raw) != len(e.Key) {
		return nil, fmt.Errorf("got %d key values, want %d (%s)", len(raw), len(e.Key), strings.Join(e.Key, ", "))
	}
	out := make([]ir.Value, len(raw))
	for i, name := range e.Key {
		attr, ok := e.Attribute(name)
		if !ok {
			return nil, fmt.Errorf("key %q is not an attribute", name)
		}
		v, err := ir.Coerce(attr.Type, normalizeYAML(raw[i]))
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", name, err)
		}
		out[i] = v
	}
	return out, nil
}

// normalizeYAML maps yaml.v3 scalars onto the types database/sql returns.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case uint64:
		return int64(val)
	default:
		return v
	}
}

// resolveStepRef parses "@step:N" and checks 1 <= N <= steps. Strings
// without the prefix resolve to 0.
func resolveStepRef(s string, steps int) (int, error) {
	if !strings.HasPrefix(s, stepRefPrefix) {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(s, stepRefPrefix))
	if err != nil {
		return 0, fmt.Errorf("malformed step reference %q", s)
	}
	if n < 1 || n > steps {
		return 0, fmt.Errorf("step reference %q out of range (1..%d)", s, steps)
	}
	return n, nil
}

// resolveExpected replaces step references with the step's stored
// timestamp rendering.
func resolveExpected(v any, times []time.Time) (any, error) {
	s, ok := v.(string)
	if !ok {
		return normalizeYAML(v), nil
	}
	n, err := resolveStepRef(s, len(times))
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return s, nil
	}
	return ir.FormatTime(times[n-1]), nil
}

// stateValuesEqual compares an expected YAML value with a warehouse column.
// Handles type coercion for SQLite values which may be returned as different types.
func stateValuesEqual(expected, actual any) bool {
	if expected == valueSet {
		return actual != nil
	}
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}

	switch exp := expected.(type) {
	case string:
		switch act := actual.(type) {
		case string:
			return exp == act
		case time.Time:
			return exp == ir.FormatTime(act)
		}
		return false
	case int64:
		switch act := actual.(type) {
		case int64:
			return exp == act
		case float64:
			return float64(exp) == act
		}
		return false
	case float64:
		switch act := actual.(type) {
		case float64:
			return exp == act
		case int64:
			return exp == float64(act)
		case string:
			// Decimals are stored as canonical text
			f, err := strconv.ParseFloat(act, 64)
			return err == nil && f == exp
		}
		return false
	case bool:
		// SQLite stores booleans as integers
		if act, ok := actual.(int64); ok {
			return exp == (act != 0)
		}
		if act, ok := actual.(bool); ok {
			return exp == act
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
