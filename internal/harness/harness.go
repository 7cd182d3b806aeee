package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/pitwall/internal/compiler"
	"github.com/roach88/pitwall/internal/engine"
	"github.com/roach88/pitwall/internal/ir"
	"github.com/roach88/pitwall/internal/store"
	"github.com/roach88/pitwall/internal/testutil"
)

// Harness is the scenario execution engine.
// It drives the real load engine with a step clock and sequential run ids
// so that every run of a scenario produces identical reports.
type Harness struct {
	source  *sqlx.DB
	store   *store.Store
	engine  *engine.Engine
	clock   *testutil.StepClock
	runIDs  *testutil.SequentialRunIDs
	catalog []ir.Entity
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh source database and warehouse in a
// temporary directory.
//
// Execution flow:
// 1. Create and seed the source database
// 2. Open the warehouse with the source attached
// 3. Load, link and validate the entity catalog
// 4. Execute steps, comparing each entity outcome with its expect clause
// 5. Evaluate assertions against the final warehouse state
//
// The returned error is reserved for scenarios that cannot run at all
// (bad SQL, invalid catalog); expectation failures are reported in the
// Result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "pitwall-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	h, err := setup(ctx, scenario, dir)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	if err := h.executeSteps(ctx, scenario, result); err != nil {
		return nil, err
	}

	actx := &AssertionContext{
		Ctx:       ctx,
		Store:     h.store,
		Entities:  h.catalog,
		StepTimes: stepTimes(scenario),
	}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

func setup(ctx context.Context, scenario *Scenario, dir string) (*Harness, error) {
	sourcePath := filepath.Join(dir, "source.db")
	src, err := sqlx.Open("sqlite3", sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open source database: %w", err)
	}
	if err := execAll(ctx, src, scenario.Source); err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to seed source: %w", err)
	}

	st, err := store.Open(filepath.Join(dir, "warehouse.db"), store.WithSource(sourcePath))
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to open warehouse: %w", err)
	}

	catalog, err := loadCatalog(scenario.Entities)
	if err != nil {
		src.Close()
		st.Close()
		return nil, err
	}

	first, _ := time.Parse(time.RFC3339, scenario.Steps[0].At)
	clock := testutil.NewStepClock(first)
	runIDs := testutil.NewSequentialRunIDs(scenario.Name)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in scenarios

	eng := engine.New(st,
		engine.WithClock(clock),
		engine.WithRunIDs(runIDs),
		engine.WithLogger(logger),
	)

	return &Harness{
		source:  src,
		store:   st,
		engine:  eng,
		clock:   clock,
		runIDs:  runIDs,
		catalog: catalog,
		logger:  logger,
	}, nil
}

func (h *Harness) close() {
	h.store.Close()
	h.source.Close()
}

// loadCatalog compiles and validates the CUE catalog in dir.
func loadCatalog(dir string) ([]ir.Entity, error) {
	cat, errs := compiler.LoadCatalog(dir, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load catalog %s: %w", dir, errors.Join(errs...))
	}
	if verrs := compiler.ValidateCatalog(cat.Entities); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, v := range verrs {
			msgs[i] = v.Error()
		}
		return nil, fmt.Errorf("invalid catalog %s: %s", dir, strings.Join(msgs, "; "))
	}
	return cat.Entities, nil
}

// executeSteps runs every step in order.
//
// Each step:
// 1. Moves the clock to the step's run start
// 2. Applies source mutations
// 3. Loads the selected entities with the real engine
// 4. Compares each listed expectation with the entity's report
func (h *Harness) executeSteps(ctx context.Context, scenario *Scenario, result *Result) error {
	for i, step := range scenario.Steps {
		n := i + 1
		at, _ := time.Parse(time.RFC3339, step.At)
		h.clock.Set(at)

		if err := execAll(ctx, h.source, step.Source); err != nil {
			return fmt.Errorf("step %d: failed to apply source mutations: %w", n, err)
		}

		entities := h.catalog
		if !step.loadsAll() {
			selected, err := engine.SelectEntities(h.catalog, step.Load)
			if err != nil {
				return fmt.Errorf("step %d: %w", n, err)
			}
			entities = selected
		}

		reports, err := h.engine.LoadAll(ctx, entities, nil)
		if err != nil {
			return fmt.Errorf("step %d: %w", n, err)
		}

		sr := StepReport{Step: n, At: ir.FormatTime(at), Loads: make([]LoadReport, 0, len(reports))}
		for _, r := range reports {
			sr.Loads = append(sr.Loads, toLoadReport(r))
		}
		result.AddStep(sr)

		for _, msg := range checkExpectations(n, step.Expect, sr.Loads) {
			result.AddError(msg)
		}

		h.logger.Info("scenario step completed", "step", n, "at", sr.At, "entities", len(reports))
	}
	return nil
}

func toLoadReport(r engine.Report) LoadReport {
	lr := LoadReport{
		Entity:   r.Entity,
		Inserted: r.Inserted,
		Updated:  r.Updated,
		Attempts: r.Attempts,
	}
	if r.Err == nil {
		return lr
	}

	var le *engine.LoadError
	if errors.As(r.Err, &le) {
		lr.ErrorCode = string(le.Code)
		lr.Error = le.Message
		lr.Keys = le.Keys
	} else {
		lr.Error = r.Err.Error()
	}
	return lr
}

// checkExpectations compares expect clauses with the step's load reports.
func checkExpectations(step int, expect map[string]LoadExpect, loads []LoadReport) []string {
	byEntity := make(map[string]LoadReport, len(loads))
	for _, l := range loads {
		byEntity[l.Entity] = l
	}

	var errs []string
	for _, entity := range sortedKeys(expect) {
		want := expect[entity]
		got, ok := byEntity[entity]
		if !ok {
			errs = append(errs, fmt.Sprintf("step %d: %s was not loaded", step, entity))
			continue
		}

		if want.Error != got.ErrorCode {
			switch {
			case want.Error == "":
				errs = append(errs, fmt.Sprintf("step %d: %s failed: %s %s", step, entity, got.ErrorCode, got.Error))
			case got.ErrorCode == "" && got.Error == "":
				errs = append(errs, fmt.Sprintf("step %d: %s: expected error %s, load succeeded", step, entity, want.Error))
			default:
				errs = append(errs, fmt.Sprintf("step %d: %s: expected error %s, got %s %s", step, entity, want.Error, got.ErrorCode, got.Error))
			}
			continue
		}

		if want.Inserted != nil && *want.Inserted != got.Inserted {
			errs = append(errs, fmt.Sprintf("step %d: %s: expected %d inserted, got %d", step, entity, *want.Inserted, got.Inserted))
		}
		if want.Updated != nil && *want.Updated != got.Updated {
			errs = append(errs, fmt.Sprintf("step %d: %s: expected %d updated, got %d", step, entity, *want.Updated, got.Updated))
		}
	}
	return errs
}

func execAll(ctx context.Context, db *sqlx.DB, statements []string) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return nil
}

func stepTimes(scenario *Scenario) []time.Time {
	out := make([]time.Time, len(scenario.Steps))
	for i, step := range scenario.Steps {
		out[i], _ = time.Parse(time.RFC3339, step.At)
	}
	return out
}
