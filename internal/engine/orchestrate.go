package engine

import (
	"context"
	"time"

	"github.com/roach88/pitwall/internal/compiler"
	"github.com/roach88/pitwall/internal/ir"
)

// Report is the per-entity outcome of LoadAll.
type Report struct {
	Entity   string  `json:"entity"`
	Kind     ir.Kind `json:"kind"`
	Inserted int64   `json:"inserted"`
	Updated  int64   `json:"updated"`
	Attempts int     `json:"attempts"`
	Err      error   `json:"-"`
}

// Failed reports whether the entity load failed.
func (r Report) Failed() bool {
	return r.Err != nil
}

// LoadAll loads entities phase by phase (order, nil means dimensions then
// facts). Within a phase parents load before the entities referencing
// them. A failing entity is reported and the remaining entities still
// load; an entity whose parent failed loads against whatever parent rows
// already exist.
//
// The returned error is only non-nil when no plan can be built (cycle,
// kind outside the phase order).
func (e *Engine) LoadAll(ctx context.Context, entities []ir.Entity, order []ir.Kind) ([]Report, error) {
	plan, err := compiler.BuildPlan(entities, order)
	if err != nil {
		return nil, err
	}

	e.logger.Info("load plan", "entities", plan.Names())

	reports := make([]Report, 0, len(plan.Entities))
	for i := range plan.Entities {
		ent := &plan.Entities[i]
		r := Report{Entity: ent.Name, Kind: ent.Kind}

		if err := ctx.Err(); err != nil {
			r.Err = err
			reports = append(reports, r)
			continue
		}

		res, attempts, err := e.loadWithRetry(ctx, ent)
		r.Attempts = attempts
		if err != nil {
			r.Err = err
		} else {
			r.Inserted, r.Updated = res.Inserted, res.Updated
		}
		reports = append(reports, r)
	}
	return reports, nil
}

func (e *Engine) loadWithRetry(ctx context.Context, ent *ir.Entity) (Result, int, error) {
	attempts := 0
	for {
		attempts++
		res, err := e.Load(ctx, ent)
		if err == nil || !IsTransient(err) || attempts > e.retries {
			return res, attempts, err
		}

		e.logger.Warn("transient failure, retrying",
			"entity", ent.Name,
			"attempt", attempts,
			"delay", e.retryDelay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return Result{}, attempts, ctx.Err()
		case <-time.After(e.retryDelay):
		}
	}
}

// SelectEntities returns the named entities in catalog order. An empty
// names list selects everything. Unknown names fail with UNKNOWN_ENTITY.
func SelectEntities(entities []ir.Entity, names []string) ([]ir.Entity, error) {
	if len(names) == 0 {
		return entities, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []ir.Entity
	for _, ent := range entities {
		if want[ent.Name] {
			out = append(out, ent)
			delete(want, ent.Name)
		}
	}
	for _, n := range names {
		if want[n] {
			return nil, NewUnknownEntityError(n)
		}
	}
	return out, nil
}
