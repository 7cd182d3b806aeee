package compiler

import (
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/pitwall/internal/ir"
)

// Phase is one orchestration phase: every entity of a kind, in load order.
type Phase struct {
	Kind     ir.Kind  `json:"kind"`
	Entities []string `json:"entities"`
}

// Plan is the load order for a catalog.
type Plan struct {
	Phases   []Phase     `json:"phases"`
	Entities []ir.Entity `json:"-"` // flattened load order
}

// PlanError reports why no load order exists. Code is an E1xx
// validation code.
type PlanError struct {
	Code    string
	Message string
}

func (e *PlanError) Error() string {
	return "plan: " + e.Message
}

// PlanErrorCode returns the code of a BuildPlan error, or ErrCodeGeneric
// for any other error.
func PlanErrorCode(err error) string {
	var pe *PlanError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeGeneric
}

// Names returns the flattened load order by entity name.
func (p *Plan) Names() []string {
	out := make([]string, 0, len(p.Entities))
	for _, e := range p.Entities {
		out = append(out, e.Name)
	}
	return out
}

// BuildPlan orders entities into phases. Phases follow order (nil means
// ir.DefaultPhaseOrder). Within a phase a referenced entity always precedes
// the entities referencing it; ties keep declaration order.
//
// Returns an error when an entity's kind is missing from order, when an
// entity references a parent scheduled in a later phase, or when parent
// references form a cycle.
func BuildPlan(entities []ir.Entity, order []ir.Kind) (*Plan, error) {
	if order == nil {
		order = ir.DefaultPhaseOrder
	}

	phaseOf := make(map[ir.Kind]int, len(order))
	for i, k := range order {
		if _, dup := phaseOf[k]; dup {
			return nil, &PlanError{Code: ErrInvalidPhaseOrder, Message: fmt.Sprintf("phase %q listed twice", k)}
		}
		phaseOf[k] = i
	}

	if cycles := AnalyzeCycles(entities); len(cycles) > 0 {
		return nil, &PlanError{Code: ErrDependencyCycle, Message: cycles[0].Message}
	}

	byName := make(map[string]*ir.Entity, len(entities))
	for i := range entities {
		e := &entities[i]
		if _, ok := phaseOf[e.Kind]; !ok {
			return nil, &PlanError{Code: ErrInvalidPhaseOrder, Message: fmt.Sprintf("entity %s has kind %q which is not in the phase order %v", e.Name, e.Kind, order)}
		}
		byName[e.Name] = e
	}

	for i := range entities {
		e := &entities[i]
		for _, parent := range e.ParentEntities() {
			p, ok := byName[parent]
			if !ok {
				continue
			}
			if phaseOf[p.Kind] > phaseOf[e.Kind] {
				return nil, &PlanError{Code: ErrFactAsParent, Message: fmt.Sprintf("%s %s references %s %s which loads in a later phase", e.Kind, e.Name, p.Kind, p.Name)}
			}
		}
	}

	plan := &Plan{}
	for _, kind := range order {
		var members []*ir.Entity
		for i := range entities {
			if entities[i].Kind == kind {
				members = append(members, &entities[i])
			}
		}

		sorted := topoSort(members)
		phase := Phase{Kind: kind, Entities: []string{}}
		for _, e := range sorted {
			phase.Entities = append(phase.Entities, e.Name)
			plan.Entities = append(plan.Entities, *e)
		}
		plan.Phases = append(plan.Phases, phase)
	}

	return plan, nil
}

// topoSort orders one phase. Parents outside the phase are already loaded
// and impose no constraint. The input is acyclic.
func topoSort(members []*ir.Entity) []*ir.Entity {
	inPhase := make(map[string]bool, len(members))
	for _, e := range members {
		inPhase[e.Name] = true
	}

	placed := make(map[string]bool, len(members))
	out := make([]*ir.Entity, 0, len(members))
	for len(out) < len(members) {
		progressed := false
		for _, e := range members {
			if placed[e.Name] {
				continue
			}
			ready := !slices.ContainsFunc(e.ParentEntities(), func(p string) bool {
				return inPhase[p] && !placed[p] && p != e.Name
			})
			if ready {
				placed[e.Name] = true
				out = append(out, e)
				progressed = true
				break
			}
		}
		if !progressed {
			// Unreachable for acyclic input; keep declaration order for the rest.
			for _, e := range members {
				if !placed[e.Name] {
					placed[e.Name] = true
					out = append(out, e)
				}
			}
		}
	}
	return out
}
