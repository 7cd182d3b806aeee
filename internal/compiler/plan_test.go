package compiler

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pitwall/internal/ir"
)

// node builds a minimal entity whose only interesting property is its
// parent references.
func node(name string, kind ir.Kind, parents ...string) ir.Entity {
	e := ir.Entity{Name: name, Kind: kind}
	for _, p := range parents {
		e.Parents = append(e.Parents, ir.ParentRef{Attribute: p + "_id", Entity: p})
	}
	return e
}

func TestBuildPlanDimensionsBeforeFacts(t *testing.T) {
	entities := []ir.Entity{
		node("entrant", ir.KindFact, "race", "constructor"),
		node("race", ir.KindDimension, "circuit"),
		node("constructor", ir.KindDimension, "country"),
		node("circuit", ir.KindDimension, "country"),
		node("country", ir.KindDimension),
	}

	plan, err := BuildPlan(entities, nil)
	require.NoError(t, err)

	require.Len(t, plan.Phases, 2)
	assert.Equal(t, ir.KindDimension, plan.Phases[0].Kind)
	assert.Equal(t, []string{"country", "constructor", "circuit", "race"}, plan.Phases[0].Entities)
	assert.Equal(t, ir.KindFact, plan.Phases[1].Kind)
	assert.Equal(t, []string{"entrant"}, plan.Phases[1].Entities)
	assert.Equal(t, []string{"country", "constructor", "circuit", "race", "entrant"}, plan.Names())
}

func TestBuildPlanKeepsDeclarationOrderForIndependentEntities(t *testing.T) {
	entities := []ir.Entity{
		node("tyre_manufacturer", ir.KindDimension),
		node("engine_manufacturer", ir.KindDimension),
		node("country", ir.KindDimension),
	}

	plan, err := BuildPlan(entities, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"tyre_manufacturer", "engine_manufacturer", "country"}, plan.Names())
}

func TestBuildPlanFactReferencingFact(t *testing.T) {
	entities := []ir.Entity{
		node("race_data", ir.KindFact, "entrant"),
		node("entrant", ir.KindFact),
	}

	plan, err := BuildPlan(entities, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"entrant", "race_data"}, plan.Names())
	assert.Empty(t, plan.Phases[0].Entities)
}

func TestBuildPlanCustomOrder(t *testing.T) {
	entities := []ir.Entity{
		node("country", ir.KindDimension),
	}

	plan, err := BuildPlan(entities, []ir.Kind{ir.KindDimension})
	require.NoError(t, err)
	require.Len(t, plan.Phases, 1)
}

func TestBuildPlanErrors(t *testing.T) {
	tests := []struct {
		name     string
		entities []ir.Entity
		order    []ir.Kind
		contains string
		code     string
	}{
		{
			name:     "cycle",
			entities: []ir.Entity{node("a", ir.KindDimension, "b"), node("b", ir.KindDimension, "a")},
			contains: "cycle",
			code:     ErrDependencyCycle,
		},
		{
			name:     "self reference",
			entities: []ir.Entity{node("a", ir.KindDimension, "a")},
			contains: "itself",
			code:     ErrDependencyCycle,
		},
		{
			name:     "kind not in order",
			entities: []ir.Entity{node("f", ir.KindFact)},
			order:    []ir.Kind{ir.KindDimension},
			contains: "not in the phase order",
			code:     ErrInvalidPhaseOrder,
		},
		{
			name:     "parent in later phase",
			entities: []ir.Entity{node("d", ir.KindDimension, "f"), node("f", ir.KindFact)},
			contains: "later phase",
			code:     ErrFactAsParent,
		},
		{
			name:     "duplicate phase",
			entities: []ir.Entity{node("d", ir.KindDimension)},
			order:    []ir.Kind{ir.KindDimension, ir.KindDimension},
			contains: "twice",
			code:     ErrInvalidPhaseOrder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildPlan(tt.entities, tt.order)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
			assert.Equal(t, tt.code, PlanErrorCode(err))
		})
	}
}

func TestPlanErrorCode_Generic(t *testing.T) {
	assert.Equal(t, ErrCodeGeneric, PlanErrorCode(errors.New("disk full")))
}

func TestAnalyzeCycles(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Empty(t, AnalyzeCycles(nil))
	})

	t.Run("dag", func(t *testing.T) {
		cycles := AnalyzeCycles([]ir.Entity{
			node("a", ir.KindDimension),
			node("b", ir.KindDimension, "a"),
			node("c", ir.KindDimension, "a", "b"),
		})
		assert.Empty(t, cycles)
	})

	t.Run("three node cycle", func(t *testing.T) {
		cycles := AnalyzeCycles([]ir.Entity{
			node("a", ir.KindDimension, "b"),
			node("b", ir.KindDimension, "c"),
			node("c", ir.KindDimension, "a"),
		})
		require.Len(t, cycles, 1)
		path := cycles[0].Path
		assert.Len(t, path, 4)
		assert.Equal(t, path[0], path[len(path)-1])
	})

	t.Run("unknown parent ignored", func(t *testing.T) {
		assert.Empty(t, AnalyzeCycles([]ir.Entity{node("a", ir.KindDimension, "ghost")}))
	})
}
