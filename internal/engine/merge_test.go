package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pitwall/internal/ir"
)

func TestPlanMerge_Mutable(t *testing.T) {
	e := countryEntity()
	closed := "2023-06-01 00:00:00.000000"

	insert := candidate(t, e, false, ir.String("Italy"), ir.String("IT"))
	same := candidate(t, e, false, ir.String("Monaco"), ir.String("MC"))
	changed := candidate(t, e, false, ir.String("France"), ir.String("FRA"))
	ending := candidate(t, e, true, ir.String("Spain"), ir.String("ES"))
	alreadyClosed := candidate(t, e, true, ir.String("Austria"), ir.String("AT"))
	reopenedChanged := candidate(t, e, false, ir.String("Belgium"), ir.String("BEL"))

	existing := map[string]ir.TargetRow{
		same.Key:            {DwhID: 1, Hash: same.Hash},
		changed.Key:         {DwhID: 2, Hash: "stale"},
		ending.Key:          {DwhID: 3, Hash: ending.Hash},
		alreadyClosed.Key:   {DwhID: 4, Hash: alreadyClosed.Hash, ValidTo: &closed},
		reopenedChanged.Key: {DwhID: 5, Hash: "stale", ValidTo: &closed},
	}

	p := PlanMerge(e, []ir.Candidate{insert, same, changed, ending, alreadyClosed, reopenedChanged}, existing)

	assert.Equal(t, int64(1), p.Inserted)
	assert.Equal(t, int64(3), p.Updated)
	assert.Equal(t, int64(2), p.Unchanged)

	require.Len(t, p.Steps, 4)
	assert.Equal(t, MergeStep{Action: ActionInsert, Candidate: insert}, p.Steps[0])
	assert.Equal(t, MergeStep{Action: ActionOverwrite, Candidate: changed, DwhID: 2}, p.Steps[1])
	assert.Equal(t, MergeStep{Action: ActionOverwrite, Candidate: ending, DwhID: 3, Close: true}, p.Steps[2])
	// A closed row is overwritten on hash change but never reopened.
	assert.Equal(t, MergeStep{Action: ActionOverwrite, Candidate: reopenedChanged, DwhID: 5}, p.Steps[3])
}

func TestPlanMerge_Immutable(t *testing.T) {
	e := raceEntity()
	closed := "2023-06-01 00:00:00.000000"

	insert := candidate(t, e, false, ir.Int(1950), ir.Int(1), ir.String("British GP"), ir.Date("1950-05-13"), ir.Int(1))
	same := candidate(t, e, false, ir.Int(1950), ir.Int(2), ir.String("Monaco GP"), ir.Date("1950-05-21"), ir.Int(2))
	ending := candidate(t, e, true, ir.Int(1950), ir.Int(3), ir.String("Indy 500"), ir.Date("1950-05-30"), ir.Int(3))
	endedTwice := candidate(t, e, true, ir.Int(1950), ir.Int(4), ir.String("Swiss GP"), ir.Date("1950-06-04"), ir.Int(4))

	existing := map[string]ir.TargetRow{
		same.Key:       {DwhID: 10, Hash: same.Hash},
		ending.Key:     {DwhID: 11, Hash: ending.Hash},
		endedTwice.Key: {DwhID: 12, Hash: endedTwice.Hash, ValidTo: &closed},
	}

	p := PlanMerge(e, []ir.Candidate{insert, same, ending, endedTwice}, existing)

	assert.Equal(t, int64(1), p.Inserted)
	assert.Equal(t, int64(1), p.Updated)
	assert.Equal(t, int64(2), p.Unchanged)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, ActionInsert, p.Steps[0].Action)
	assert.Equal(t, MergeStep{Action: ActionClose, Candidate: ending, DwhID: 11}, p.Steps[1])
}

func TestPlanMerge_ImmutableNeverOverwrites(t *testing.T) {
	e := raceEntity()
	c := candidate(t, e, false, ir.Int(1950), ir.Int(1), ir.String("British GP"), ir.Date("1950-05-13"), ir.Int(1))

	p := PlanMerge(e, []ir.Candidate{c}, map[string]ir.TargetRow{c.Key: {DwhID: 1, Hash: "other"}})

	assert.Empty(t, p.Steps)
	assert.Equal(t, int64(1), p.Unchanged)
}

func TestPlanMerge_InsertOfEndedRecordIsBornClosed(t *testing.T) {
	for _, policy := range []ir.Policy{ir.PolicyMutable, ir.PolicyImmutable} {
		t.Run(string(policy), func(t *testing.T) {
			e := countryEntity()
			e.Policy = policy
			c := candidate(t, e, true, ir.String("Atlantis"), ir.String("AX"))

			p := PlanMerge(e, []ir.Candidate{c}, map[string]ir.TargetRow{})

			require.Len(t, p.Steps, 1)
			assert.Equal(t, ActionInsert, p.Steps[0].Action)
			assert.True(t, p.Steps[0].Close)
			assert.Equal(t, int64(1), p.Inserted)
			assert.Equal(t, int64(0), p.Updated)
		})
	}
}

func TestPlanMerge_InsertOfOpenRecordStaysActive(t *testing.T) {
	e := countryEntity()
	c := candidate(t, e, false, ir.String("Atlantis"), ir.String("AX"))

	p := PlanMerge(e, []ir.Candidate{c}, map[string]ir.TargetRow{})

	require.Len(t, p.Steps, 1)
	assert.False(t, p.Steps[0].Close)
}

func TestPlanMerge_Empty(t *testing.T) {
	p := PlanMerge(countryEntity(), nil, nil)
	assert.Equal(t, MergePlan{}, p)
}
