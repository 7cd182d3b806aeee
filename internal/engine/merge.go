package engine

import (
	"context"
	"fmt"

	"github.com/roach88/pitwall/internal/ir"
	"github.com/roach88/pitwall/internal/store"
)

// MergeAction is what a candidate does to the target.
type MergeAction string

const (
	// ActionInsert adds a new row, active unless the source already ended it.
	ActionInsert MergeAction = "insert"
	// ActionOverwrite rewrites attributes and hash, closing the row when
	// the source ended it.
	ActionOverwrite MergeAction = "overwrite"
	// ActionClose sets valid_to on an active row and changes nothing else.
	ActionClose MergeAction = "close"
)

// MergeStep is one planned target mutation.
type MergeStep struct {
	Action    MergeAction
	Candidate ir.Candidate
	DwhID     int64 // existing row; 0 for inserts
	Close     bool  // insert or overwrite also performs the closing transition
}

// MergePlan is the full set of mutations for one entity load.
type MergePlan struct {
	Steps     []MergeStep
	Inserted  int64
	Updated   int64
	Unchanged int64
}

// PlanMerge decides, per candidate, whether to insert, overwrite, close or
// skip. It is pure: the plan is applied later by applyMerge.
//
// Mutable: a new key inserts; an existing key is overwritten when the hash
// differs or when the source ended a still-active row.
// Immutable: a new key inserts; the only update is closing an active row
// the source ended. Hash mismatches must be rejected by CheckIntegrity
// first; PlanMerge never overwrites an immutable row.
//
// valid_to is only ever set on the null to non-null transition. A closed
// row stays closed even if the source reopens the record. A record the
// source has already ended when first seen is inserted closed and counts
// as an insert only.
func PlanMerge(e *ir.Entity, cands []ir.Candidate, existing map[string]ir.TargetRow) MergePlan {
	var p MergePlan
	for _, c := range cands {
		row, ok := existing[c.Key]
		if !ok {
			p.Steps = append(p.Steps, MergeStep{Action: ActionInsert, Candidate: c, Close: c.Ended()})
			p.Inserted++
			continue
		}

		closing := c.Ended() && row.Active()
		changed := c.Hash != row.Hash

		switch {
		case e.Policy == ir.PolicyMutable && (changed || closing):
			p.Steps = append(p.Steps, MergeStep{Action: ActionOverwrite, Candidate: c, DwhID: row.DwhID, Close: closing})
			p.Updated++
		case e.Policy == ir.PolicyImmutable && closing:
			p.Steps = append(p.Steps, MergeStep{Action: ActionClose, Candidate: c, DwhID: row.DwhID})
			p.Updated++
		default:
			p.Unchanged++
		}
	}
	return p
}

// applyMerge executes a plan inside tx. now is the run start time.
func applyMerge(ctx context.Context, tx *store.Tx, e *ir.Entity, p MergePlan, now string) error {
	for _, step := range p.Steps {
		closeAt := ""
		if step.Close {
			closeAt = now
		}
		var err error
		switch step.Action {
		case ActionInsert:
			_, err = tx.InsertTarget(ctx, e, step.Candidate, now, closeAt)
		case ActionOverwrite:
			err = tx.OverwriteTarget(ctx, e, step.DwhID, step.Candidate, now, closeAt)
		case ActionClose:
			err = tx.CloseTarget(ctx, e, step.DwhID, now)
		default:
			err = fmt.Errorf("unknown merge action %q", step.Action)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
