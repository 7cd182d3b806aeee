package engine

import "github.com/roach88/pitwall/internal/ir"

// CheckIntegrity enforces the immutable policy. Any candidate whose natural
// key already exists in the target, active or closed, must carry the
// stored hash. Returns an INTEGRITY_VIOLATION LoadError listing every
// offending key, or nil.
//
// Mutable entities always pass. The guard is pure so it runs before any
// mutation of the target.
func CheckIntegrity(e *ir.Entity, cands []ir.Candidate, existing map[string]ir.TargetRow) error {
	if e.Policy != ir.PolicyImmutable {
		return nil
	}

	var bad []string
	for _, c := range cands {
		row, ok := existing[c.Key]
		if !ok {
			continue
		}
		if row.Hash != c.Hash {
			bad = append(bad, c.Key)
		}
	}
	if len(bad) > 0 {
		return NewIntegrityError(e.Name, bad)
	}
	return nil
}
