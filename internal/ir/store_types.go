package ir

import "time"

// NOTE: These are row shapes shared by the engine and the store. The db
// tags are used by sqlx struct scanning.

// Candidate is one normalized, hashed source record for an entity.
// Values are in Entity.Attributes order.
type Candidate struct {
	Values        []Value `json:"values"`
	Key           string  `json:"key"`  // KeyOf the natural key values
	Hash          string  `json:"hash"` // RowHash of the hash attributes
	ModifiedAt    string  `json:"modified_at"`
	SourceValidTo *string `json:"source_valid_to,omitempty"` // non-nil: upstream ended the record
}

// Ended reports whether upstream marked the record as ended.
func (c Candidate) Ended() bool {
	return c.SourceValidTo != nil
}

// KeyValues extracts the natural key values of a candidate.
func (c Candidate) KeyValues(e *Entity) []Value {
	idx := e.KeyIndexes()
	out := make([]Value, len(idx))
	for i, j := range idx {
		out[i] = c.Values[j]
	}
	return out
}

// TargetRow is the bookkeeping view of a stored row used by the integrity
// guard and the merge planner.
type TargetRow struct {
	DwhID      int64   `json:"dwh_id"`
	Key        string  `json:"key"`
	Hash       string  `json:"dwh_hash"`
	ValidFrom  string  `json:"dwh_valid_from"`
	ModifiedAt string  `json:"dwh_modified_at"`
	ValidTo    *string `json:"dwh_valid_to,omitempty"`
}

// Active reports whether the stored row has not been closed.
func (r TargetRow) Active() bool {
	return r.ValidTo == nil
}

// Watermark is the last successful run start of a process.
type Watermark struct {
	Process string `db:"process" json:"process"`
	LastRun string `db:"last_run" json:"last_run"`
}

// Time parses LastRun.
func (w Watermark) Time() (time.Time, error) {
	return ParseTime(w.LastRun)
}

// RunLogEntry is one immutable audit record of a successful entity load.
type RunLogEntry struct {
	ID         int64  `db:"id" json:"id"`
	RunID      string `db:"run_id" json:"run_id"`
	Process    string `db:"process" json:"process"`
	Inserted   int64  `db:"inserted" json:"inserted"`
	Updated    int64  `db:"updated" json:"updated"`
	ExecutedAt string `db:"executed_at" json:"executed_at"`
}

// Lease is an advisory single-flight claim on a process name.
type Lease struct {
	Process    string `db:"process" json:"process"`
	Holder     string `db:"holder" json:"holder"`
	AcquiredAt string `db:"acquired_at" json:"acquired_at"`
	ExpiresAt  string `db:"expires_at" json:"expires_at"`
}
