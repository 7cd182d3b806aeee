// Package engine implements the generic incremental load engine.
//
// One Load of an entity:
//
//  1. reads the process watermark (epoch when absent)
//  2. extracts source records modified after watermark minus skew,
//     resolving parent refs to surrogate keys through joins on the parent
//     target tables
//  3. normalizes and hashes every candidate, rejecting duplicate and null
//     natural keys
//  4. looks up stored rows by natural key
//  5. for immutable entities, aborts on any hash mismatch (CheckIntegrity)
//  6. plans and applies inserts, overwrites and closes (PlanMerge)
//  7. appends a run log entry and advances the watermark to the run start
//
// All seven steps share one store transaction.
//
// LoadAll orders entities with compiler.BuildPlan and isolates failures
// per entity. Errors are *LoadError values; use IsIntegrityViolation,
// IsTransient and IsLeaseHeld to classify them.
package engine
