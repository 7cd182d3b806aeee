package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/pitwall/internal/store"
)

// LoadError represents a failure of one entity load.
//
// Every LoadError leaves the warehouse unchanged for that entity: the load
// transaction is rolled back and the watermark is not advanced.
type LoadError struct {
	// Code identifies the error category.
	Code LoadErrorCode

	// Entity is the entity (process) that failed.
	Entity string

	// Message is a human-readable description.
	Message string

	// Keys lists the offending natural keys (integrity and duplicate errors).
	Keys []string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// LoadErrorCode categorizes load errors.
type LoadErrorCode string

const (
	// ErrCodeIntegrityViolation indicates an immutable entity received a
	// candidate whose hash differs from the stored row. Never retried.
	ErrCodeIntegrityViolation LoadErrorCode = "INTEGRITY_VIOLATION"

	// ErrCodeTransientStorage indicates a lock or contention failure.
	// Retrying with the same watermark is safe.
	ErrCodeTransientStorage LoadErrorCode = "TRANSIENT_STORAGE"

	// ErrCodeDuplicateKey indicates the extraction produced two candidates
	// with the same natural key.
	ErrCodeDuplicateKey LoadErrorCode = "DUPLICATE_KEY"

	// ErrCodeInvalidCandidate indicates a candidate could not be normalized
	// (null key attribute, value not coercible to its declared type).
	ErrCodeInvalidCandidate LoadErrorCode = "INVALID_CANDIDATE"

	// ErrCodeLeaseHeld indicates another holder owns the process lease.
	ErrCodeLeaseHeld LoadErrorCode = "LEASE_HELD"

	// ErrCodeUnknownEntity indicates a requested entity is not in the catalog.
	ErrCodeUnknownEntity LoadErrorCode = "UNKNOWN_ENTITY"

	// ErrCodeParentNotLoaded indicates a parent target table does not exist yet.
	ErrCodeParentNotLoaded LoadErrorCode = "PARENT_NOT_LOADED"

	// ErrCodeConstraintViolation indicates the warehouse rejected a write
	// (UNIQUE key index, NOT NULL, foreign key). Never retried.
	ErrCodeConstraintViolation LoadErrorCode = "CONSTRAINT_VIOLATION"
)

// Error implements the error interface.
func (e *LoadError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s", e.Code, e.Message)
	if e.Entity != "" {
		fmt.Fprintf(&sb, " (entity=%s)", e.Entity)
	}
	if len(e.Keys) > 0 {
		fmt.Fprintf(&sb, " keys=%s", strings.Join(e.Keys, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// CodeOf returns the LoadErrorCode of err, or "" when err is not a LoadError.
func CodeOf(err error) LoadErrorCode {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ""
}

// IsIntegrityViolation returns true if the error is an integrity violation.
// Uses errors.As to handle wrapped errors.
func IsIntegrityViolation(err error) bool {
	return CodeOf(err) == ErrCodeIntegrityViolation
}

// IsTransient returns true if retrying the load may succeed. Matches both
// LoadError with ErrCodeTransientStorage and raw SQLite busy/locked errors.
func IsTransient(err error) bool {
	if CodeOf(err) == ErrCodeTransientStorage {
		return true
	}
	return store.IsTransient(err)
}

// IsLeaseHeld returns true if the load was skipped because another holder
// owns the process lease.
func IsLeaseHeld(err error) bool {
	return CodeOf(err) == ErrCodeLeaseHeld
}

// NewIntegrityError creates a LoadError for immutable hash mismatches.
func NewIntegrityError(entity string, keys []string) *LoadError {
	return &LoadError{
		Code:    ErrCodeIntegrityViolation,
		Entity:  entity,
		Message: fmt.Sprintf("%d immutable row(s) would change", len(keys)),
		Keys:    keys,
	}
}

// NewDuplicateKeyError creates a LoadError for duplicate candidates.
func NewDuplicateKeyError(entity string, keys []string) *LoadError {
	return &LoadError{
		Code:    ErrCodeDuplicateKey,
		Entity:  entity,
		Message: fmt.Sprintf("extraction returned %d natural key(s) more than once", len(keys)),
		Keys:    keys,
	}
}

// NewInvalidCandidateError creates a LoadError for a candidate that cannot
// be normalized.
func NewInvalidCandidateError(entity, attribute string, cause error) *LoadError {
	return &LoadError{
		Code:    ErrCodeInvalidCandidate,
		Entity:  entity,
		Message: fmt.Sprintf("attribute %s", attribute),
		Details: map[string]string{"attribute": attribute},
		Err:     cause,
	}
}

// NewLeaseHeldError creates a LoadError for a lease owned by someone else.
func NewLeaseHeldError(entity string) *LoadError {
	return &LoadError{
		Code:    ErrCodeLeaseHeld,
		Entity:  entity,
		Message: "process lease is held by another run",
	}
}

// NewUnknownEntityError creates a LoadError for a name missing from the catalog.
func NewUnknownEntityError(entity string) *LoadError {
	return &LoadError{
		Code:    ErrCodeUnknownEntity,
		Entity:  entity,
		Message: "entity is not defined in the catalog",
	}
}

// NewParentNotLoadedError creates a LoadError for a missing parent table.
func NewParentNotLoadedError(entity, parent, table string) *LoadError {
	return &LoadError{
		Code:    ErrCodeParentNotLoaded,
		Entity:  entity,
		Message: fmt.Sprintf("parent %s has not been loaded (table %s missing)", parent, table),
		Details: map[string]string{"parent": parent, "table": table},
	}
}

// classify wraps storage errors that a retry may clear.
func classify(entity string, err error) error {
	if err == nil {
		return nil
	}
	var le *LoadError
	if errors.As(err, &le) {
		return err
	}
	if store.IsTransient(err) {
		return &LoadError{
			Code:    ErrCodeTransientStorage,
			Entity:  entity,
			Message: "storage busy",
			Err:     err,
		}
	}
	if store.IsConstraint(err) {
		return &LoadError{
			Code:    ErrCodeConstraintViolation,
			Entity:  entity,
			Message: "warehouse constraint violated",
			Err:     err,
		}
	}
	return fmt.Errorf("load %s: %w", entity, err)
}
