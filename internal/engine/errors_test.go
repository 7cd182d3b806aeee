package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestLoadError_Error(t *testing.T) {
	err := NewIntegrityError("race", []string{`[1950,1]`})
	assert.Equal(t, `INTEGRITY_VIOLATION: 1 immutable row(s) would change (entity=race) keys=[1950,1]`, err.Error())

	wrapped := NewInvalidCandidateError("country", "name", errors.New("natural key attribute is null"))
	assert.Equal(t, "INVALID_CANDIDATE: attribute name (entity=country): natural key attribute is null", wrapped.Error())
}

func TestErrorHelpers_Wrapped(t *testing.T) {
	integrity := fmt.Errorf("outer: %w", NewIntegrityError("race", nil))
	assert.True(t, IsIntegrityViolation(integrity))
	assert.False(t, IsTransient(integrity))
	assert.False(t, IsLeaseHeld(integrity))

	lease := fmt.Errorf("outer: %w", NewLeaseHeldError("race"))
	assert.True(t, IsLeaseHeld(lease))
	assert.Equal(t, ErrCodeLeaseHeld, CodeOf(lease))

	assert.Equal(t, LoadErrorCode(""), CodeOf(errors.New("plain")))
}

func TestClassify(t *testing.T) {
	busy := sqlite3.Error{Code: sqlite3.ErrBusy}
	err := classify("country", fmt.Errorf("begin tx: %w", busy))
	assert.True(t, IsTransient(err))
	assert.Equal(t, ErrCodeTransientStorage, CodeOf(err))
	assert.ErrorIs(t, err, busy)

	locked := sqlite3.Error{Code: sqlite3.ErrLocked}
	assert.True(t, IsTransient(locked))

	unique := sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}
	err = classify("country", fmt.Errorf("insert dim_country: %w", unique))
	assert.Equal(t, ErrCodeConstraintViolation, CodeOf(err))
	assert.False(t, IsTransient(err))
	assert.ErrorIs(t, err, unique)

	plain := classify("country", errors.New("no such table: countries"))
	assert.False(t, IsTransient(plain))
	assert.Contains(t, plain.Error(), "load country")

	le := NewDuplicateKeyError("country", []string{`["Monaco"]`})
	assert.Same(t, le, classify("country", le))

	assert.NoError(t, classify("country", nil))
}
