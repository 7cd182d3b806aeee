package store

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// IsTransient reports whether err is a lock or contention failure that a
// retry with the same watermark can be expected to clear.
func IsTransient(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return true
	default:
		return false
	}
}

// IsConstraint reports whether err is a constraint violation (UNIQUE,
// NOT NULL, FOREIGN KEY).
func IsConstraint(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint
}
