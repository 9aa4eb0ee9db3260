package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// ErrDuplicate is returned when an insert or update violates a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

// ErrStaleState is returned when a conditional update matched no row because
// the record moved to another state concurrently.
var ErrStaleState = errors.New("record state changed")

const (
	pqUniqueViolation   = "23505"
	pqInvalidTextFormat = "22P02"
)

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}

// isNotFound treats ids Postgres cannot parse (for example a malformed UUID)
// like missing rows.
func isNotFound(err error) bool {
	if errors.Is(err, sql.ErrNoRows) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqInvalidTextFormat
	}
	return false
}
