package database

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a row addressed by id does not exist
	ErrNotFound = errors.New("record not found")

	// ErrConcurrentUpdate is returned when a serializable transaction kept
	// conflicting with concurrent writers after all retries
	ErrConcurrentUpdate = errors.New("concurrent update, please retry")
)

// isSerializationFailure reports whether err is a PostgreSQL serialization
// failure (40001) or deadlock (40P01), both safe to retry
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// isUniqueViolation reports whether err is a unique constraint violation (23505)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
