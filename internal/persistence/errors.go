package persistence

import "errors"

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("persistence: not found")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("persistence: duplicate record")
	// ErrConstraintViolation is returned when a record fails a schema constraint.
	ErrConstraintViolation = errors.New("persistence: constraint violation")
	// ErrStatusConflict is returned by conditional status updates when the
	// stored status no longer matches the expected one.
	ErrStatusConflict = errors.New("persistence: meeting status changed")
)
