package application

import (
	"errors"
	"fmt"

	"github.com/example/meeting-service/internal/persistence"
)

var (
	// ErrUnauthorized is returned when the acting principal is not the meeting host.
	ErrUnauthorized = errors.New("application: unauthorized")
	// ErrNotFound is returned when the requested meeting does not exist.
	ErrNotFound = errors.New("application: not found")
	// ErrInvalidState is returned when an operation is not permitted in the meeting's current status.
	ErrInvalidState = errors.New("application: invalid meeting state")
	// ErrCapacityReached is returned when a meeting already holds its maximum number of participants.
	ErrCapacityReached = errors.New("application: meeting is full")
	// ErrConflict is returned for duplicate joins and leaves by users who are not present.
	ErrConflict = errors.New("application: membership conflict")
	// ErrInvalidCredentials is returned for unknown emails, wrong passwords and unusable refresh tokens.
	ErrInvalidCredentials = errors.New("application: invalid credentials")
	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("application: email already in use")
)

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	return "validation failed"
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// add records a field level validation error.
func (v *ValidationError) add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

// merge copies entries from another validation error into the receiver.
func (v *ValidationError) merge(other *ValidationError) {
	if other == nil || len(other.FieldErrors) == 0 {
		return
	}
	for field, msg := range other.FieldErrors {
		v.add(field, msg)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, persistence.ErrNotFound)
}

// mapMeetingRepoError keeps domain errors intact and turns storage failures
// into internal errors outside the domain taxonomy.
func mapMeetingRepoError(err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return ErrNotFound
	}
	if isDomainError(err) {
		return err
	}
	if errors.Is(err, persistence.ErrStatusConflict) {
		return fmt.Errorf("application: meeting status changed concurrently: %w", err)
	}
	return fmt.Errorf("application: meeting repository: %w", err)
}

func isDomainError(err error) bool {
	var vErr *ValidationError
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrCapacityReached) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrEmailTaken) ||
		errors.As(err, &vErr)
}
