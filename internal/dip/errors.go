package dip

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced by the challenge solver and run locking.
var (
	// ErrSolveTimeout means the browser session did not pass the challenge
	// within the configured window.
	ErrSolveTimeout = errors.New("challenge solve timed out")
	// ErrSolveRejected means the challenge page refused the session outright.
	ErrSolveRejected = errors.New("challenge solve rejected")
	// ErrRunLockHeld means another orchestrator run owns the stream lock.
	ErrRunLockHeld = errors.New("run lock already held")
)

// TransientError marks a fetch failure that is safe to resume later: the
// cursor was not advanced, so a new run re-fetches from the same position.
type TransientError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient fetch failure on %s after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ChallengeError means the bot challenge could not be passed after the
// configured solve-and-retry budget. Fatal for the run; resumable once the
// solving infrastructure is healthy again.
type ChallengeError struct {
	Reason string
	Err    error
}

func (e *ChallengeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("challenge unsolvable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("challenge unsolvable: %s", e.Reason)
}

func (e *ChallengeError) Unwrap() error { return e.Err }

// SchemaError marks a raw record missing a field mandatory for identity.
// The record is skipped and logged; the run continues.
type SchemaError struct {
	Entity string
	Field  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema violation: %s record missing %s", e.Entity, e.Field)
}

// ConflictError surfaces an unexpected storage rejection for a single record.
type ConflictError struct {
	Entity string
	ID     string
	Err    error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("storage conflict on %s %s: %v", e.Entity, e.ID, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// IsTransient reports whether err is resumable without operator action.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsSchemaError reports whether err is a per-record schema violation.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsConflictError reports whether err is a per-record storage conflict.
func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
