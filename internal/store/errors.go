package store

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// Reason enumerates PersistenceError's taxonomy.
type Reason int

const (
	Busy Reason = iota
	Constraint
	Corrupted
)

func (r Reason) String() string {
	switch r {
	case Busy:
		return "Busy"
	case Constraint:
		return "Constraint"
	case Corrupted:
		return "Corrupted"
	default:
		return "Unknown"
	}
}

// PersistenceError is the typed error returned by store operations.
// Busy is retried with backoff inside a transaction; Constraint surfaces as
// the enclosing operation's failure reason; Corrupted is fatal process-wide.
type PersistenceError struct {
	Reason Reason
	Err    error
}

func (e *PersistenceError) Error() string {
	return "persistence: " + e.Reason.String() + ": " + e.Err.Error()
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func newErr(reason Reason, format string, args ...any) error {
	return &PersistenceError{Reason: reason, Err: errors.Errorf(format, args...)}
}

// IsReason reports whether err is a *PersistenceError with the given reason.
func IsReason(err error, reason Reason) bool {
	var pe *PersistenceError
	if stderrors.As(err, &pe) {
		return pe.Reason == reason
	}
	return false
}
