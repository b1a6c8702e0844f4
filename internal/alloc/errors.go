// Package alloc implements the board allocator: it turns a
// JobRequest into a rectangle or single board of currently-free boards,
// checks connectivity, computes the allocation's perimeter, and emits the
// PendingChange power plan that internal/changeapplier later drains.
// Candidates are computed fully before anything commits: a failed request
// never mutates state.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package alloc

import "github.com/pkg/errors"

// Reason enumerates AllocError's taxonomy.
type Reason int

const (
	NoCapacity Reason = iota
	MachineUnknown
	QuotaExceeded
	BoardUnallocatable
	NotConnected
)

func (r Reason) String() string {
	switch r {
	case NoCapacity:
		return "NoCapacity"
	case MachineUnknown:
		return "MachineUnknown"
	case QuotaExceeded:
		return "QuotaExceeded"
	case BoardUnallocatable:
		return "BoardUnallocatable"
	case NotConnected:
		return "NotConnected"
	default:
		return "Unknown"
	}
}

// AllocError is returned by Allocate on failure; no state is mutated when
// this is returned.
type AllocError struct {
	Reason Reason
	Err    error
}

func (e *AllocError) Error() string { return "alloc: " + e.Reason.String() + ": " + e.Err.Error() }
func (e *AllocError) Unwrap() error { return e.Err }

func fail(reason Reason, format string, args ...any) error {
	return &AllocError{Reason: reason, Err: errors.Errorf(format, args...)}
}

// ReasonOf extracts the Reason from err if it is an *AllocError.
func ReasonOf(err error) (Reason, bool) {
	ae, ok := err.(*AllocError)
	if !ok {
		return 0, false
	}
	return ae.Reason, true
}
