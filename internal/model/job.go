package model

import (
	"time"

	"github.com/pkg/errors"
)

// JobState is one of UNKNOWN, QUEUED, POWER, READY, DESTROYED.
type JobState int

const (
	JobUnknown JobState = iota
	JobQueued
	JobPower
	JobReady
	JobDestroyed
)

func (s JobState) String() string {
	switch s {
	case JobUnknown:
		return "UNKNOWN"
	case JobQueued:
		return "QUEUED"
	case JobPower:
		return "POWER"
	case JobReady:
		return "READY"
	case JobDestroyed:
		return "DESTROYED"
	default:
		return "INVALID"
	}
}

// ErrTerminal is returned whenever a caller attempts to mutate a DESTROYED job.
var ErrTerminal = errors.New("job is in a terminal state")

// Job tracks ownership, quota accounting inputs, and the lifecycle state
// machine.
type Job struct {
	ID    JobID
	Owner string
	Group string

	MachineID MachineID
	State     JobState

	KeepaliveInterval  time.Duration
	KeepaliveTimestamp time.Time

	AllocationSize      int // set iff State >= POWER
	AllocationTimestamp time.Time
	DeathTimestamp      time.Time
	DeathReason         string

	OriginalRequest []byte

	NumPending int // outstanding PendingChange rows

	RootBoard BoardID

	AccountedFor bool
	QuotaUsed    uint64
}

// CanTransition reports whether the job may still change state.
func (j *Job) CanTransition() bool { return j.State != JobDestroyed }

// Transition moves the job to a new state, enforcing the terminal invariant
// and death-timestamp monotonicity.
func (j *Job) Transition(to JobState, now time.Time) error {
	if !j.CanTransition() {
		return errors.Wrapf(ErrTerminal, "job %s: cannot transition %s -> %s", j.ID, j.State, to)
	}
	if to == JobDestroyed {
		if j.AllocationTimestamp.IsZero() {
			j.DeathTimestamp = now
		} else if now.Before(j.AllocationTimestamp) {
			j.DeathTimestamp = j.AllocationTimestamp
		} else {
			j.DeathTimestamp = now
		}
	}
	j.State = to
	return nil
}

// Destroy is a convenience wrapper around Transition(JobDestroyed, ...) that
// also records the death reason.
func (j *Job) Destroy(now time.Time, reason string) error {
	if err := j.Transition(JobDestroyed, now); err != nil {
		return err
	}
	j.DeathReason = reason
	return nil
}
