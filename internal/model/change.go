package model

import "time"

// LinkSettings carries the six per-direction FPGA power bits that
// ChangeApplier must apply for a board's perimeter.
type LinkSettings [6]bool // indexed by topology.Direction

// PendingChange ties (job, board) to the desired link FPGA settings and the
// target job state, one row per board.
type PendingChange struct {
	JobID   JobID
	BoardID BoardID

	PowerOn bool
	Links   LinkSettings

	ToState JobState
}

// AllocationHistory is an append-only record written on every fresh
// allocation; quota spend is derived as
// allocation_size * max(0, death_timestamp - allocation_timestamp).
type AllocationHistory struct {
	ID        string
	JobID     JobID
	BoardID   BoardID
	Timestamp time.Time
}
