package model

import "time"

// Tri is a tri-state boolean: functioning can be true, false, or unknown.
type Tri int

const (
	TriUnknown Tri = iota
	TriTrue
	TriFalse
)

// Board is (machine, x, y, z) unique; root_x/root_y are unique within the
// machine. BoardNum, when set, is the BMP addressing index.
type Board struct {
	ID        BoardID
	MachineID MachineID
	X, Y, Z   int

	RootX, RootY int

	BMPAddress string // optional, empty = unset
	BoardNum   *int   // nil = no BMP addressing known

	AllocatedJob JobID // "" = unallocated
	Functioning  Tri

	PowerOffTimestamp time.Time
	PowerOnTimestamp  time.Time

	BlacklistReason string // empty = not blacklisted
}

// MayBeAllocated reports whether the board can be handed to a job:
// board_num != null AND allocated_job == null AND functioning != false.
func (b *Board) MayBeAllocated() bool {
	return b.BoardNum != nil && b.AllocatedJob == "" && b.Functioning != TriFalse
}
