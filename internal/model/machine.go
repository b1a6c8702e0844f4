package model

import (
	"strings"

	"github.com/pkg/errors"
)

// Machine is a torus of boards indexed by logical triad coordinates.
type Machine struct {
	ID            MachineID
	Width         int // > 0
	Height        int // > 0
	Depth         int // 1 or 3
	BoardModel    int
	DefaultQuota  *uint64 // nil = unlimited
	InService     bool
}

// ErrInvalidMachine is returned by NewMachine when an invariant is violated.
var ErrInvalidMachine = errors.New("invalid machine")

// NewMachine validates and constructs a Machine:
// width>0, height>0, depth in {1,3}, and names must not contain '{' or '}'.
func NewMachine(id MachineID, width, height, depth, boardModel int, defaultQuota *uint64, inService bool) (*Machine, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Wrapf(ErrInvalidMachine, "machine %q: width/height must be > 0 (got %d x %d)", id, width, height)
	}
	if depth != 1 && depth != 3 {
		return nil, errors.Wrapf(ErrInvalidMachine, "machine %q: depth must be 1 or 3 (got %d)", id, depth)
	}
	if strings.ContainsAny(string(id), "{}") {
		return nil, errors.Wrapf(ErrInvalidMachine, "machine name %q must not contain '{' or '}'", id)
	}
	return &Machine{
		ID:           id,
		Width:        width,
		Height:       height,
		Depth:        depth,
		BoardModel:   boardModel,
		DefaultQuota: defaultQuota,
		InService:    inService,
	}, nil
}

// NumTriadSlots is the total number of (x, y, z) board slots on the torus.
func (m *Machine) NumTriadSlots() int { return m.Width * m.Height * m.Depth }
