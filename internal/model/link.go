package model

import (
	"github.com/pkg/errors"

	"github.com/spinctl/boardctl/internal/topology"
)

// Link is a directed pair (board_1, dir_1) <-> (board_2, dir_2) with a
// liveness flag. Enforced ordering: Board1 <= Board2; unique on (board, dir)
// per endpoint.
type Link struct {
	Board1 BoardID
	Dir1   topology.Direction
	Board2 BoardID
	Dir2   topology.Direction
	Live   bool
}

// ErrInvalidLink is returned by NewLink on an ordering violation.
var ErrInvalidLink = errors.New("invalid link")

// NewLink constructs a Link, enforcing board_1 <= board_2.
func NewLink(b1 BoardID, d1 topology.Direction, b2 BoardID, d2 topology.Direction, live bool) (Link, error) {
	if b1 > b2 {
		return Link{}, errors.Wrapf(ErrInvalidLink, "board_1 (%s) must be <= board_2 (%s)", b1, b2)
	}
	return Link{Board1: b1, Dir1: d1, Board2: b2, Dir2: d2, Live: live}, nil
}

// Endpoint returns the board at the other end of the link from b, the
// direction in which the link leaves b (Dir1 for Board1, Dir2 for Board2),
// and whether b actually terminates this link.
func (l Link) Endpoint(b BoardID) (BoardID, topology.Direction, bool) {
	switch b {
	case l.Board1:
		return l.Board2, l.Dir1, true
	case l.Board2:
		return l.Board1, l.Dir2, true
	default:
		return InvalidBoardID, 0, false
	}
}
