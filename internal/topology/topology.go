// Package topology implements SpiNNaker-style triad coordinate arithmetic:
// the six inter-board directions, the per-z movement table, and torus wrap.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package topology

import "fmt"

// Direction enumerates the six inter-board links of the SpiNNaker hex
// topology.
type Direction int

const (
	N Direction = iota
	E
	SE
	S
	W
	NW

	NumDirections = 6
)

func (d Direction) String() string {
	switch d {
	case N:
		return "N"
	case E:
		return "E"
	case SE:
		return "SE"
	case S:
		return "S"
	case W:
		return "W"
	case NW:
		return "NW"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Opposite returns the direction that, taken from the neighbor, leads back.
func (d Direction) Opposite() Direction {
	switch d {
	case N:
		return S
	case S:
		return N
	case E:
		return W
	case W:
		return E
	case SE:
		return NW
	case NW:
		return SE
	default:
		return d
	}
}

// Coord is a triad coordinate (x, y, z) with z in {0, 1, 2}.
type Coord struct {
	X, Y, Z int
}

// delta is a movement in (x, y, z) space, applied before wrapping.
type delta struct{ DX, DY, DZ int }

// movementDirections[z][dir] mirrors the three-board SpiNNaker triad:
// moving N/E (and back S/W) lands on a different z-plane of a neighboring
// (x, y) triad, while SE/NW keep the z-plane. The three forward
// directions (N, E, SE) are defined directly; S, W, and NW are each the
// other end of that same board-to-board link, so their deltas are the
// exact negation (including the z-plane cycle) of the matching forward
// direction. This is what makes Neighbor(Neighbor(c, d), d.Opposite())
// always equal c.
var movementDirections = [3][NumDirections]delta{}

func init() {
	forward := [3]delta{
		N:  {0, 1, 1},
		E:  {1, 0, 2},
		SE: {1, -1, 0},
	}
	for z := 0; z < 3; z++ {
		movementDirections[z][N] = forward[N]
		movementDirections[z][E] = forward[E]
		movementDirections[z][SE] = forward[SE]
		movementDirections[z][S] = negate(forward[N])
		movementDirections[z][W] = negate(forward[E])
		movementDirections[z][NW] = negate(forward[SE])
	}
}

func negate(d delta) delta {
	dz := (3 - d.DZ%3) % 3
	return delta{DX: -d.DX, DY: -d.DY, DZ: dz}
}

// Wrap reduces a coordinate into a canonical torus position for a machine of
// the given width/height, in triad units (z is left untouched here; z wrap
// is folded into the movement delta already).
func Wrap(x, y, width, height int) (int, int) {
	x %= width
	if x < 0 {
		x += width
	}
	y %= height
	if y < 0 {
		y += height
	}
	return x, y
}

// Neighbor returns the triad coordinate reached from c by moving one hop in
// direction dir, wrapped onto a (width, height) torus. z always stays in
// {0, 1, 2} because the movement table only emits DZ deltas of 0..2 and Z
// is computed mod 3 rather than wrapped against width/height.
func Neighbor(c Coord, dir Direction, width, height int) Coord {
	d := movementDirections[c.Z][dir]
	nx, ny := Wrap(c.X+d.DX, c.Y+d.DY, width, height)
	nz := (c.Z + d.DZ) % 3
	if nz < 0 {
		nz += 3
	}
	return Coord{X: nx, Y: ny, Z: nz}
}

// TriadOf derives the triad coordinate of a board given a chip's root
// coordinate; the per-triad chip span is fixed, not a parameter. Full chip-to-triad
// translation depends on the board model's chip inventory (see
// model.BoardModelChips); this helper only folds raw (x, y) chip space into
// the logical 12-chips-per-dimension triad grid SpiNNaker machines use.
func TriadOf(rootX, rootY int) Coord {
	return Coord{X: rootX / 12, Y: rootY / 12, Z: 0}
}
