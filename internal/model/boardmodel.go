/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package model

// ChipCoord is a chip's (x, y) position within a single board.
type ChipCoord struct {
	X, Y int
}

// hexRows describes the 48-chip hexagonal board (model 5) as, per row y,
// the inclusive [min, max] range of populated x coordinates.
var hexRows = [8][2]int{
	{0, 4}, // y=0
	{0, 5},
	{0, 6},
	{0, 7},
	{1, 7},
	{2, 7},
	{3, 7},
	{4, 7}, // y=7
}

// BoardModelChips maps a board model number to its static chip-coordinate
// inventory. Model 5 is the 48-chip hexagon, model 3 the four-chip 2x2;
// models 4 and 2 are their x-mirrored counterparts.
var BoardModelChips = map[int][]ChipCoord{
	2: mirrorX(squareChips(2), 1),
	3: squareChips(2),
	4: mirrorX(hexChips(), 7),
	5: hexChips(),
}

func squareChips(n int) []ChipCoord {
	out := make([]ChipCoord, 0, n*n)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			out = append(out, ChipCoord{X: x, Y: y})
		}
	}
	return out
}

func hexChips() []ChipCoord {
	out := make([]ChipCoord, 0, 48)
	for y, span := range hexRows {
		for x := span[0]; x <= span[1]; x++ {
			out = append(out, ChipCoord{X: x, Y: y})
		}
	}
	return out
}

func mirrorX(chips []ChipCoord, maxX int) []ChipCoord {
	out := make([]ChipCoord, len(chips))
	for i, c := range chips {
		out[i] = ChipCoord{X: maxX - c.X, Y: c.Y}
	}
	return out
}
