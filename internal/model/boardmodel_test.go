package model

import "testing"

func TestBoardModelChipCounts(t *testing.T) {
	want := map[int]int{2: 4, 3: 4, 4: 48, 5: 48}
	for m, n := range want {
		if got := len(BoardModelChips[m]); got != n {
			t.Errorf("model %d: %d chips, want %d", m, got, n)
		}
	}
}

func TestBoardModelChipsUnique(t *testing.T) {
	for m, chips := range BoardModelChips {
		seen := make(map[ChipCoord]bool, len(chips))
		for _, c := range chips {
			if seen[c] {
				t.Errorf("model %d: duplicate chip %+v", m, c)
			}
			seen[c] = true
		}
	}
}

// TestBoardModelMirrors: models 2 and 4 cover the same chip set as 3 and 5
// reflected in x.
func TestBoardModelMirrors(t *testing.T) {
	cases := []struct {
		mirror, base, maxX int
	}{
		{2, 3, 1},
		{4, 5, 7},
	}
	for _, c := range cases {
		base := make(map[ChipCoord]bool)
		for _, ch := range BoardModelChips[c.base] {
			base[ChipCoord{X: c.maxX - ch.X, Y: ch.Y}] = true
		}
		for _, ch := range BoardModelChips[c.mirror] {
			if !base[ch] {
				t.Errorf("model %d chip %+v is not the x-mirror of model %d", c.mirror, ch, c.base)
			}
		}
	}
}
