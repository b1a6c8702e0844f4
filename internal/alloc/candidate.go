package alloc

import (
	"sort"

	"github.com/spinctl/boardctl/internal/boardgraph"
	"github.com/spinctl/boardctl/internal/model"
	"github.com/spinctl/boardctl/internal/topology"
)

// anchorCandidate is one scanned rectangle anchor and the data needed to
// decide whether it satisfies a request.
type anchorCandidate struct {
	anchor     topology.Coord // z is always 0; anchors are triad-plane positions
	candidates []model.BoardID
	available  []model.BoardID // subset of candidates that MayBeAllocated()
}

// scanAnchors enumerates every anchor (gx, gy) in machine order (y asc, x
// asc), building the W x H x 3 candidate board set for each.
func scanAnchors(g *boardgraph.Graph, machineID model.MachineID, width, height, w, h int) []anchorCandidate {
	out := make([]anchorCandidate, 0, width*height)
	for gy := 0; gy < height; gy++ {
		for gx := 0; gx < width; gx++ {
			ac := anchorCandidate{anchor: topology.Coord{X: gx, Y: gy, Z: 0}}
			for cx := 0; cx < w; cx++ {
				for cy := 0; cy < h; cy++ {
					x, y := topology.Wrap(gx+cx, gy+cy, width, height)
					for cz := 0; cz < 3; cz++ {
						id, ok := g.BoardAt(machineID, topology.Coord{X: x, Y: y, Z: cz})
						if !ok {
							continue
						}
						ac.candidates = append(ac.candidates, id)
						if b, ok := g.Board(id); ok && b.MayBeAllocated() {
							ac.available = append(ac.available, id)
						}
					}
				}
			}
			out = append(out, ac)
		}
	}
	return out
}

// selectBoards picks which boards to actually allocate out of an anchor's
// available set: earlier power_off_timestamp wins, favoring recently-cooled
// boards for thermal mixing. When the anchor has more allocatable boards
// than needed (because max_dead allows some slack), the boards with the
// earliest power_off_timestamp are preferred.
func selectBoards(g *boardgraph.Graph, available []model.BoardID, need int) []model.BoardID {
	sorted := make([]model.BoardID, len(available))
	copy(sorted, available)
	sort.SliceStable(sorted, func(i, j int) bool {
		bi, _ := g.Board(sorted[i])
		bj, _ := g.Board(sorted[j])
		return bi.PowerOffTimestamp.Before(bj.PowerOffTimestamp)
	})
	if len(sorted) > need {
		sorted = sorted[:need]
	}
	return sorted
}

// smallestRectangle returns the smallest (W, H) with W*H*3 >= n, scanning
// increasing side lengths the way the by_count strategy requires.
// Ties (multiple (W,H) with the same area) favor the most square rectangle,
// since a wide search in increasing total-board order naturally finds the
// first minimal-area shape before a more elongated one of the same area.
func smallestRectangle(n int) (w, h int) {
	if n <= 0 {
		return 1, 1
	}
	bestArea := -1
	maxWidth := (n + 2) / 3
	if maxWidth < 1 {
		maxWidth = 1
	}
	for width := 1; width <= maxWidth; width++ {
		height := (n + 3*width - 1) / (3 * width) // ceil(n / (3*width))
		if height < 1 {
			height = 1
		}
		area := width * height
		if bestArea == -1 || area < bestArea || (area == bestArea && abs(width-height) < abs(w-h)) {
			bestArea, w, h = area, width, height
		}
	}
	return w, h
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
