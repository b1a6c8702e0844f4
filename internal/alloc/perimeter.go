package alloc

import (
	"github.com/spinctl/boardctl/internal/boardgraph"
	"github.com/spinctl/boardctl/internal/model"
	"github.com/spinctl/boardctl/internal/topology"
)

// PerimeterEdge is one (board, direction) pair whose live link crosses the
// boundary of an allocation.
type PerimeterEdge struct {
	Board model.BoardID
	Dir   topology.Direction
}

// perimeter enumerates every live link with exactly one endpoint in
// `allocated`; the returned edge is always the endpoint that IS in the
// allocation, together with the direction leaving that board.
func perimeter(g *boardgraph.Graph, machineID model.MachineID, allocated map[model.BoardID]bool) []PerimeterEdge {
	seen := map[[2]model.BoardID]bool{}
	var edges []PerimeterEdge
	for b := range allocated {
		for _, l := range g.LinksOf(machineID, b) {
			key := [2]model.BoardID{l.Board1, l.Board2}
			if seen[key] {
				continue
			}
			in1, in2 := allocated[l.Board1], allocated[l.Board2]
			if in1 == in2 {
				continue // both in or both out: not a perimeter edge
			}
			seen[key] = true
			if in1 {
				edges = append(edges, PerimeterEdge{Board: l.Board1, Dir: l.Dir1})
			} else {
				edges = append(edges, PerimeterEdge{Board: l.Board2, Dir: l.Dir2})
			}
		}
	}
	return edges
}

// powerPlan builds one PendingChange per allocated board: LinkSettings[dir]
// is true iff that direction's live link crosses the perimeter.
func powerPlan(jobID model.JobID, allocated map[model.BoardID]bool, edges []PerimeterEdge, toState model.JobState) []model.PendingChange {
	byBoard := make(map[model.BoardID]model.LinkSettings, len(allocated))
	for b := range allocated {
		byBoard[b] = model.LinkSettings{}
	}
	for _, e := range edges {
		ls := byBoard[e.Board]
		ls[e.Dir] = true
		byBoard[e.Board] = ls
	}
	out := make([]model.PendingChange, 0, len(allocated))
	for b, ls := range byBoard {
		out = append(out, model.PendingChange{
			JobID:   jobID,
			BoardID: b,
			PowerOn: true,
			Links:   ls,
			ToState: toState,
		})
	}
	return out
}
