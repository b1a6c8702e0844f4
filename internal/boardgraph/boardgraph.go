// Package boardgraph is the in-memory projection of PersistentStore:
// machines, boards, and live inter-board links, rebuilt
// lazily and invalidated whenever the allocator commits a transaction.
//
// Boards live in a flat arena and are addressed by model.BoardID: a
// versioned, swapped-whole in-memory map that readers consult without
// locking the writer path.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package boardgraph

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/spinctl/boardctl/internal/model"
	"github.com/spinctl/boardctl/internal/topology"
)

// coordKey addresses a board by its logical triad coordinate within a
// machine.
type coordKey struct {
	X, Y, Z int
}

// machineView is the per-machine slice of the graph: its boards, a
// coordinate index, and adjacency lists of live links.
type machineView struct {
	machine *model.Machine
	boards  map[model.BoardID]*model.Board
	byCoord map[coordKey]model.BoardID
	links   map[model.BoardID][]model.Link // adjacency, live links only
}

// snapshot is the immutable data swapped in on Rebuild; readers load an
// *snapshot atomically and never see a partially-built graph.
type snapshot struct {
	machines map[model.MachineID]*machineView
}

// Graph is the read-mostly board/link view. Writes happen only inside an
// allocator transaction (see internal/alloc), which calls Rebuild once the
// transaction's mutations have been committed to PersistentStore.
type Graph struct {
	cur atomic.Pointer[snapshot]
	mu  sync.Mutex // serializes Rebuild calls; readers never block on it
	ids sync.Map   // model.BoardID -> *model.Board, stable across rebuilds
}

// New returns an empty Graph; call Rebuild before using it.
func New() *Graph {
	g := &Graph{}
	g.cur.Store(&snapshot{machines: map[model.MachineID]*machineView{}})
	return g
}

// Source is the minimal read contract boardgraph needs from PersistentStore
// to rebuild its view; see internal/store.PersistentStore for the full
// external contract.
type Source interface {
	Machines() ([]*model.Machine, error)
	BoardsForMachine(model.MachineID) ([]*model.Board, error)
	LinksForMachine(model.MachineID) ([]model.Link, error)
}

// Rebuild reloads the entire graph from src. It is safe to call concurrently
// with readers: a fresh snapshot is built off to the side and only then
// published with a single atomic store.
func (g *Graph) Rebuild(src Source) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	machines, err := src.Machines()
	if err != nil {
		return errors.Wrap(err, "boardgraph: list machines")
	}

	next := &snapshot{machines: make(map[model.MachineID]*machineView, len(machines))}
	for _, m := range machines {
		boards, err := src.BoardsForMachine(m.ID)
		if err != nil {
			return errors.Wrapf(err, "boardgraph: boards for %s", m.ID)
		}
		links, err := src.LinksForMachine(m.ID)
		if err != nil {
			return errors.Wrapf(err, "boardgraph: links for %s", m.ID)
		}

		mv := &machineView{
			machine: m,
			boards:  make(map[model.BoardID]*model.Board, len(boards)),
			byCoord: make(map[coordKey]model.BoardID, len(boards)),
			links:   make(map[model.BoardID][]model.Link, len(boards)),
		}
		for _, b := range boards {
			mv.boards[b.ID] = b
			mv.byCoord[coordKey{b.X, b.Y, b.Z}] = b.ID
			g.ids.Store(b.ID, b)
		}
		for _, l := range links {
			if !l.Live {
				continue
			}
			mv.links[l.Board1] = append(mv.links[l.Board1], l)
			mv.links[l.Board2] = append(mv.links[l.Board2], l)
		}
		next.machines[m.ID] = mv
	}
	g.cur.Store(next)
	return nil
}

// Invalidate is an alias for re-reading via Rebuild; kept as a named entry
// point so allocator code reads intent-first ("the graph must be refreshed
// here") even though the mechanism is the same Rebuild call.
func (g *Graph) Invalidate(src Source) error { return g.Rebuild(src) }

func (g *Graph) view(id model.MachineID) (*machineView, bool) {
	snap := g.cur.Load()
	mv, ok := snap.machines[id]
	return mv, ok
}

// Board looks up a board by id, regardless of which machine it belongs to.
func (g *Graph) Board(id model.BoardID) (*model.Board, bool) {
	v, ok := g.ids.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*model.Board), true
}

// BoardAt resolves a board by its logical triad coordinate within a machine.
func (g *Graph) BoardAt(machineID model.MachineID, c topology.Coord) (model.BoardID, bool) {
	mv, ok := g.view(machineID)
	if !ok {
		return model.InvalidBoardID, false
	}
	id, ok := mv.byCoord[coordKey{c.X, c.Y, c.Z}]
	return id, ok
}

// Machine returns the Machine record, if known.
func (g *Graph) Machine(id model.MachineID) (*model.Machine, bool) {
	mv, ok := g.view(id)
	if !ok {
		return nil, false
	}
	return mv.machine, true
}

// AllocatableBoards returns every board in the machine with
// MayBeAllocated() == true.
func (g *Graph) AllocatableBoards(machineID model.MachineID) []model.BoardID {
	mv, ok := g.view(machineID)
	if !ok {
		return nil
	}
	out := make([]model.BoardID, 0, len(mv.boards))
	for id, b := range mv.boards {
		if b.MayBeAllocated() {
			out = append(out, id)
		}
	}
	return out
}

// LinksBetween returns the live link connecting b1 and b2, if any.
func (g *Graph) LinksBetween(machineID model.MachineID, b1, b2 model.BoardID) (model.Link, bool) {
	mv, ok := g.view(machineID)
	if !ok {
		return model.Link{}, false
	}
	for _, l := range mv.links[b1] {
		if (l.Board1 == b1 && l.Board2 == b2) || (l.Board1 == b2 && l.Board2 == b1) {
			return l, true
		}
	}
	return model.Link{}, false
}

// LinksOf returns every live link touching board b.
func (g *Graph) LinksOf(machineID model.MachineID, b model.BoardID) []model.Link {
	mv, ok := g.view(machineID)
	if !ok {
		return nil
	}
	return mv.links[b]
}

// ConnectedComponent performs a BFS over live links starting at root,
// restricted to the board set `within`. The returned slice includes root itself when root is in `within`.
func (g *Graph) ConnectedComponent(machineID model.MachineID, root model.BoardID, within map[model.BoardID]bool) []model.BoardID {
	mv, ok := g.view(machineID)
	if !ok || !within[root] {
		return nil
	}
	seen := map[model.BoardID]bool{root: true}
	queue := []model.BoardID{root}
	order := []model.BoardID{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, l := range mv.links[cur] {
			other, _, ok := l.Endpoint(cur)
			if !ok || seen[other] || !within[other] {
				continue
			}
			seen[other] = true
			queue = append(queue, other)
			order = append(order, other)
		}
	}
	return order
}
