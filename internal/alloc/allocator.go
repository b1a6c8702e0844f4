package alloc

import (
	"time"

	"github.com/spinctl/boardctl/internal/boardgraph"
	"github.com/spinctl/boardctl/internal/metrics"
	"github.com/spinctl/boardctl/internal/model"
	"github.com/spinctl/boardctl/internal/store"
)

// Result is a successful allocation outcome.
type Result struct {
	Boards []model.BoardID
}

// Allocator finds rectangles or single boards for JobRequests and emits the
// power-change plan a ChangeApplier later drains. Every call to Allocate
// runs inside a single PersistentStore.Transaction.
type Allocator struct {
	graph *boardgraph.Graph
	store store.PersistentStore
	mx    *metrics.Allocator
}

// New constructs an Allocator over the given graph/store. The graph must
// already have been built (boardgraph.Graph.Rebuild) at least once.
func New(g *boardgraph.Graph, s store.PersistentStore, mx *metrics.Allocator) *Allocator {
	if mx == nil {
		mx = metrics.NewAllocator()
	}
	return &Allocator{graph: g, store: s, mx: mx}
}

// Allocate satisfies req for job, mutating PersistentStore (boards marked
// allocated, PendingChange rows written, AllocationHistory appended, job
// moved to POWER) only on success. On failure, nothing is mutated.
func (a *Allocator) Allocate(job *model.Job, req model.JobRequest, now time.Time) (*Result, error) {
	timer := a.mx.StartAllocation()
	defer timer.ObserveDuration()

	machine, ok := a.graph.Machine(job.MachineID)
	if !ok {
		a.mx.IncFailure(MachineUnknown.String())
		return nil, fail(MachineUnknown, "machine %q not known", job.MachineID)
	}

	if group := job.Group; group != "" {
		if quota, err := a.store.GroupQuota(group); err == nil && quota != nil && *quota == 0 {
			a.mx.IncFailure(QuotaExceeded.String())
			return nil, fail(QuotaExceeded, "group %q has no remaining quota", group)
		}
	}

	var (
		allocated map[model.BoardID]bool
		boards    []model.BoardID
	)

	switch req.Kind {
	case model.BySpecificBoard:
		b, ok := a.graph.Board(req.BoardID)
		if !ok || b.MachineID != job.MachineID {
			a.mx.IncFailure(BoardUnallocatable.String())
			return nil, fail(BoardUnallocatable, "board %s unknown on machine %q", req.BoardID, job.MachineID)
		}
		if !b.MayBeAllocated() {
			a.mx.IncFailure(BoardUnallocatable.String())
			return nil, fail(BoardUnallocatable, "board %s is not allocatable", req.BoardID)
		}
		boards = []model.BoardID{req.BoardID}
		allocated = map[model.BoardID]bool{req.BoardID: true}

	case model.ByCount, model.ByRectangle:
		w, h, maxDead := req.Width, req.Height, req.MaxDead
		need := req.NumBoards
		if req.Kind == model.ByCount {
			w, h = smallestRectangle(req.NumBoards)
			maxDead = req.MaxDead + (w*h*3 - req.NumBoards)
		} else {
			need = w * h * 3
		}

		anchors := scanAnchors(a.graph, job.MachineID, machine.Width, machine.Height, w, h)
		var chosen *anchorCandidate
		for i := range anchors {
			required := w*h*3 - maxDead
			if len(anchors[i].available) >= required {
				chosen = &anchors[i]
				break
			}
		}
		if chosen == nil {
			a.mx.IncFailure(NoCapacity.String())
			return nil, fail(NoCapacity, "no %dx%d (x3) region with <= %d dead boards", w, h, maxDead)
		}

		selectN := w * h * 3 - maxDead
		if req.Kind == model.ByCount {
			selectN = need
			if selectN > len(chosen.available) {
				selectN = len(chosen.available)
			}
		}
		boards = selectBoards(a.graph, chosen.available, selectN)
		allocated = make(map[model.BoardID]bool, len(boards))
		for _, b := range boards {
			allocated[b] = true
		}

		root, ok := a.graph.BoardAt(job.MachineID, chosen.anchor)
		if !ok || !allocated[root] {
			// anchor's own z=0 board wasn't selected (unlikely but
			// possible under heavy max_dead slack); fall back to any
			// selected board as the connectivity root.
			if len(boards) > 0 {
				root = boards[0]
			}
		}
		component := a.graph.ConnectedComponent(job.MachineID, root, allocated)
		if len(component) < len(boards)-maxDead {
			a.mx.IncFailure(NotConnected.String())
			return nil, fail(NotConnected, "connected component %d < required %d", len(component), len(boards)-maxDead)
		}

	default:
		a.mx.IncFailure(BoardUnallocatable.String())
		return nil, fail(BoardUnallocatable, "unknown request kind %v", req.Kind)
	}

	edges := perimeter(a.graph, job.MachineID, allocated)
	changes := powerPlan(job.ID, allocated, edges, model.JobReady)

	err := a.store.Transaction(func(tx store.Tx) error {
		for _, b := range boards {
			board, ok := a.graph.Board(b)
			if !ok {
				continue
			}
			cp := *board
			cp.AllocatedJob = job.ID
			if err := tx.PutBoard(&cp); err != nil {
				return err
			}
			if err := tx.AppendAllocationHistory(model.AllocationHistory{
				ID:        model.NewHistoryID(),
				JobID:     job.ID,
				BoardID:   b,
				Timestamp: now,
			}); err != nil {
				return err
			}
		}
		for _, pc := range changes {
			if err := tx.PutPendingChange(pc); err != nil {
				return err
			}
		}
		job.AllocationSize = len(boards)
		job.AllocationTimestamp = now
		job.NumPending = len(changes)
		if err := job.Transition(model.JobPower, now); err != nil {
			return err
		}
		return tx.PutJob(job)
	})
	if err != nil {
		a.mx.IncFailure("store")
		return nil, err
	}

	if err := a.graph.Rebuild(a.store); err != nil {
		// The allocation already committed; a stale in-memory view will be
		// refreshed on the next access. Surfacing this as an allocation
		// failure would be misleading since PersistentStore already has
		// the correct state.
		_ = err
	}

	a.mx.IncSuccess()
	return &Result{Boards: boards}, nil
}
