package changeapplier

import (
	"context"
	"testing"
	"time"

	"github.com/spinctl/boardctl/internal/boardgraph"
	"github.com/spinctl/boardctl/internal/model"
	"github.com/spinctl/boardctl/internal/store"
)

type fakeDriver struct {
	fails int // number of leading Apply calls that fail with a transient error
	calls int
}

func (d *fakeDriver) Apply(ctx context.Context, change model.PendingChange) error {
	d.calls++
	if d.calls <= d.fails {
		return &transientErr{}
	}
	return nil
}

type transientErr struct{}

func (*transientErr) Error() string { return "bmp: Settling: board not yet ready" }

type fakeDestroyer struct {
	destroyed []model.JobID
	reason    string
}

func (d *fakeDestroyer) Destroy(id model.JobID, now time.Time, reason string) error {
	d.destroyed = append(d.destroyed, id)
	d.reason = reason
	return nil
}

func newStoreAndGraph(t *testing.T) (store.PersistentStore, *boardgraph.Graph) {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	g := boardgraph.New()
	if err := g.Rebuild(s); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	return s, g
}

// TestDrainAppliesAndFinalizes checks the happy path: a job with one pending
// change drains, the board's power_on_timestamp updates, the row is
// deleted, num_pending reaches 0, and the job transitions to its target
// state.
func TestDrainAppliesAndFinalizes(t *testing.T) {
	s, g := newStoreAndGraph(t)
	n := 1
	now := time.Unix(1000, 0)

	err := s.Transaction(func(tx store.Tx) error {
		m, _ := model.NewMachine("m", 1, 1, 1, 5, nil, true)
		if err := tx.PutMachine(m); err != nil {
			return err
		}
		if err := tx.PutBoard(&model.Board{ID: 0, MachineID: "m", BoardNum: &n}); err != nil {
			return err
		}
		job := &model.Job{ID: "job1", MachineID: "m", State: model.JobPower, NumPending: 1}
		if err := tx.PutJob(job); err != nil {
			return err
		}
		return tx.PutPendingChange(model.PendingChange{JobID: "job1", BoardID: 0, PowerOn: true, ToState: model.JobReady})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	driver := &fakeDriver{}
	destroyer := &fakeDestroyer{}
	a := New(s, g, driver, destroyer, 20*time.Second, 30*time.Second, 4)

	if err := a.Drain(context.Background(), "m", now); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	job, err := s.Job("job1")
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if job.State != model.JobReady {
		t.Fatalf("State = %v, want READY", job.State)
	}
	if job.NumPending != 0 {
		t.Fatalf("NumPending = %d, want 0", job.NumPending)
	}

	changes, err := s.PendingChangesForJob("job1")
	if err != nil {
		t.Fatalf("PendingChangesForJob: %v", err)
	}
	if len(changes) != 0 {
		t.Fatalf("expected pending change row to be deleted, got %+v", changes)
	}

	boards, err := s.BoardsForMachine("m")
	if err != nil {
		t.Fatalf("BoardsForMachine: %v", err)
	}
	if !boards[0].PowerOnTimestamp.Equal(now) {
		t.Fatalf("PowerOnTimestamp = %v, want %v", boards[0].PowerOnTimestamp, now)
	}
	if len(destroyer.destroyed) != 0 {
		t.Fatalf("expected no destroy calls, got %v", destroyer.destroyed)
	}
}

// TestDrainSkipsBusyBoard checks that a job is not drained while any of its
// boards is still within its settle delay.
func TestDrainSkipsBusyBoard(t *testing.T) {
	s, g := newStoreAndGraph(t)
	n := 1
	now := time.Unix(1000, 0)

	err := s.Transaction(func(tx store.Tx) error {
		m, _ := model.NewMachine("m", 1, 1, 1, 5, nil, true)
		if err := tx.PutMachine(m); err != nil {
			return err
		}
		// PowerOffTimestamp is recent; off_delay=30s means this board is
		// still busy at now=1000 if power_off_timestamp=990.
		if err := tx.PutBoard(&model.Board{ID: 0, MachineID: "m", BoardNum: &n, PowerOffTimestamp: time.Unix(990, 0)}); err != nil {
			return err
		}
		job := &model.Job{ID: "job1", MachineID: "m", State: model.JobPower, NumPending: 1}
		if err := tx.PutJob(job); err != nil {
			return err
		}
		return tx.PutPendingChange(model.PendingChange{JobID: "job1", BoardID: 0, PowerOn: true, ToState: model.JobReady})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	driver := &fakeDriver{}
	destroyer := &fakeDestroyer{}
	a := New(s, g, driver, destroyer, 20*time.Second, 30*time.Second, 4)

	if err := a.Drain(context.Background(), "m", now); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if driver.calls != 0 {
		t.Fatalf("expected Apply not called while board busy, calls = %d", driver.calls)
	}

	changes, err := s.PendingChangesForJob("job1")
	if err != nil {
		t.Fatalf("PendingChangesForJob: %v", err)
	}
	if len(changes) != 1 {
		t.Fatalf("expected pending change to remain, got %+v", changes)
	}
}

// TestDrainRetriesThenDestroysOnExhaustion checks that when BmpDriver fails
// beyond the retry bound, the job is destroyed with the BMP error as its
// death reason.
func TestDrainRetriesThenDestroysOnExhaustion(t *testing.T) {
	s, g := newStoreAndGraph(t)
	n := 1
	now := time.Unix(1000, 0)

	err := s.Transaction(func(tx store.Tx) error {
		m, _ := model.NewMachine("m", 1, 1, 1, 5, nil, true)
		if err := tx.PutMachine(m); err != nil {
			return err
		}
		if err := tx.PutBoard(&model.Board{ID: 0, MachineID: "m", BoardNum: &n}); err != nil {
			return err
		}
		job := &model.Job{ID: "job1", MachineID: "m", State: model.JobPower, NumPending: 1}
		if err := tx.PutJob(job); err != nil {
			return err
		}
		return tx.PutPendingChange(model.PendingChange{JobID: "job1", BoardID: 0, PowerOn: true, ToState: model.JobReady})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	driver := &fakeDriver{fails: 1000} // always fails
	destroyer := &fakeDestroyer{}
	a := New(s, g, driver, destroyer, time.Millisecond, time.Millisecond, 4)
	a.backoffBase = time.Microsecond // keep the test fast

	if err := a.Drain(context.Background(), "m", now); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if len(destroyer.destroyed) != 1 || destroyer.destroyed[0] != "job1" {
		t.Fatalf("expected job1 to be destroyed, got %v", destroyer.destroyed)
	}
	if driver.calls != a.maxRetries+1 {
		t.Fatalf("Apply calls = %d, want %d", driver.calls, a.maxRetries+1)
	}
}

// TestDrainNoPendingChangesIsNoop covers the trivial case.
func TestDrainNoPendingChangesIsNoop(t *testing.T) {
	s, g := newStoreAndGraph(t)
	driver := &fakeDriver{}
	destroyer := &fakeDestroyer{}
	a := New(s, g, driver, destroyer, time.Second, time.Second, 1)
	if err := a.Drain(context.Background(), "m", time.Now()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if driver.calls != 0 {
		t.Fatalf("expected no Apply calls, got %d", driver.calls)
	}
}
