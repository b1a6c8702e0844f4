// Package changeapplier implements ChangeApplier: it drains
// pending_changes rows, respecting each board's settle delay, invoking
// BmpDriver with bounded retry, and advancing jobs to their target state
// once every pending change has landed. The drain loop applies once,
// removes the work item, and transitions on completion.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package changeapplier

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/spinctl/boardctl/internal/bmp"
	"github.com/spinctl/boardctl/internal/boardgraph"
	"github.com/spinctl/boardctl/internal/model"
	"github.com/spinctl/boardctl/internal/store"
)

// Destroyer is the subset of job.Lifecycle ChangeApplier needs to give up
// on a job whose BmpDriver retries are exhausted.
type Destroyer interface {
	Destroy(id model.JobID, now time.Time, reason string) error
}

// Applier drains PendingChange rows per machine.
type Applier struct {
	store    store.PersistentStore
	graph    *boardgraph.Graph
	driver   bmp.Driver
	destroy  Destroyer

	onDelay, offDelay time.Duration
	maxRetries        int
	backoffBase       time.Duration

	sem *semaphore.Weighted
}

// New constructs an Applier. maxParallel bounds concurrent per-machine
// drains (golang.org/x/sync/semaphore), since a cluster with many machines
// should not serialize BMP round trips across all of them.
func New(s store.PersistentStore, g *boardgraph.Graph, driver bmp.Driver, destroyer Destroyer, onDelay, offDelay time.Duration, maxParallel int64) *Applier {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Applier{
		store:       s,
		graph:       g,
		driver:      driver,
		destroy:     destroyer,
		onDelay:     onDelay,
		offDelay:    offDelay,
		maxRetries:  5,
		backoffBase: 100 * time.Millisecond,
		sem:         semaphore.NewWeighted(maxParallel),
	}
}

// DrainAll drains every machine's pending changes, bounded to maxParallel
// concurrent machine drains.
func (a *Applier) DrainAll(ctx context.Context, now time.Time) error {
	machines, err := a.store.Machines()
	if err != nil {
		return errors.Wrap(err, "changeapplier: list machines")
	}

	errCh := make(chan error, len(machines))
	for _, m := range machines {
		m := m
		if err := a.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		go func() {
			defer a.sem.Release(1)
			errCh <- a.Drain(ctx, m.ID, now)
		}()
	}
	var first error
	for range machines {
		if err := <-errCh; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Drain applies every eligible job's pending changes for one machine. A job
// is eligible only if none of its pending-change boards are busy: a board
// is busy while now < max(power_on_timestamp+on_delay, power_off_timestamp+off_delay).
func (a *Applier) Drain(ctx context.Context, machineID model.MachineID, now time.Time) error {
	pending, err := a.store.PendingChangesForMachine(machineID)
	if err != nil {
		return errors.Wrapf(err, "changeapplier: pending changes for %s", machineID)
	}
	if len(pending) == 0 {
		return nil
	}

	boards, err := a.store.BoardsForMachine(machineID)
	if err != nil {
		return errors.Wrapf(err, "changeapplier: boards for %s", machineID)
	}
	boardByID := make(map[model.BoardID]*model.Board, len(boards))
	for _, b := range boards {
		boardByID[b.ID] = b
	}

	byJob := make(map[model.JobID][]model.PendingChange)
	for _, pc := range pending {
		byJob[pc.JobID] = append(byJob[pc.JobID], pc)
	}

	for jobID, changes := range byJob {
		eligible := true
		for _, pc := range changes {
			b, ok := boardByID[pc.BoardID]
			if !ok {
				continue
			}
			if a.busy(b, now) {
				eligible = false
				break
			}
		}
		if !eligible {
			continue
		}
		if err := a.applyJob(ctx, machineID, jobID, changes, now); err != nil {
			return err
		}
	}
	return nil
}

func (a *Applier) busy(b *model.Board, now time.Time) bool {
	deadline := b.PowerOnTimestamp.Add(a.onDelay)
	if off := b.PowerOffTimestamp.Add(a.offDelay); off.After(deadline) {
		deadline = off
	}
	return now.Before(deadline)
}

func (a *Applier) applyJob(ctx context.Context, machineID model.MachineID, jobID model.JobID, changes []model.PendingChange, now time.Time) error {
	toState := changes[0].ToState
	for _, pc := range changes {
		if err := a.applyWithRetry(ctx, pc); err != nil {
			return a.destroy.Destroy(jobID, now, err.Error())
		}
		if err := a.commit(machineID, jobID, pc, now); err != nil {
			return errors.Wrapf(err, "changeapplier: commit job %s board %s", jobID, pc.BoardID)
		}
	}
	return a.finalize(jobID, toState, now)
}

// applyWithRetry retries a single BmpDriver.Apply call with doubling
// backoff, bounded by maxRetries.
func (a *Applier) applyWithRetry(ctx context.Context, pc model.PendingChange) error {
	backoff := a.backoffBase
	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if err := a.driver.Apply(ctx, pc); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == a.maxRetries {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return lastErr
}

func (a *Applier) commit(machineID model.MachineID, jobID model.JobID, pc model.PendingChange, now time.Time) error {
	return a.store.Transaction(func(tx store.Tx) error {
		boards, err := tx.BoardsForMachine(machineID)
		if err != nil {
			return err
		}
		for _, b := range boards {
			if b.ID != pc.BoardID {
				continue
			}
			cp := *b
			if pc.PowerOn {
				cp.PowerOnTimestamp = now
			} else {
				cp.PowerOffTimestamp = now
			}
			if err := tx.PutBoard(&cp); err != nil {
				return err
			}
			break
		}
		if err := tx.DeletePendingChange(jobID, pc.BoardID); err != nil {
			return err
		}
		j, err := tx.Job(jobID)
		if err != nil {
			return err
		}
		if j == nil {
			return nil
		}
		if j.NumPending > 0 {
			j.NumPending--
		}
		return tx.PutJob(j)
	})
}

// finalize transitions the job once its last pending change has landed.
func (a *Applier) finalize(jobID model.JobID, toState model.JobState, now time.Time) error {
	err := a.store.Transaction(func(tx store.Tx) error {
		j, err := tx.Job(jobID)
		if err != nil || j == nil {
			return err
		}
		if j.NumPending != 0 || !j.CanTransition() {
			return nil
		}
		if err := j.Transition(toState, now); err != nil {
			return err
		}
		return tx.PutJob(j)
	})
	if err != nil {
		return errors.Wrapf(err, "changeapplier: finalize %s", jobID)
	}
	return a.graph.Rebuild(a.store)
}
