// Package job implements the per-job state machine:
// QUEUED -> POWER -> READY -> DESTROYED, keepalive expiry, and quota
// accounting. Tick and Accounting are periodic sweeps: scan everything,
// act on what qualifies.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package job

import (
	"time"

	"github.com/pkg/errors"

	"github.com/spinctl/boardctl/internal/boardgraph"
	"github.com/spinctl/boardctl/internal/model"
	"github.com/spinctl/boardctl/internal/store"
)

// Lifecycle owns job creation, keepalive expiry, and quota accounting.
type Lifecycle struct {
	store store.PersistentStore
	graph *boardgraph.Graph
}

func New(s store.PersistentStore, g *boardgraph.Graph) *Lifecycle {
	return &Lifecycle{store: s, graph: g}
}

// Create makes a fresh QUEUED job.
func (l *Lifecycle) Create(owner, group string, machineID model.MachineID, keepaliveInterval time.Duration, originalRequest []byte, now time.Time) (*model.Job, error) {
	j := &model.Job{
		ID:                 model.NewJobID(),
		Owner:              owner,
		Group:              group,
		MachineID:          machineID,
		State:              model.JobQueued,
		KeepaliveInterval:  keepaliveInterval,
		KeepaliveTimestamp: now,
		OriginalRequest:    originalRequest,
		RootBoard:          model.InvalidBoardID,
	}
	err := l.store.Transaction(func(tx store.Tx) error {
		return tx.PutJob(j)
	})
	if err != nil {
		return nil, errors.Wrap(err, "job: create")
	}
	return j, nil
}

// Keepalive bumps a job's keepalive timestamp, as driven by the Frontend's
// periodic keepalive traffic.
func (l *Lifecycle) Keepalive(id model.JobID, now time.Time) error {
	return l.store.Transaction(func(tx store.Tx) error {
		j, err := tx.Job(id)
		if err != nil {
			return err
		}
		if j == nil || !j.CanTransition() {
			return nil
		}
		j.KeepaliveTimestamp = now
		return tx.PutJob(j)
	})
}

// Tick expires jobs whose keepalive interval has elapsed:
// for each job in {QUEUED, POWER, READY}, if now - keepalive_timestamp >
// keepalive_interval, the job is destroyed with "keepalive expired".
// A keepalive_interval of zero expires the job on the very next tick.
func (l *Lifecycle) Tick(now time.Time) error {
	jobs, err := l.store.Jobs()
	if err != nil {
		return errors.Wrap(err, "job: tick: list jobs")
	}
	for _, j := range jobs {
		switch j.State {
		case model.JobQueued, model.JobPower, model.JobReady:
		default:
			continue
		}
		if now.Sub(j.KeepaliveTimestamp) > j.KeepaliveInterval {
			if err := l.Destroy(j.ID, now, "keepalive expired"); err != nil {
				return err
			}
		}
	}
	return nil
}

// Destroy transitions a job to DESTROYED, frees its boards, and emits
// power-off PendingChanges for them.
func (l *Lifecycle) Destroy(id model.JobID, now time.Time, reason string) error {
	err := l.store.Transaction(func(tx store.Tx) error {
		j, err := tx.Job(id)
		if err != nil {
			return err
		}
		if j == nil || !j.CanTransition() {
			return nil
		}

		history, err := tx.PendingChangesForJob(id)
		if err != nil {
			return err
		}
		seen := make(map[model.BoardID]bool, len(history))
		for _, pc := range history {
			seen[pc.BoardID] = true
			if err := tx.DeletePendingChange(pc.JobID, pc.BoardID); err != nil {
				return err
			}
		}

		if j.MachineID != "" {
			boards, err := tx.BoardsForMachine(j.MachineID)
			if err != nil {
				return err
			}
			for _, b := range boards {
				if b.AllocatedJob != id {
					continue
				}
				cp := *b
				cp.AllocatedJob = ""
				if err := tx.PutBoard(&cp); err != nil {
					return err
				}
				if err := tx.PutPendingChange(model.PendingChange{
					JobID:   id,
					BoardID: b.ID,
					PowerOn: false,
					ToState: model.JobDestroyed,
				}); err != nil {
					return err
				}
			}
		}

		if err := j.Destroy(now, reason); err != nil {
			return err
		}
		return tx.PutJob(j)
	})
	if err != nil {
		return errors.Wrapf(err, "job: destroy %s", id)
	}
	return l.graph.Rebuild(l.store)
}

// Accounting deducts quota for jobs that have finished (or are periodically
// due) and haven't yet been accounted for:
// quota_used += allocation_size * (min(now, death_timestamp) - allocation_timestamp),
// clamped to >= 0, deducted from the job's group (unlimited if nil).
func (l *Lifecycle) Accounting(now time.Time) error {
	jobs, err := l.store.Jobs()
	if err != nil {
		return errors.Wrap(err, "job: accounting: list jobs")
	}
	for _, j := range jobs {
		if j.AccountedFor {
			continue
		}
		if j.State != model.JobDestroyed && j.AllocationTimestamp.IsZero() {
			continue
		}
		end := now
		if j.State == model.JobDestroyed {
			end = j.DeathTimestamp
		}
		if end.After(now) {
			end = now
		}
		elapsed := end.Sub(j.AllocationTimestamp)
		if elapsed < 0 {
			elapsed = 0
		}
		total := uint64(j.AllocationSize) * uint64(elapsed.Seconds())

		err := l.store.Transaction(func(tx store.Tx) error {
			cur, err := tx.Job(j.ID)
			if err != nil || cur == nil {
				return err
			}
			// Accounting may run repeatedly against an active job before
			// it's destroyed; only the delta
			// since the last run is newly deducted from group quota.
			var delta uint64
			if total > cur.QuotaUsed {
				delta = total - cur.QuotaUsed
			}
			cur.QuotaUsed = total
			if j.State == model.JobDestroyed {
				cur.AccountedFor = true
			}
			if err := tx.PutJob(cur); err != nil {
				return err
			}
			if cur.Group != "" && delta > 0 {
				return tx.DeductQuota(cur.Group, delta)
			}
			return nil
		})
		if err != nil {
			return errors.Wrapf(err, "job: accounting %s", j.ID)
		}
	}
	return nil
}
