// Package store defines the PersistentStore contract and a default,
// embedded-database implementation of it so the rest of the module is
// runnable without a real SQL deployment. Consumers depend only on the
// narrow interfaces here, satisfied by a concrete default at runtime.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package store

import (
	"github.com/spinctl/boardctl/internal/model"
)

// PersistentStore is the full external contract: reads used by
// boardgraph.Source, writes used by the allocator/lifecycle/change-applier,
// and the recording-content sink used by StoreSink.
type PersistentStore interface {
	// Reads (snapshot-consistent; may run concurrently with a writer).
	Machines() ([]*model.Machine, error)
	Machine(model.MachineID) (*model.Machine, error)
	BoardsForMachine(model.MachineID) ([]*model.Board, error)
	LinksForMachine(model.MachineID) ([]model.Link, error)
	Job(model.JobID) (*model.Job, error)
	Jobs() ([]*model.Job, error)
	PendingChangesForJob(model.JobID) ([]model.PendingChange, error)
	PendingChangesForMachine(model.MachineID) ([]model.PendingChange, error)
	GroupQuota(group string) (*uint64, error) // nil = unlimited

	// Transaction runs fn under a single serialized, writer-exclusive
	// transaction. Only one Transaction runs at a time;
	// readers are unaffected. A Busy PersistenceError from fn is retried
	// by Transaction itself with backoff, up to a fixed number of
	// attempts; there is no context or deadline.
	Transaction(fn func(Tx) error) error

	// AppendRecordingContents is StoreSink's single write path.
	AppendRecordingContents(region model.Region, buf []byte) error

	Close() error
}

// Tx is the mutation surface available inside a PersistentStore.Transaction
// callback.
type Tx interface {
	PutMachine(*model.Machine) error
	PutBoard(*model.Board) error
	PutLink(model.MachineID, model.Link) error
	PutJob(*model.Job) error
	DeletePendingChange(model.JobID, model.BoardID) error
	PutPendingChange(model.PendingChange) error
	AppendAllocationHistory(model.AllocationHistory) error
	SetGroupQuota(group string, quota *uint64) error
	DeductQuota(group string, amount uint64) error

	Machines() ([]*model.Machine, error)
	BoardsForMachine(model.MachineID) ([]*model.Board, error)
	LinksForMachine(model.MachineID) ([]model.Link, error)
	Job(model.JobID) (*model.Job, error)
	Jobs() ([]*model.Job, error)
	PendingChangesForMachine(model.MachineID) ([]model.PendingChange, error)
	PendingChangesForJob(model.JobID) ([]model.PendingChange, error)
}
