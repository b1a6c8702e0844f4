/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package frontend

import (
	"time"

	"github.com/pkg/errors"

	"github.com/spinctl/boardctl/internal/alloc"
	"github.com/spinctl/boardctl/internal/job"
	"github.com/spinctl/boardctl/internal/model"
)

// Service is the in-process Frontend: it chains job creation and board
// allocation so a submitted job comes back already in the POWER state with
// its pending power changes queued for the change applier.
type Service struct {
	lifecycle *job.Lifecycle
	allocator *alloc.Allocator
	now       func() time.Time
}

func NewService(l *job.Lifecycle, a *alloc.Allocator) *Service {
	return &Service{lifecycle: l, allocator: a, now: time.Now}
}

// SubmitJob creates a QUEUED job and immediately tries to allocate boards
// for it. A job whose allocation fails is destroyed rather than left
// queued forever: retry/requeue policy belongs to the caller, which still
// gets the allocation failure as the returned error.
func (s *Service) SubmitJob(owner, group string, machineID model.MachineID, req model.JobRequest, keepalive time.Duration) (model.JobID, error) {
	now := s.now()
	j, err := s.lifecycle.Create(owner, group, machineID, keepalive, nil, now)
	if err != nil {
		return "", err
	}
	if _, err := s.allocator.Allocate(j, req, now); err != nil {
		if derr := s.lifecycle.Destroy(j.ID, now, err.Error()); derr != nil {
			return "", errors.Wrapf(derr, "frontend: destroy after failed allocation (%v)", err)
		}
		return "", err
	}
	return j.ID, nil
}

func (s *Service) Keepalive(id model.JobID) error {
	return s.lifecycle.Keepalive(id, s.now())
}

func (s *Service) DestroyJob(id model.JobID, reason string) error {
	return s.lifecycle.Destroy(id, s.now(), reason)
}

var _ Frontend = (*Service)(nil)
