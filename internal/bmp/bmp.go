// Package bmp defines the BmpDriver contract and a software-simulated
// default implementation used when no real BMP hardware is wired up.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package bmp

import (
	"context"
	"math/rand"
	"sync"

	"github.com/pkg/errors"

	"github.com/spinctl/boardctl/internal/model"
)

// Reason enumerates BmpError's taxonomy.
type Reason int

const (
	Unreachable Reason = iota
	Rejected
	Settling
)

func (r Reason) String() string {
	switch r {
	case Unreachable:
		return "Unreachable"
	case Rejected:
		return "Rejected"
	case Settling:
		return "Settling"
	default:
		return "Unknown"
	}
}

// BmpError is returned by Driver.Apply; retried a bounded number of times
// by the caller (internal/changeapplier), then terminal.
type BmpError struct {
	Reason Reason
	Err    error
}

func (e *BmpError) Error() string { return "bmp: " + e.Reason.String() + ": " + e.Err.Error() }
func (e *BmpError) Unwrap() error { return e.Err }

// Driver is the external collaborator that actually toggles board/FPGA
// power, out of band from the boards themselves. Apply is the
// only operation ChangeApplier needs from it.
type Driver interface {
	Apply(ctx context.Context, change model.PendingChange) error
}

// Simulated is a default, in-process Driver standing in for real BMP
// hardware: it "succeeds" after a configurable transient-failure rate,
// useful for exercising ChangeApplier's retry/backoff path in tests and in
// standalone runs without a physical cluster.
type Simulated struct {
	mu          sync.Mutex
	rng         *rand.Rand
	FailureRate float64 // 0..1, probability Apply returns a transient BmpError
}

func NewSimulated(seed int64, failureRate float64) *Simulated {
	return &Simulated{rng: rand.New(rand.NewSource(seed)), FailureRate: failureRate}
}

func (s *Simulated) Apply(ctx context.Context, _ model.PendingChange) error {
	select {
	case <-ctx.Done():
		return &BmpError{Reason: Unreachable, Err: ctx.Err()}
	default:
	}
	s.mu.Lock()
	fail := s.rng.Float64() < s.FailureRate
	s.mu.Unlock()
	if fail {
		return &BmpError{Reason: Settling, Err: errors.New("board not yet ready")}
	}
	return nil
}
