package model

import (
	"testing"
	"time"

	"github.com/spinctl/boardctl/internal/topology"
)

func TestNewMachineInvariants(t *testing.T) {
	if _, err := NewMachine("m1", 0, 4, 3, 5, nil, true); err == nil {
		t.Error("expected error for width=0")
	}
	if _, err := NewMachine("m1", 4, 4, 2, 5, nil, true); err == nil {
		t.Error("expected error for depth=2")
	}
	if _, err := NewMachine("m{1}", 4, 4, 3, 5, nil, true); err == nil {
		t.Error("expected error for braces in name")
	}
	m, err := NewMachine("m1", 4, 4, 3, 5, nil, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.NumTriadSlots(); got != 48 {
		t.Errorf("NumTriadSlots() = %d, want 48", got)
	}
}

func TestNewLinkOrdering(t *testing.T) {
	if _, err := NewLink(BoardID(2), topology.N, BoardID(1), topology.S, true); err == nil {
		t.Error("expected error when board_1 > board_2")
	}
	l, err := NewLink(BoardID(1), topology.N, BoardID(2), topology.S, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b, d, ok := l.Endpoint(BoardID(1)); !ok || b != BoardID(2) || d != topology.N {
		t.Errorf("Endpoint(1) = (%v,%v,%v), want (2,N,true)", b, d, ok)
	}
	if b, d, ok := l.Endpoint(BoardID(2)); !ok || b != BoardID(1) || d != topology.S {
		t.Errorf("Endpoint(2) = (%v,%v,%v), want (1,S,true)", b, d, ok)
	}
	if _, _, ok := l.Endpoint(BoardID(99)); ok {
		t.Error("Endpoint(99) should report false")
	}
}

func TestBoardMayBeAllocated(t *testing.T) {
	n := 1
	cases := []struct {
		name string
		b    Board
		want bool
	}{
		{"clean", Board{BoardNum: &n}, true},
		{"no_board_num", Board{BoardNum: nil}, false},
		{"allocated", Board{BoardNum: &n, AllocatedJob: "job1"}, false},
		{"not_functioning", Board{BoardNum: &n, Functioning: TriFalse}, false},
		{"unknown_functioning_ok", Board{BoardNum: &n, Functioning: TriUnknown}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.b.MayBeAllocated(); got != c.want {
				t.Errorf("MayBeAllocated() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestJobTransitionTerminal(t *testing.T) {
	j := &Job{State: JobQueued}
	now := time.Now()
	if err := j.Transition(JobPower, now); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := j.Destroy(now, "test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := j.Transition(JobReady, now); err == nil {
		t.Error("expected error transitioning out of DESTROYED")
	}
}

func TestJobDeathTimestampMonotonicity(t *testing.T) {
	alloc := time.Now()
	j := &Job{State: JobPower, AllocationTimestamp: alloc}
	earlier := alloc.Add(-time.Hour)
	if err := j.Transition(JobDestroyed, earlier); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if j.DeathTimestamp.Before(j.AllocationTimestamp) {
		t.Errorf("death timestamp %v precedes allocation timestamp %v", j.DeathTimestamp, j.AllocationTimestamp)
	}
}

func TestJobDeathTimestampNoAllocation(t *testing.T) {
	now := time.Now()
	j := &Job{State: JobQueued}
	if err := j.Destroy(now, "never allocated"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !j.DeathTimestamp.Equal(now) {
		t.Errorf("DeathTimestamp = %v, want %v", j.DeathTimestamp, now)
	}
	if j.DeathReason != "never allocated" {
		t.Errorf("DeathReason = %q", j.DeathReason)
	}
}

func TestDecodeRecordingRegion(t *testing.T) {
	// space=7, missing=true, size=0x12345, data_addr=0xABCDEF01
	buf := []byte{
		7, 0, 0, 0,
		0x45, 0x23, 0x01, 0x80, // size=0x12345 | 0x80000000
		0x01, 0xEF, 0xCD, 0xAB,
	}
	rr, err := DecodeRecordingRegion(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rr.Space != 7 || !rr.Missing || rr.Size != 0x12345 || rr.DataAddr != 0xABCDEF01 {
		t.Errorf("DecodeRecordingRegion = %+v", rr)
	}
}

func TestDecodeRecordingRegionShort(t *testing.T) {
	if _, err := DecodeRecordingRegion([]byte{1, 2, 3}); err == nil {
		t.Error("expected error on truncated input")
	}
}

func TestNewJobIDUnique(t *testing.T) {
	a := NewJobID()
	b := NewJobID()
	if a == b {
		t.Errorf("expected distinct job ids, got %q twice", a)
	}
}
