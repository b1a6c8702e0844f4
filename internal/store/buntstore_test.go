package store

import (
	"testing"

	"github.com/spinctl/boardctl/internal/model"
)

func openTest(t *testing.T) *BuntStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestTransactionCommitsWrites(t *testing.T) {
	s := openTest(t)
	err := s.Transaction(func(tx Tx) error {
		m, merr := model.NewMachine("m1", 4, 4, 3, 5, nil, true)
		if merr != nil {
			return merr
		}
		return tx.PutMachine(m)
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	got, err := s.Machine("m1")
	if err != nil {
		t.Fatalf("Machine: %v", err)
	}
	if got == nil || got.Width != 4 {
		t.Fatalf("Machine = %+v, want Width=4", got)
	}
}

// TestTransactionAllOrNothing checks that a failing transaction body rolls
// back every write it attempted.
func TestTransactionAllOrNothing(t *testing.T) {
	s := openTest(t)
	sentinel := stdErrSentinel{}
	err := s.Transaction(func(tx Tx) error {
		m, _ := model.NewMachine("m1", 4, 4, 3, 5, nil, true)
		if err := tx.PutMachine(m); err != nil {
			return err
		}
		return sentinel
	})
	if err == nil {
		t.Fatal("expected transaction to fail")
	}
	got, err := s.Machine("m1")
	if err != nil {
		t.Fatalf("Machine: %v", err)
	}
	if got != nil {
		t.Fatalf("expected no machine to be persisted after rollback, got %+v", got)
	}
}

type stdErrSentinel struct{}

func (stdErrSentinel) Error() string { return "boom" }

// TestTransactionRetriesOnBusy checks that a Busy PersistenceError from fn
// is retried with backoff rather than surfaced immediately.
func TestTransactionRetriesOnBusy(t *testing.T) {
	s := openTest(t)
	attempts := 0
	err := s.Transaction(func(tx Tx) error {
		attempts++
		if attempts < 3 {
			return newErr(Busy, "simulated contention")
		}
		m, _ := model.NewMachine("m1", 2, 2, 3, 5, nil, true)
		return tx.PutMachine(m)
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestAppendRecordingContentsAccumulates(t *testing.T) {
	s := openTest(t)
	region := model.Region{Core: model.Core{X: 1, Y: 2, P: 3}, RegionIndex: 0}
	if err := s.AppendRecordingContents(region, []byte("abc")); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := s.AppendRecordingContents(region, []byte("def")); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	// No direct read accessor is part of the PersistentStore contract (the
	// region's on-disk contents are consumed by a downstream reporting
	// path out of scope here); re-appending to the same key must not
	// error, which is the property under test.
}

func TestAppendRecordingContentsZeroLength(t *testing.T) {
	s := openTest(t)
	region := model.Region{Core: model.Core{X: 0, Y: 0, P: 0}, RegionIndex: 0}
	if err := s.AppendRecordingContents(region, []byte{}); err != nil {
		t.Fatalf("append zero-length: %v", err)
	}
}

func TestGroupQuotaUnlimitedByDefault(t *testing.T) {
	s := openTest(t)
	q, err := s.GroupQuota("nonexistent")
	if err != nil {
		t.Fatalf("GroupQuota: %v", err)
	}
	if q != nil {
		t.Fatalf("expected nil (unlimited) quota, got %v", *q)
	}
}

func TestDeductQuotaClampsToZero(t *testing.T) {
	s := openTest(t)
	err := s.Transaction(func(tx Tx) error {
		q := uint64(10)
		if err := tx.SetGroupQuota("g", &q); err != nil {
			return err
		}
		return tx.DeductQuota("g", 100)
	})
	if err != nil {
		t.Fatalf("Transaction: %v", err)
	}
	q, err := s.GroupQuota("g")
	if err != nil || q == nil {
		t.Fatalf("GroupQuota: %v, %v", q, err)
	}
	if *q != 0 {
		t.Fatalf("quota = %d, want 0 (clamped)", *q)
	}
}
