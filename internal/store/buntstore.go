package store

import (
	"fmt"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"

	"github.com/spinctl/boardctl/internal/model"
)

var jsonc = jsoniter.ConfigCompatibleWithStandardLibrary

// BuntStore is the reference PersistentStore backed by tidwall/buntdb, an
// embedded, indexed key-value engine standing in for an external SQL store,
// minus the SQL: schema and migration management stay out of this module.
//
// Key layout:
//
//	machine:<id>                   -> model.Machine
//	board:<machineID>:<boardID>     -> model.Board
//	link:<machineID>:<b1>-<b2>      -> model.Link
//	job:<jobID>                     -> model.Job
//	pending:<jobID>:<boardID>       -> model.PendingChange
//	history:<id>                    -> model.AllocationHistory
//	quota:<group>                   -> uint64 (absent = unlimited)
type BuntStore struct {
	db *buntdb.DB

	writeMu chan struct{} // 1-buffered: writer-exclusive transaction gate
}

const busyRetries = 20

// Open creates or opens a BuntStore at path (":memory:" for an in-memory
// instance, as the tests use; the CLI subcommands open the --store path).
func Open(path string) (*BuntStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrap(newErr(Corrupted, "open buntdb at %s: %v", path, err), "store: open")
	}
	bs := &BuntStore{db: db, writeMu: make(chan struct{}, 1)}
	bs.writeMu <- struct{}{}
	return bs, nil
}

func (s *BuntStore) Close() error { return s.db.Close() }

//
// reads
//

func (s *BuntStore) Machines() (out []*model.Machine, err error) {
	err = s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("machine:*", func(_, v string) bool {
			m := &model.Machine{}
			if jerr := jsonc.UnmarshalFromString(v, m); jerr != nil {
				err = jerr
				return false
			}
			out = append(out, m)
			return true
		})
	})
	return out, wrapCorrupted(err)
}

func (s *BuntStore) Machine(id model.MachineID) (*model.Machine, error) {
	var m model.Machine
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(machineKey(id))
		if err != nil {
			return err
		}
		return jsonc.UnmarshalFromString(v, &m)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapCorrupted(err)
	}
	return &m, nil
}

func (s *BuntStore) BoardsForMachine(id model.MachineID) (out []*model.Board, err error) {
	err = s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(fmt.Sprintf("board:%s:*", id), func(_, v string) bool {
			b := &model.Board{}
			if jerr := jsonc.UnmarshalFromString(v, b); jerr != nil {
				err = jerr
				return false
			}
			out = append(out, b)
			return true
		})
	})
	return out, wrapCorrupted(err)
}

func (s *BuntStore) LinksForMachine(id model.MachineID) (out []model.Link, err error) {
	err = s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(fmt.Sprintf("link:%s:*", id), func(_, v string) bool {
			var l model.Link
			if jerr := jsonc.UnmarshalFromString(v, &l); jerr != nil {
				err = jerr
				return false
			}
			out = append(out, l)
			return true
		})
	})
	return out, wrapCorrupted(err)
}

func (s *BuntStore) Job(id model.JobID) (*model.Job, error) {
	var j model.Job
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(jobKey(id))
		if err != nil {
			return err
		}
		return jsonc.UnmarshalFromString(v, &j)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapCorrupted(err)
	}
	return &j, nil
}

func (s *BuntStore) Jobs() (out []*model.Job, err error) {
	err = s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("job:*", func(_, v string) bool {
			j := &model.Job{}
			if jerr := jsonc.UnmarshalFromString(v, j); jerr != nil {
				err = jerr
				return false
			}
			out = append(out, j)
			return true
		})
	})
	return out, wrapCorrupted(err)
}

func (s *BuntStore) PendingChangesForJob(id model.JobID) (out []model.PendingChange, err error) {
	err = s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(fmt.Sprintf("pending:%s:*", id), func(_, v string) bool {
			var pc model.PendingChange
			if jerr := jsonc.UnmarshalFromString(v, &pc); jerr != nil {
				err = jerr
				return false
			}
			out = append(out, pc)
			return true
		})
	})
	return out, wrapCorrupted(err)
}

func (s *BuntStore) PendingChangesForMachine(id model.MachineID) (out []model.PendingChange, err error) {
	// pending_changes aren't indexed by machine directly; we join through
	// jobs, since a job has exactly one machine.
	jobs, err := s.Jobs()
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.MachineID != id {
			continue
		}
		pcs, err := s.PendingChangesForJob(j.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, pcs...)
	}
	return out, nil
}

func (s *BuntStore) GroupQuota(group string) (*uint64, error) {
	var q uint64
	err := s.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(quotaKey(group))
		if err != nil {
			return err
		}
		return jsonc.UnmarshalFromString(v, &q)
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapCorrupted(err)
	}
	return &q, nil
}

func (s *BuntStore) AppendRecordingContents(region model.Region, buf []byte) error {
	key := fmt.Sprintf("region:%d:%d:%d:%d", region.Core.X, region.Core.Y, region.Core.P, region.RegionIndex)
	return s.db.Update(func(tx *buntdb.Tx) error {
		existing, err := tx.Get(key)
		if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		_, _, err = tx.Set(key, existing+string(buf), nil)
		return err
	})
}

//
// writer-exclusive transaction
//

// Transaction implements pessimistic writer exclusion: only one
// Transaction body runs at a time (the writeMu channel token), while View
// reads proceed against buntdb's own MVCC snapshot regardless. A Busy error
// from fn is retried with exponential backoff up to busyRetries times.
func (s *BuntStore) Transaction(fn func(Tx) error) error {
	select {
	case <-s.writeMu:
	default:
		// Someone else holds the gate; wait for it. Writers stay
		// single-threaded.
		<-s.writeMu
	}
	defer func() { s.writeMu <- struct{}{} }()

	backoff := 5 * time.Millisecond
	for attempt := 0; attempt < busyRetries; attempt++ {
		var txErr error
		err := s.db.Update(func(btx *buntdb.Tx) error {
			tx := &buntTx{btx: btx}
			txErr = fn(tx)
			if txErr != nil {
				// Roll back the buntdb transaction by returning its error;
				// buntdb discards all writes made in this Update call.
				return txErr
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if IsReason(txErr, Busy) {
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		return err
	}
	return newErr(Busy, "transaction exceeded %d retries", busyRetries)
}

type buntTx struct{ btx *buntdb.Tx }

func (t *buntTx) PutMachine(m *model.Machine) error {
	v, err := jsonc.MarshalToString(m)
	if err != nil {
		return err
	}
	_, _, err = t.btx.Set(machineKey(m.ID), v, nil)
	return err
}

func (t *buntTx) PutBoard(b *model.Board) error {
	v, err := jsonc.MarshalToString(b)
	if err != nil {
		return err
	}
	_, _, err = t.btx.Set(boardKey(b.MachineID, b.ID), v, nil)
	return err
}

func (t *buntTx) PutLink(machineID model.MachineID, l model.Link) error {
	v, err := jsonc.MarshalToString(l)
	if err != nil {
		return err
	}
	// Links are keyed by their two endpoints, which is already unique per
	// (board,dir) by construction (model.NewLink enforces board1<=board2).
	key := fmt.Sprintf("link:%s:%d-%d", machineID, l.Board1, l.Board2)
	_, _, err = t.btx.Set(key, v, nil)
	return err
}

func (t *buntTx) PutJob(j *model.Job) error {
	v, err := jsonc.MarshalToString(j)
	if err != nil {
		return err
	}
	_, _, err = t.btx.Set(jobKey(j.ID), v, nil)
	return err
}

func (t *buntTx) DeletePendingChange(jobID model.JobID, boardID model.BoardID) error {
	_, err := t.btx.Delete(pendingKey(jobID, boardID))
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil
	}
	return err
}

func (t *buntTx) PutPendingChange(pc model.PendingChange) error {
	v, err := jsonc.MarshalToString(pc)
	if err != nil {
		return err
	}
	_, _, err = t.btx.Set(pendingKey(pc.JobID, pc.BoardID), v, nil)
	return err
}

func (t *buntTx) AppendAllocationHistory(h model.AllocationHistory) error {
	v, err := jsonc.MarshalToString(h)
	if err != nil {
		return err
	}
	_, _, err = t.btx.Set("history:"+h.ID, v, nil)
	return err
}

func (t *buntTx) SetGroupQuota(group string, quota *uint64) error {
	if quota == nil {
		_, err := t.btx.Delete(quotaKey(group))
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		return err
	}
	v, err := jsonc.MarshalToString(*quota)
	if err != nil {
		return err
	}
	_, _, err = t.btx.Set(quotaKey(group), v, nil)
	return err
}

func (t *buntTx) DeductQuota(group string, amount uint64) error {
	v, err := t.btx.Get(quotaKey(group))
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil // unlimited
	}
	if err != nil {
		return err
	}
	var q uint64
	if err := jsonc.UnmarshalFromString(v, &q); err != nil {
		return err
	}
	if amount > q {
		q = 0
	} else {
		q -= amount
	}
	nv, err := jsonc.MarshalToString(q)
	if err != nil {
		return err
	}
	_, _, err = t.btx.Set(quotaKey(group), nv, nil)
	return err
}

func (t *buntTx) Machines() (out []*model.Machine, err error) {
	err = t.btx.AscendKeys("machine:*", func(_, v string) bool {
		m := &model.Machine{}
		if jerr := jsonc.UnmarshalFromString(v, m); jerr != nil {
			err = jerr
			return false
		}
		out = append(out, m)
		return true
	})
	return out, err
}

func (t *buntTx) BoardsForMachine(id model.MachineID) (out []*model.Board, err error) {
	err = t.btx.AscendKeys(fmt.Sprintf("board:%s:*", id), func(_, v string) bool {
		b := &model.Board{}
		if jerr := jsonc.UnmarshalFromString(v, b); jerr != nil {
			err = jerr
			return false
		}
		out = append(out, b)
		return true
	})
	return out, err
}

func (t *buntTx) LinksForMachine(id model.MachineID) (out []model.Link, err error) {
	err = t.btx.AscendKeys(fmt.Sprintf("link:%s:*", id), func(_, v string) bool {
		var l model.Link
		if jerr := jsonc.UnmarshalFromString(v, &l); jerr != nil {
			err = jerr
			return false
		}
		out = append(out, l)
		return true
	})
	return out, err
}

func (t *buntTx) Job(id model.JobID) (*model.Job, error) {
	v, err := t.btx.Get(jobKey(id))
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	j := &model.Job{}
	if err := jsonc.UnmarshalFromString(v, j); err != nil {
		return nil, err
	}
	return j, nil
}

func (t *buntTx) Jobs() (out []*model.Job, err error) {
	err = t.btx.AscendKeys("job:*", func(_, v string) bool {
		j := &model.Job{}
		if jerr := jsonc.UnmarshalFromString(v, j); jerr != nil {
			err = jerr
			return false
		}
		out = append(out, j)
		return true
	})
	return out, err
}

func (t *buntTx) PendingChangesForJob(id model.JobID) (out []model.PendingChange, err error) {
	err = t.btx.AscendKeys(fmt.Sprintf("pending:%s:*", id), func(_, v string) bool {
		var pc model.PendingChange
		if jerr := jsonc.UnmarshalFromString(v, &pc); jerr != nil {
			err = jerr
			return false
		}
		out = append(out, pc)
		return true
	})
	return out, err
}

func (t *buntTx) PendingChangesForMachine(id model.MachineID) (out []model.PendingChange, err error) {
	jobs, err := t.Jobs()
	if err != nil {
		return nil, err
	}
	for _, j := range jobs {
		if j.MachineID != id {
			continue
		}
		pcs, err := t.PendingChangesForJob(j.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, pcs...)
	}
	return out, nil
}

func wrapCorrupted(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(newErr(Corrupted, "%v", err), "store")
}

func machineKey(id model.MachineID) string         { return "machine:" + string(id) }
func boardKey(m model.MachineID, b model.BoardID) string {
	return fmt.Sprintf("board:%s:%d", m, int(b))
}
func jobKey(id model.JobID) string { return "job:" + string(id) }
func pendingKey(j model.JobID, b model.BoardID) string {
	return fmt.Sprintf("pending:%s:%d", j, int(b))
}
func quotaKey(group string) string { return "quota:" + strings.ReplaceAll(group, ":", "_") }
