package routerctx

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/spinctl/boardctl/internal/model"
)

type fakeControl struct {
	reinjection       map[model.Core]bool
	cleared           map[model.Core]int
	systemTable       map[model.Core]bool
	failReinjectionAt model.Core
	failSystemAt      model.Core
}

func newFakeControl() *fakeControl {
	return &fakeControl{
		reinjection: map[model.Core]bool{},
		cleared:     map[model.Core]int{},
		systemTable: map[model.Core]bool{},
	}
}

// ReinjectionStatus treats never-touched cores as reinjecting, the state a
// freshly booted monitor runs in.
func (f *fakeControl) ReinjectionStatus(core model.Core) (bool, error) {
	if enabled, ok := f.reinjection[core]; ok {
		return enabled, nil
	}
	f.reinjection[core] = true
	return true, nil
}

func (f *fakeControl) SetReinjection(core model.Core, enabled bool) error {
	if core == f.failReinjectionAt && !enabled {
		return errors.New("simulated reinjection failure")
	}
	f.reinjection[core] = enabled
	return nil
}

func (f *fakeControl) ClearReinjectionQueues(core model.Core) error {
	f.cleared[core]++
	return nil
}

func (f *fakeControl) SetReinjectionTimeout(model.Core, bool) error   { return nil }
func (f *fakeControl) SetEmergencyTimeout(model.Core, int, int) error { return nil }

func (f *fakeControl) InstallSystemRouterTable(core model.Core) error {
	if core == f.failSystemAt {
		return errors.New("simulated install failure")
	}
	f.systemTable[core] = true
	return nil
}

func (f *fakeControl) RestoreApplicationRouterTable(core model.Core) error {
	delete(f.systemTable, core)
	return nil
}

func TestNoDropContextDisablesAndRestores(t *testing.T) {
	mc := newFakeControl()
	cores := []model.Core{{X: 0, Y: 0, P: 1}, {X: 1, Y: 1, P: 1}}

	ctx, err := OpenNoDropContext(mc, cores, nil)
	if err != nil {
		t.Fatalf("OpenNoDropContext: %v", err)
	}
	for _, c := range cores {
		if mc.reinjection[c] {
			t.Errorf("reinjection still enabled on %v", c)
		}
		if mc.cleared[c] != 1 {
			t.Errorf("reinjection queues cleared %d times on %v, want once", mc.cleared[c], c)
		}
	}
	ctx.Close()
	for _, c := range cores {
		if !mc.reinjection[c] {
			t.Errorf("reinjection not restored on %v", c)
		}
	}
}

// TestNoDropContextRestoresSavedState: a monitor that was already not
// reinjecting before the context opened must be left that way on Close,
// not force-enabled.
func TestNoDropContextRestoresSavedState(t *testing.T) {
	mc := newFakeControl()
	on := model.Core{X: 0, Y: 0, P: 1}
	off := model.Core{X: 1, Y: 1, P: 1}
	mc.reinjection[off] = false

	ctx, err := OpenNoDropContext(mc, []model.Core{on, off}, nil)
	if err != nil {
		t.Fatalf("OpenNoDropContext: %v", err)
	}
	ctx.Close()

	if !mc.reinjection[on] {
		t.Errorf("core %v was reinjecting before open, not restored", on)
	}
	if mc.reinjection[off] {
		t.Errorf("core %v was not reinjecting before open, must stay disabled", off)
	}
}

func TestNoDropContextRestoresOnPartialFailure(t *testing.T) {
	mc := newFakeControl()
	cores := []model.Core{{X: 0, Y: 0, P: 1}, {X: 1, Y: 1, P: 1}, {X: 2, Y: 2, P: 1}}
	mc.failReinjectionAt = cores[2]

	_, err := OpenNoDropContext(mc, cores, nil)
	if err == nil {
		t.Fatal("expected error from third core")
	}
	for _, c := range cores[:2] {
		if !mc.reinjection[c] {
			t.Errorf("expected core %v to have reinjection restored after failure", c)
		}
	}
}

func TestSystemRouterTableContextInstallsAndRestores(t *testing.T) {
	mc := newFakeControl()
	cores := []model.Core{{X: 0, Y: 0, P: 1}}

	ctx, err := OpenSystemRouterTableContext(mc, cores, nil)
	if err != nil {
		t.Fatalf("OpenSystemRouterTableContext: %v", err)
	}
	if !mc.systemTable[cores[0]] {
		t.Fatal("expected system table installed")
	}
	ctx.Close()
	if mc.systemTable[cores[0]] {
		t.Fatal("expected system table restored to application mode")
	}
}

func TestSystemRouterTableContextFailsCleanly(t *testing.T) {
	mc := newFakeControl()
	cores := []model.Core{{X: 0, Y: 0, P: 1}, {X: 1, Y: 1, P: 1}}
	mc.failSystemAt = cores[1]

	_, err := OpenSystemRouterTableContext(mc, cores, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if mc.systemTable[cores[0]] {
		t.Error("expected first core's system table to be restored after failure")
	}
}
