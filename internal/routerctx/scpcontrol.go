/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package routerctx

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/spinctl/boardctl/internal/model"
	"github.com/spinctl/boardctl/internal/scp"
)

// Extra-monitor mailbox offsets. Each control word is written to the
// monitor's SDRAM mailbox; the firmware applies it on its next poll.
const (
	mailboxBase            uint32 = 0xF500_0000
	offReinjectionEnable   uint32 = 0x00
	offReinjectionTimeout  uint32 = 0x04
	offEmergencyTimeout    uint32 = 0x08
	offRouterTableSelector uint32 = 0x0C
	offReinjectionClear    uint32 = 0x10

	timeoutInfinite uint32 = 0xFFFF_FFFF

	tableApplication uint32 = 0
	tableSystem      uint32 = 1
)

// SCPControl drives monitor reinjection and router-table state over a
// plain SCP transport, one control-word write per call.
type SCPControl struct {
	t scp.Transport
}

func NewSCPControl(t scp.Transport) *SCPControl { return &SCPControl{t: t} }

func (c *SCPControl) writeWord(core model.Core, off, val uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], val)
	if err := c.t.WriteMemory(core, mailboxBase+off, b[:]); err != nil {
		return errors.Wrapf(err, "routerctx: write mailbox word %#x on %v", off, core)
	}
	return nil
}

// ReinjectionStatus reads the monitor's current reinjection enable word;
// the mailbox reports nonzero while the firmware is reinjecting.
func (c *SCPControl) ReinjectionStatus(core model.Core) (bool, error) {
	raw, err := c.t.ReadMemory(core, mailboxBase+offReinjectionEnable, 4)
	if err != nil {
		return false, errors.Wrapf(err, "routerctx: read mailbox word %#x on %v", offReinjectionEnable, core)
	}
	if len(raw) < 4 {
		return false, errors.Errorf("routerctx: short mailbox read on %v: %d bytes", core, len(raw))
	}
	return binary.LittleEndian.Uint32(raw) != 0, nil
}

func (c *SCPControl) SetReinjection(core model.Core, enabled bool) error {
	v := uint32(0)
	if enabled {
		v = 1
	}
	return c.writeWord(core, offReinjectionEnable, v)
}

// ClearReinjectionQueues tells the monitor to drop everything currently
// queued for reinjection; the firmware treats any write to this word as
// the drop command.
func (c *SCPControl) ClearReinjectionQueues(core model.Core) error {
	return c.writeWord(core, offReinjectionClear, 1)
}

func (c *SCPControl) SetReinjectionTimeout(core model.Core, infinite bool) error {
	v := uint32(0)
	if infinite {
		v = timeoutInfinite
	}
	return c.writeWord(core, offReinjectionTimeout, v)
}

func (c *SCPControl) SetEmergencyTimeout(core model.Core, firstMs, laterMs int) error {
	return c.writeWord(core, offEmergencyTimeout, uint32(firstMs)<<16|uint32(laterMs)&0xFFFF)
}

func (c *SCPControl) InstallSystemRouterTable(core model.Core) error {
	return c.writeWord(core, offRouterTableSelector, tableSystem)
}

func (c *SCPControl) RestoreApplicationRouterTable(core model.Core) error {
	return c.writeWord(core, offRouterTableSelector, tableApplication)
}

var _ MachineControl = (*SCPControl)(nil)
