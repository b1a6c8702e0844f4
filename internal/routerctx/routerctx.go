// Package routerctx implements scoped machine-state acquisition.
// NoDropContext restores each monitor's saved reinjection enable state and
// SystemRouterTableContext restores the application router table, on every
// exit path, logging restore failures and carrying on with the other cores.
// The reinjection and emergency timeouts set by NoDropContext are not reset
// on Close.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package routerctx

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/spinctl/boardctl/internal/model"
)

// MachineControl is the narrow slice of BMP/SCP machine control FDSU
// contexts need: per-monitor reinjection state, queue clearing, and router
// table swapping. A real deployment backs this with SCP calls to each
// monitor; tests back it with an in-memory fake.
type MachineControl interface {
	ReinjectionStatus(core model.Core) (bool, error)
	SetReinjection(core model.Core, enabled bool) error
	ClearReinjectionQueues(core model.Core) error
	SetReinjectionTimeout(core model.Core, infinite bool) error
	SetEmergencyTimeout(core model.Core, firstMs, laterMs int) error
	InstallSystemRouterTable(core model.Core) error
	RestoreApplicationRouterTable(core model.Core) error
}

// savedReinjection remembers one monitor's reinjection state as it was
// before the context touched it.
type savedReinjection struct {
	core    model.Core
	enabled bool
}

// NoDropContext pauses packet reinjection across a set of monitors for the
// duration of a download, putting each monitor back into whatever state it
// was actually in on Close, regardless of how Close is reached.
type NoDropContext struct {
	mc    MachineControl
	cores []model.Core
	log   *logrus.Entry
	saved []savedReinjection
}

// OpenNoDropContext runs the full open sequence on every core: save the
// current reinjection status, disable reinjection, clear the reinjection
// queues, set the reinjection timeout to infinity, and set the emergency
// timeout to (1, 1). On partial failure, whatever was already saved is
// restored before returning the error.
func OpenNoDropContext(mc MachineControl, cores []model.Core, log *logrus.Entry) (*NoDropContext, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx := &NoDropContext{mc: mc, cores: cores, log: log}
	for _, c := range cores {
		was, err := mc.ReinjectionStatus(c)
		if err != nil {
			ctx.Close()
			return nil, errors.Wrapf(err, "routerctx: read reinjection status on %v", c)
		}
		if err := mc.SetReinjection(c, false); err != nil {
			ctx.Close()
			return nil, errors.Wrapf(err, "routerctx: disable reinjection on %v", c)
		}
		// Saved as soon as the disable lands: the remaining steps below
		// must still be undone by Close if one of them fails.
		ctx.saved = append(ctx.saved, savedReinjection{core: c, enabled: was})
		if err := mc.ClearReinjectionQueues(c); err != nil {
			ctx.Close()
			return nil, errors.Wrapf(err, "routerctx: clear reinjection queues on %v", c)
		}
		if err := mc.SetReinjectionTimeout(c, true); err != nil {
			ctx.Close()
			return nil, errors.Wrapf(err, "routerctx: set reinjection timeout on %v", c)
		}
		if err := mc.SetEmergencyTimeout(c, 1, 1); err != nil {
			ctx.Close()
			return nil, errors.Wrapf(err, "routerctx: set emergency timeout on %v", c)
		}
	}
	return ctx, nil
}

// Close puts every touched core back into its saved pre-open reinjection
// state. Restore failures are logged, not panicked on: a best-effort
// restore still releases as many cores as it can rather than abandoning
// the rest.
func (c *NoDropContext) Close() {
	for _, s := range c.saved {
		if err := c.mc.SetReinjection(s.core, s.enabled); err != nil {
			c.log.WithError(err).WithField("core", s.core).Warn("routerctx: failed to restore reinjection")
		}
	}
}

// SystemRouterTableContext installs system-mode router entries steering
// data-speed-up traffic to the gatherer, restoring the application tables
// on Close.
type SystemRouterTableContext struct {
	mc      MachineControl
	log     *logrus.Entry
	applied []model.Core
}

func OpenSystemRouterTableContext(mc MachineControl, cores []model.Core, log *logrus.Entry) (*SystemRouterTableContext, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx := &SystemRouterTableContext{mc: mc, log: log}
	for _, c := range cores {
		if err := mc.InstallSystemRouterTable(c); err != nil {
			ctx.Close()
			return nil, errors.Wrapf(err, "routerctx: install system router table on %v", c)
		}
		ctx.applied = append(ctx.applied, c)
	}
	return ctx, nil
}

func (c *SystemRouterTableContext) Close() {
	for _, core := range c.applied {
		if err := c.mc.RestoreApplicationRouterTable(core); err != nil {
			c.log.WithError(err).WithField("core", core).Warn("routerctx: failed to restore application router table")
		}
	}
}
