// Package frontend defines the client-facing contract for job submission,
// keepalive, and destruction. The HTTP/REST surface and login layer live
// outside this module; cmd/boardctl drives the same calls from the CLI
// side instead of an HTTP server.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package frontend

import (
	"time"

	"github.com/spinctl/boardctl/internal/model"
)

// Frontend is the narrow surface the rest of the module needs from
// whatever client-facing layer drives it: job submission, keepalive, and
// destruction requests. A real deployment backs this with an HTTP/REST
// API; cmd/boardctl drives the same calls from subcommands.
type Frontend interface {
	SubmitJob(owner, group string, machineID model.MachineID, req model.JobRequest, keepalive time.Duration) (model.JobID, error)
	Keepalive(id model.JobID) error
	DestroyJob(id model.JobID, reason string) error
}
