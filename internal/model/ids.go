// Package model holds the data model shared by the allocator and the FDSU
// transport: machines, boards, links, jobs, pending changes, allocation
// history, and the transport-side vertex/placement/region descriptors.
//
// Boards, jobs, and links reference each other; doing that by pointer
// would force a cyclic-reference graph. We instead use an arena +
// integer-handle model: every Board lives in a flat slice owned by
// boardgraph.Graph, addressed by BoardID; Jobs are addressed by their
// generated JobID. Links and PendingChanges carry BoardIDs, not pointers.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package model

import "fmt"

// BoardID is an arena index into a boardgraph.Graph's board slice.
type BoardID int

// InvalidBoardID marks an unset board reference (e.g. Job.RootBoard before
// allocation).
const InvalidBoardID BoardID = -1

func (b BoardID) String() string { return fmt.Sprintf("board#%d", int(b)) }

// JobID is the externally visible, generated identifier of a Job.
type JobID string

func (j JobID) String() string { return string(j) }

// MachineID identifies a Machine by name.
type MachineID string
