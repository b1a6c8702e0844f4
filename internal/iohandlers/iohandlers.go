// Package iohandlers decodes the JSON descriptor files that seed a
// machine's boards/links, its gatherer topology, and its application
// placements, using jsoniter for all descriptor JSON.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package iohandlers

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/spinctl/boardctl/internal/model"
)

var jsonc = jsoniter.ConfigCompatibleWithStandardLibrary

// MachineDescriptor is the on-disk shape of a machine's board/link seed
// data (board model coordinate tables).
type MachineDescriptor struct {
	Machine model.Machine  `json:"machine"`
	Boards  []model.Board  `json:"boards"`
	Links   []model.Link   `json:"links"`
}

// GatherDescriptor is the on-disk shape of one board's gatherer topology:
// its Ethernet-connected core and the monitors/placements it serves.
type GatherDescriptor struct {
	Gather model.Gather `json:"gather"`
}

// PlacementDescriptor is the on-disk shape of an application graph's
// vertex-to-core placement, as produced by the place/route toolchain.
type PlacementDescriptor struct {
	Placements []model.Placement `json:"placements"`
}

func decodeFile(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "iohandlers: read %s", path)
	}
	if err := jsonc.Unmarshal(b, v); err != nil {
		return errors.Wrapf(err, "iohandlers: decode %s", path)
	}
	return nil
}

// LoadMachine reads a machine descriptor file.
func LoadMachine(path string) (*MachineDescriptor, error) {
	var d MachineDescriptor
	if err := decodeFile(path, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadGather reads a gatherer descriptor file.
func LoadGather(path string) (*GatherDescriptor, error) {
	var d GatherDescriptor
	if err := decodeFile(path, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// LoadPlacement reads a placement descriptor file.
func LoadPlacement(path string) (*PlacementDescriptor, error) {
	var d PlacementDescriptor
	if err := decodeFile(path, &d); err != nil {
		return nil, err
	}
	return &d, nil
}
