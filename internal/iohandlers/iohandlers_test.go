package iohandlers

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadMachine(t *testing.T) {
	path := writeFile(t, "machine.json", `{
		"machine": {"ID":"m","Width":8,"Height":8,"Depth":3,"BoardModel":5,"InService":true},
		"boards": [{"ID":0,"MachineID":"m","X":0,"Y":0,"Z":0}],
		"links": [{"Board1":0,"Dir1":0,"Board2":1,"Dir2":3,"Live":true}]
	}`)

	d, err := LoadMachine(path)
	if err != nil {
		t.Fatalf("LoadMachine: %v", err)
	}
	if d.Machine.ID != "m" || d.Machine.Width != 8 || d.Machine.Depth != 3 {
		t.Errorf("Machine = %+v", d.Machine)
	}
	if len(d.Boards) != 1 || d.Boards[0].X != 0 {
		t.Errorf("Boards = %+v", d.Boards)
	}
	if len(d.Links) != 1 || !d.Links[0].Live {
		t.Errorf("Links = %+v", d.Links)
	}
}

func TestLoadGather(t *testing.T) {
	path := writeFile(t, "gather.json", `{
		"gather": {
			"Core": {"X":0,"Y":0,"P":1},
			"IPTag": 7,
			"Monitors": [{"Core":{"X":1,"Y":1,"P":1},"Placements":null,"TransactionID":0}]
		}
	}`)

	d, err := LoadGather(path)
	if err != nil {
		t.Fatalf("LoadGather: %v", err)
	}
	if d.Gather.IPTag != 7 {
		t.Errorf("IPTag = %d, want 7", d.Gather.IPTag)
	}
	if len(d.Gather.Monitors) != 1 || d.Gather.Monitors[0].Core.X != 1 {
		t.Errorf("Monitors = %+v", d.Gather.Monitors)
	}
}

func TestLoadPlacement(t *testing.T) {
	path := writeFile(t, "placement.json", `{
		"placements": [
			{"Core":{"X":2,"Y":3,"P":5},"Vertex":{"Label":"v1","Base":1024,"RecordedRegionIDs":[0,1]}}
		]
	}`)

	d, err := LoadPlacement(path)
	if err != nil {
		t.Fatalf("LoadPlacement: %v", err)
	}
	if len(d.Placements) != 1 {
		t.Fatalf("len(Placements) = %d, want 1", len(d.Placements))
	}
	p := d.Placements[0]
	if p.Core.X != 2 || p.Vertex.Label != "v1" || p.Vertex.Base != 1024 {
		t.Errorf("Placement = %+v", p)
	}
	if len(p.Vertex.RecordedRegionIDs) != 2 {
		t.Errorf("RecordedRegionIDs = %v", p.Vertex.RecordedRegionIDs)
	}
}

func TestLoadMachineMissingFile(t *testing.T) {
	_, err := LoadMachine(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMachineInvalidJSON(t *testing.T) {
	path := writeFile(t, "bad.json", `{not-json`)
	_, err := LoadMachine(path)
	if err == nil {
		t.Fatal("expected decode error")
	}
}
