// Package config defines TransportConfig: an explicit, passed-in
// configuration value rather than process-global mutable state. A plain
// JSON-tagged struct, read once at startup.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package config

import (
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var jsonc = jsoniter.ConfigCompatibleWithStandardLibrary

// TransportConfig carries every configurable knob of the module,
// passed explicitly to the components that need it rather than read from
// globals.
type TransportConfig struct {
	OnDelay         time.Duration `json:"on_delay"`
	OffDelay        time.Duration `json:"off_delay"`
	DefaultQuota    *uint64       `json:"default_quota"` // nil = unlimited
	ParallelSize    int64         `json:"parallel_size"`
	CompareDownload bool          `json:"compare_download"`
	ProgressBar     bool          `json:"progress_bar"`
}

// Default returns the stock settings: BMP settle delays of 20s/30s on/off,
// unlimited quota, four parallel board tasks.
func Default() TransportConfig {
	return TransportConfig{
		OnDelay:      20 * time.Second,
		OffDelay:     30 * time.Second,
		DefaultQuota: nil,
		ParallelSize: 4,
	}
}

// jsonShape mirrors TransportConfig but with plain seconds for the two
// durations, since time.Duration's JSON form is an opaque integer of
// nanoseconds and the external config file is meant to read naturally
// ("on_delay": 20).
type jsonShape struct {
	OnDelaySeconds  float64 `json:"on_delay"`
	OffDelaySeconds float64 `json:"off_delay"`
	DefaultQuota    *uint64 `json:"default_quota"`
	ParallelSize    int64   `json:"parallel_size"`
	CompareDownload bool    `json:"compare_download"`
	ProgressBar     bool    `json:"progress_bar"`
}

// Load reads a TransportConfig from a JSON file, defaulting any field the
// file doesn't set.
func Load(path string) (TransportConfig, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "config: read %s", path)
	}
	var shape jsonShape
	if err := jsonc.Unmarshal(b, &shape); err != nil {
		return cfg, errors.Wrapf(err, "config: decode %s", path)
	}
	if shape.OnDelaySeconds > 0 {
		cfg.OnDelay = time.Duration(shape.OnDelaySeconds * float64(time.Second))
	}
	if shape.OffDelaySeconds > 0 {
		cfg.OffDelay = time.Duration(shape.OffDelaySeconds * float64(time.Second))
	}
	if shape.DefaultQuota != nil {
		cfg.DefaultQuota = shape.DefaultQuota
	}
	if shape.ParallelSize > 0 {
		cfg.ParallelSize = shape.ParallelSize
	}
	cfg.CompareDownload = shape.CompareDownload
	cfg.ProgressBar = shape.ProgressBar
	return cfg, nil
}
