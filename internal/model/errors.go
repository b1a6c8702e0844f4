package model

import "github.com/pkg/errors"

// errShortRecordingRegion reports a truncated on-chip descriptor read.
func errShortRecordingRegion(n int) error {
	return errors.Errorf("recording region descriptor truncated: got %d bytes, need %d", n, recordingRegionSizeBytes)
}
