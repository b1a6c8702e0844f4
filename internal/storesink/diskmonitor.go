package storesink

import (
	"time"

	"github.com/lufia/iostat"
	"github.com/sirupsen/logrus"
)

// DiskMonitor periodically samples host disk I/O counters and logs them
// alongside StoreSink's slow-drain warnings, so a drain that's crossing
// the 250ms threshold can be correlated with disk contention.
type DiskMonitor struct {
	log    *logrus.Entry
	ticker *time.Ticker
	done   chan struct{}
}

// StartDiskMonitor launches a background sampler at the given interval.
// Call Stop to release it.
func StartDiskMonitor(interval time.Duration, log *logrus.Entry) *DiskMonitor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	m := &DiskMonitor{log: log, ticker: time.NewTicker(interval), done: make(chan struct{})}
	go m.run()
	return m
}

func (m *DiskMonitor) run() {
	for {
		select {
		case <-m.ticker.C:
			stats, err := iostat.ReadDriveStats()
			if err != nil {
				m.log.WithError(err).Debug("storesink: disk sample failed")
				continue
			}
			for _, d := range stats {
				m.log.WithFields(logrus.Fields{
					"drive":         d.Name,
					"bytes_read":    d.BytesRead,
					"bytes_written": d.BytesWritten,
				}).Debug("storesink: disk sample")
			}
		case <-m.done:
			return
		}
	}
}

func (m *DiskMonitor) Stop() {
	m.ticker.Stop()
	close(m.done)
}
