// Package storesink implements StoreSink: a single-writer,
// multiple-producer sink that drains (region, buffer) items into
// PersistentStore.AppendRecordingContents, with bounded shutdown drain and
// optional payload compression. Many producers fan into one channel; a
// single worker owns the database handle.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package storesink

import (
	"time"

	"github.com/pierrec/lz4/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/spinctl/boardctl/internal/model"
	"github.com/spinctl/boardctl/internal/store"
)

const (
	drainTimeout    = 60 * time.Second
	slowDrainWarn   = 250 * time.Millisecond
	defaultQueueCap = 256
)

type item struct {
	region model.Region
	buf    []byte
}

// Sink owns the single writer goroutine; Submit is safe to call
// concurrently from many producers (one per board's receiver loop).
type Sink struct {
	store    store.PersistentStore
	queue    chan item
	done     chan struct{}
	log      *logrus.Entry
	compress bool
}

// Option configures a Sink at construction.
type Option func(*Sink)

// WithCompression enables lz4-compressing each buffer before it's
// appended, trading CPU for the database's on-disk footprint.
func WithCompression(enabled bool) Option {
	return func(s *Sink) { s.compress = enabled }
}

// WithQueueCapacity overrides the default bounded-queue size.
func WithQueueCapacity(n int) Option {
	return func(s *Sink) {
		if n > 0 {
			s.queue = make(chan item, n)
		}
	}
}

// New starts the sink's writer goroutine.
func New(st store.PersistentStore, log *logrus.Entry, opts ...Option) *Sink {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Sink{
		store: st,
		queue: make(chan item, defaultQueueCap),
		done:  make(chan struct{}),
		log:   log,
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Submit enqueues one region/buffer for the background writer. The
// per-board ordering guarantee (stores preserve the order regions were
// produced on a board) holds because each board's receiver loop is the only
// producer calling Submit for that board, and the queue is FIFO.
func (s *Sink) Submit(region model.Region, buf []byte) {
	s.queue <- item{region: region, buf: buf}
}

func (s *Sink) run() {
	defer close(s.done)
	for it := range s.queue {
		payload := it.buf
		if s.compress {
			compressed := make([]byte, lz4.CompressBlockBound(len(it.buf)))
			n, err := lz4.CompressBlock(it.buf, compressed, nil)
			if err == nil && n > 0 && n < len(it.buf) {
				payload = compressed[:n]
			} else {
				payload = it.buf
			}
		}
		if err := s.store.AppendRecordingContents(it.region, payload); err != nil {
			s.log.WithError(err).WithField("region", it.region).Error("storesink: append failed")
		}
	}
}

// Close stops accepting new items and waits up to 60s for the queue to
// drain, logging if shutdown took longer than 250ms.
func (s *Sink) Close() error {
	start := time.Now()
	close(s.queue)

	select {
	case <-s.done:
	case <-time.After(drainTimeout):
		return errors.New("storesink: drain exceeded 60s timeout")
	}

	if elapsed := time.Since(start); elapsed > slowDrainWarn {
		s.log.WithField("elapsed", elapsed).Warn("storesink: shutdown drain took longer than 250ms")
	}
	return nil
}
