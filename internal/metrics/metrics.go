// Package metrics exposes Prometheus collectors for the allocator, job
// lifecycle, and FDSU transport.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Allocator collects allocation outcome counters and latency.
type Allocator struct {
	duration prometheus.Histogram
	success  prometheus.Counter
	failure  *prometheus.CounterVec
}

// NewAllocator registers (on the default registry) and returns a fresh
// Allocator collector. Tests construct their own via NewAllocatorFor with
// a private registry.
func NewAllocator() *Allocator { return NewAllocatorFor(prometheus.DefaultRegisterer) }

func NewAllocatorFor(reg prometheus.Registerer) *Allocator {
	a := &Allocator{
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "board_alloc_duration_seconds",
			Help:    "Time spent inside Allocator.Allocate.",
			Buckets: prometheus.DefBuckets,
		}),
		success: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "board_alloc_success_total",
			Help: "Successful allocations.",
		}),
		failure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "board_alloc_failure_total",
			Help: "Failed allocations by reason.",
		}, []string{"reason"}),
	}
	a.duration = register(reg, a.duration).(prometheus.Histogram)
	a.success = register(reg, a.success).(prometheus.Counter)
	a.failure = register(reg, a.failure).(*prometheus.CounterVec)
	return a
}

// register adds c to reg, adopting the existing collector when the same
// metric was already registered (several components construct collectors
// for the shared default registry).
func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

type allocTimer struct {
	start time.Time
	hist  prometheus.Histogram
}

func (a *Allocator) StartAllocation() *allocTimer { return &allocTimer{start: time.Now(), hist: a.duration} }
func (t *allocTimer) ObserveDuration()              { t.hist.Observe(time.Since(t.start).Seconds()) }

func (a *Allocator) IncSuccess()             { a.success.Inc() }
func (a *Allocator) IncFailure(reason string) { a.failure.WithLabelValues(reason).Inc() }
