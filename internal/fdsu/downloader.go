// Package fdsu implements the Fast Data Speed-Up transport: a sliding-
// window-with-NACK protocol layered on SDP/UDP that moves bulk data
// between the host and in-board extra-monitor cores via a per-board
// gatherer core.
//
// Each board gets one self-contained receiver: its own socket, its own
// buffer, its own missing-sequence bitset. Receivers share nothing
// mutable, so a board that stalls or dies never corrupts a sibling's
// stream.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package fdsu

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/spinctl/boardctl/internal/metrics"
	"github.com/spinctl/boardctl/internal/model"
	"github.com/spinctl/boardctl/internal/scp"
	"github.com/spinctl/boardctl/internal/sdp"
)

// Protocol timing and sizing constants. The gatherer core is easy to
// overrun from a tight host-side loop, hence the enforced inter-send gap.
const (
	TimeoutPerReceive = 2000 * time.Millisecond
	TimeoutRetryLimit = 15
	DelayPerSend      = 10 * time.Millisecond
	InterSendInterval = 60_000 * time.Nanosecond
	// NextMessagesCount bounds how many MISSING_NEXT frames follow one
	// MISSING_FIRST before a NACK cycle gives up packing more seqs into
	// this round and waits for the next receive/timeout cycle.
	NextMessagesCount = 4
	MaxReqLoad        = sdp.MaxFirstSize + NextMessagesCount*sdp.MaxNextSize
)

// Gatherer is the per-board transport endpoint: a UDP socket already
// connected/addressed to the board's gatherer core. Callers open and close
// it; Downloader/Uploader only read and write frames.
type Gatherer struct {
	Conn net.PacketConn
	Addr net.Addr
}

func (g *Gatherer) send(body []byte) error {
	_, err := g.Conn.WriteTo(body, g.Addr)
	return err
}

// Downloader retrieves contiguous memory regions from extra-monitor cores
// through their board's gatherer.
type Downloader struct {
	mx  *metrics.Transport
	log *logrus.Entry

	// receiveTimeout is TimeoutPerReceive except in tests, which shrink
	// it to keep the retry-exhaustion paths fast.
	receiveTimeout time.Duration
}

func NewDownloader(mx *metrics.Transport) *Downloader {
	return NewDownloaderWithLog(mx, nil)
}

// NewDownloaderWithLog is NewDownloader with an explicit logger for the
// NACK anomaly warning, following the same nil-defaults-to-standard-logger
// convention as routerctx's scoped contexts.
func NewDownloaderWithLog(mx *metrics.Transport, log *logrus.Entry) *Downloader {
	if mx == nil {
		mx = metrics.NewTransport()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Downloader{mx: mx, log: log, receiveTimeout: TimeoutPerReceive}
}

// streamState is the per-stream receiver state: which sequence numbers are
// still owed, the assembly buffer, and the NACK bookkeeping.
type streamState struct {
	transactionID uint32
	maxSeq        int
	expected      *bitset
	buffer        []byte
	received      bool
	timeoutCount  int
	lastRequested []uint32
	missCount     int
}

// Fetch retrieves one contiguous region from a monitor through its board's
// gatherer, returning the assembled bytes and the miss count for this
// stream. A zero-byte region completes immediately: nothing is sent and
// nothing is awaited.
func (d *Downloader) Fetch(ctx context.Context, g *Gatherer, transactionID uint32, startAddr, sizeBytes uint32) ([]byte, int, error) {
	if sizeBytes == 0 {
		return []byte{}, 0, nil
	}
	chunk := sdp.DataWordsPerPacket * 4
	maxSeq := int((sizeBytes + uint32(chunk) - 1) / uint32(chunk))
	st := &streamState{
		transactionID: transactionID,
		maxSeq:        maxSeq,
		expected:      newBitset(maxSeq, true),
		buffer:        make([]byte, sizeBytes),
	}

	pace := newPacer(InterSendInterval)
	if err := d.sendStart(g, pace, st, startAddr, sizeBytes); err != nil {
		return nil, 0, err
	}

	buf := make([]byte, 512)
	for {
		if err := ctx.Err(); err != nil {
			return nil, st.missCount, fail(InterruptedIO, "fetch cancelled: %v", err)
		}
		_ = g.Conn.SetReadDeadline(time.Now().Add(d.receiveTimeout))
		n, _, err := g.Conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				st.timeoutCount++
				if st.timeoutCount > TimeoutRetryLimit {
					return nil, st.missCount, fail(Timeout, "exceeded %d receive timeouts", TimeoutRetryLimit)
				}
				done, ferr := d.nack(g, pace, st)
				if ferr != nil {
					return nil, st.missCount, ferr
				}
				if done {
					d.mx.AddBytes(len(st.buffer))
					return st.buffer, st.missCount, nil
				}
				continue
			}
			return nil, st.missCount, fail(PeerClosed, "read: %v", err)
		}

		frame, err := sdp.DecodeFrame(buf[:n])
		if err != nil {
			continue // malformed datagram, ignore and keep waiting
		}
		data, err := sdp.DecodeDataBody(frame.Body)
		if err != nil {
			continue
		}
		if data.TransactionID != st.transactionID {
			continue // stale packet from a previous stream
		}

		last := data.SeqNum&sdp.LastFlag != 0
		seq := int(data.SeqNum &^ sdp.LastFlag)
		if seq > st.maxSeq {
			return nil, st.missCount, fail(InsaneSequence, "seq %d > max_seq %d", seq, st.maxSeq)
		}
		if len(data.Payload) > 0 {
			off := seq * chunk
			if off+len(data.Payload) > len(st.buffer) {
				return nil, st.missCount, fail(DanglingReference, "payload at seq %d overruns buffer", seq)
			}
			copy(st.buffer[off:], data.Payload)
		}
		st.expected.clear(seq)
		st.timeoutCount = 0
		st.received = true

		if last {
			done, ferr := d.nack(g, pace, st)
			if ferr != nil {
				return nil, st.missCount, ferr
			}
			if done {
				d.mx.AddBytes(len(st.buffer))
				return st.buffer, st.missCount, nil
			}
		}
	}
}

func (d *Downloader) sendStart(g *Gatherer, pace *pacer, st *streamState, startAddr, sizeBytes uint32) error {
	pace.wait()
	frame := sdp.Frame{
		Header:  sdp.Header{Flags: sdp.ReplyNotExpected},
		Command: sdp.StartSendingData,
		Body: sdp.StartSendingDataBody{
			TransactionID: st.transactionID,
			StartAddress:  startAddr,
			SizeBytes:     sizeBytes,
		}.Encode(),
	}
	return g.send(frame.Encode())
}

// nack runs one retransmit_missing cycle. Returns done=true once the
// expected set is empty (stream complete, CLEAR already sent).
func (d *Downloader) nack(g *Gatherer, pace *pacer, st *streamState) (bool, error) {
	missing := st.expected.setBits()
	if len(missing) == 0 {
		pace.wait()
		frame := sdp.Frame{Command: sdp.ClearTransmissions, Body: sdp.ClearBody{TransactionID: st.transactionID}.Encode()}
		return true, g.send(frame.Encode())
	}

	if len(missing) == len(st.lastRequested) && st.received {
		// Two successive NACK cycles with an identical missing set and no
		// bit cleared between them: the monitor has stopped making
		// progress. This very comparison *is* the second cycle, so it
		// fires immediately rather than waiting for a third call.
		return false, fail(Timeout, "no progress across 2 NACK cycles (%d missing)", len(missing))
	}
	if st.lastRequested != nil && len(missing) > len(st.lastRequested) {
		// Monitor appears to be going backwards: can only legitimately
		// happen if fresh data was lost while retransmitting. Tolerated,
		// not fatal, but surfaced. The very first NACK cycle of a stream
		// has no prior request to compare against, so it's excluded here.
		d.log.WithFields(logrus.Fields{
			"transaction_id": st.transactionID,
			"missing":        len(missing),
			"last_requested": len(st.lastRequested),
		}).Warn("fdsu: NACK missing set grew since last cycle")
	}
	st.lastRequested = missing
	st.missCount += len(missing)

	if len(missing) > MaxReqLoad {
		missing = missing[:MaxReqLoad]
	}

	d.mx.AddMiss(len(missing))

	first := missing
	if len(first) > sdp.MaxFirstSize {
		first = missing[:sdp.MaxFirstSize]
	}
	pace.wait()
	time.Sleep(DelayPerSend)
	frame := sdp.Frame{Command: sdp.StartMissingSeqs, Body: sdp.MissingBody{
		TransactionID: st.transactionID,
		NumPackets:    uint32(len(missing)),
		Seqs:          first,
		IsFirst:       true,
	}.Encode()}
	if err := g.send(frame.Encode()); err != nil {
		return false, fail(PeerClosed, "send MISSING_FIRST: %v", err)
	}

	rest := missing[len(first):]
	for len(rest) > 0 {
		n := len(rest)
		if n > sdp.MaxNextSize {
			n = sdp.MaxNextSize
		}
		pace.wait()
		time.Sleep(DelayPerSend)
		nf := sdp.Frame{Command: sdp.NextMissingSeqs, Body: sdp.MissingBody{
			TransactionID: st.transactionID,
			Seqs:          rest[:n],
			IsFirst:       false,
		}.Encode()}
		if err := g.send(nf.Encode()); err != nil {
			return false, fail(PeerClosed, "send MISSING_NEXT: %v", err)
		}
		rest = rest[n:]
	}
	return false, nil
}

// DownloadOpts bundles DownloadAll's optional collaborators.
type DownloadOpts struct {
	// ParallelSize bounds how many board tasks run at once (min 1).
	ParallelSize int64
	Metrics      *metrics.Transport
	// Verifier, when non-nil, re-checks every fast-path region over SCP
	// before onData runs.
	Verifier *Verifier
	// Slow, when non-nil, is the fallback for a region whose stream
	// stalls (Timeout): the same byte range is re-read serially over SCP
	// and stored as if the fast path had delivered it.
	Slow scp.Transport
	Log  *logrus.Entry
	// OnRegion, when non-nil, is called after each region lands (fast
	// path or fallback), for progress reporting.
	OnRegion func(model.Region)

	receiveTimeout time.Duration // test hook
}

// DownloadAll fetches every region, one task per board, bounded by
// ParallelSize. dial opens the board's gatherer socket; the caller is
// responsible for wrapping the whole call in a NoDropContext and
// SystemRouterTableContext.
//
// A failing board never takes its siblings down: a stalled stream falls
// back to opts.Slow when configured, and any other per-board failure
// (an insane sequence number, a closed peer) aborts only that board's
// task. The first unrecovered failure is returned after all tasks finish,
// alongside the miss count aggregated across all streams.
func DownloadAll(ctx context.Context, regions []model.Region, transactionOf func(model.Core) uint32, dial func(model.Core) (*Gatherer, error), onData func(model.Region, []byte) error, opts DownloadOpts) (int, error) {
	if opts.ParallelSize < 1 {
		opts.ParallelSize = 1
	}
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	d := NewDownloaderWithLog(opts.Metrics, log)
	if opts.receiveTimeout > 0 {
		d.receiveTimeout = opts.receiveTimeout
	}
	sem := semaphore.NewWeighted(opts.ParallelSize)

	misses := make([]int, len(regions))
	errs := make([]error, len(regions))

	for i, region := range regions {
		i, region := i, region
		if err := sem.Acquire(ctx, 1); err != nil {
			return 0, err
		}
		go func() {
			defer sem.Release(1)
			errs[i] = d.fetchOne(ctx, region, transactionOf, dial, onData, &opts, &misses[i])
		}()
	}
	// Draining the full weight waits for every in-flight task.
	if err := sem.Acquire(ctx, opts.ParallelSize); err != nil {
		return 0, err
	}

	total, failed := 0, 0
	var first error
	for i := range regions {
		total += misses[i]
		if errs[i] != nil {
			failed++
			if first == nil {
				first = errs[i]
			}
		}
	}
	if first != nil {
		return total, fail(reasonOrUnknown(first), "%d of %d regions failed, first: %v", failed, len(regions), first)
	}
	return total, nil
}

func reasonOrUnknown(err error) Reason {
	if r, ok := ReasonOf(err); ok {
		return r
	}
	return PeerClosed
}

// fetchOne runs one board task end to end: fast path, optional verify,
// stalled-stream fallback, store.
func (d *Downloader) fetchOne(ctx context.Context, region model.Region, transactionOf func(model.Core) uint32, dial func(model.Core) (*Gatherer, error), onData func(model.Region, []byte) error, opts *DownloadOpts, miss *int) error {
	g, err := dial(region.Core)
	if err != nil {
		return err
	}
	defer g.Conn.Close()

	buf, m, err := d.Fetch(ctx, g, transactionOf(region.Core), region.StartAddr, region.SizeBytes)
	*miss = m
	verified := false
	if err != nil {
		r, ok := ReasonOf(err)
		if !ok || r != Timeout || opts.Slow == nil {
			return err
		}
		d.log.WithFields(logrus.Fields{
			"core": region.Core,
			"size": region.SizeBytes,
		}).Warn("fdsu: stream stalled, falling back to serial SCP read")
		d.mx.IncTimeout()
		buf, err = opts.Slow.ReadMemory(region.Core, region.StartAddr, region.SizeBytes)
		if err != nil {
			return fail(Timeout, "slow-path re-read after stall: %v", err)
		}
		verified = true // the slow path is its own reference copy
	}

	if opts.Verifier != nil && !verified {
		if err := opts.Verifier.Verify(region, buf); err != nil {
			return err
		}
	}
	if onData != nil {
		if err := onData(region, buf); err != nil {
			return err
		}
	}
	if opts.OnRegion != nil {
		opts.OnRegion(region)
	}
	return nil
}
