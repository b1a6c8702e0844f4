// Package scp provides the ScpTransport contract and a minimal UDP-backed
// default implementation, used as FDSU's slow-path fallback when a stream
// stalls.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package scp

import (
	"encoding/binary"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/spinctl/boardctl/internal/model"
)

// Transport is the narrow SCP contract FDSU's fallback path needs: a
// single synchronous word-at-a-time (or bounded-chunk) memory read/write,
// far slower than FDSU but dependable.
type Transport interface {
	ReadMemory(core model.Core, addr uint32, size uint32) ([]byte, error)
	WriteMemory(core model.Core, addr uint32, data []byte) error
}

const (
	scpCmdRead  uint16 = 2
	scpCmdWrite uint16 = 3
	readTimeout        = 5 * time.Second
	maxChunk           = 256
)

// UDPTransport is a minimal default Transport sending one request per
// chunk of at most 256 bytes. ReadMemory waits for each chunk's reply
// before sending the next request; WriteMemory sends its chunks back to
// back and reads no acknowledgement. It exists so the module runs end-to-end against a
// real or simulated SpiNNaker board without a full SCP client library in
// the loop.
type UDPTransport struct {
	dial func(core model.Core) (net.Conn, error)
}

func NewUDPTransport(dial func(model.Core) (net.Conn, error)) *UDPTransport {
	return &UDPTransport{dial: dial}
}

func (t *UDPTransport) ReadMemory(core model.Core, addr, size uint32) ([]byte, error) {
	conn, err := t.dial(core)
	if err != nil {
		return nil, errors.Wrap(err, "scp: dial")
	}
	defer conn.Close()

	out := make([]byte, 0, size)
	for remaining := size; remaining > 0; {
		n := remaining
		if n > maxChunk {
			n = maxChunk
		}
		req := make([]byte, 10)
		binary.LittleEndian.PutUint16(req[0:2], scpCmdRead)
		binary.LittleEndian.PutUint32(req[2:6], addr+uint32(len(out)))
		binary.LittleEndian.PutUint32(req[6:10], n)
		if err := conn.SetDeadline(time.Now().Add(readTimeout)); err != nil {
			return nil, err
		}
		if _, err := conn.Write(req); err != nil {
			return nil, errors.Wrap(err, "scp: write request")
		}
		resp := make([]byte, n)
		if _, err := readFull(conn, resp); err != nil {
			return nil, errors.Wrap(err, "scp: read response")
		}
		out = append(out, resp...)
		remaining -= n
	}
	return out, nil
}

func (t *UDPTransport) WriteMemory(core model.Core, addr uint32, data []byte) error {
	conn, err := t.dial(core)
	if err != nil {
		return errors.Wrap(err, "scp: dial")
	}
	defer conn.Close()

	for off := 0; off < len(data); {
		n := len(data) - off
		if n > maxChunk {
			n = maxChunk
		}
		req := make([]byte, 10+n)
		binary.LittleEndian.PutUint16(req[0:2], scpCmdWrite)
		binary.LittleEndian.PutUint32(req[2:6], addr+uint32(off))
		binary.LittleEndian.PutUint32(req[6:10], uint32(n))
		copy(req[10:], data[off:off+n])
		if err := conn.SetDeadline(time.Now().Add(readTimeout)); err != nil {
			return err
		}
		if _, err := conn.Write(req); err != nil {
			return errors.Wrap(err, "scp: write chunk")
		}
		off += n
	}
	return nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}
