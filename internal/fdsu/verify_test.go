package fdsu

import (
	"testing"

	"github.com/spinctl/boardctl/internal/model"
	"github.com/spinctl/boardctl/internal/scp"
)

type fakeSCP struct {
	data []byte
	err  error
}

func (f *fakeSCP) ReadMemory(core model.Core, addr, size uint32) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[addr : addr+size], nil
}

func (f *fakeSCP) WriteMemory(model.Core, uint32, []byte) error { return nil }

var _ scp.Transport = (*fakeSCP)(nil)

func TestVerifierMatchingDigestSucceeds(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	v := NewVerifier(&fakeSCP{data: data})
	region := model.Region{StartAddr: 0, SizeBytes: uint32(len(data))}
	if err := v.Verify(region, data); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifierMismatchFails(t *testing.T) {
	data := []byte("reference bytes")
	v := NewVerifier(&fakeSCP{data: data})
	region := model.Region{StartAddr: 0, SizeBytes: uint32(len(data))}
	got := []byte("different bytes!")
	err := v.Verify(region, got)
	if err == nil {
		t.Fatal("expected digest mismatch error")
	}
	terr, ok := err.(*TransportError)
	if !ok || terr.Reason != DanglingReference {
		t.Fatalf("err = %v, want DanglingReference TransportError", err)
	}
}

func TestVerifierPropagatesSCPError(t *testing.T) {
	v := NewVerifier(&fakeSCP{err: errSCP{}})
	region := model.Region{StartAddr: 0, SizeBytes: 4}
	err := v.Verify(region, []byte("data"))
	if err == nil {
		t.Fatal("expected scp error to propagate")
	}
	terr, ok := err.(*TransportError)
	if !ok || terr.Reason != PeerClosed {
		t.Fatalf("err = %v, want PeerClosed TransportError", err)
	}
}

type errSCP struct{}

func (errSCP) Error() string { return "scp unreachable" }
