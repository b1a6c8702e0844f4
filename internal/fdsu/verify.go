package fdsu

import (
	"github.com/cespare/xxhash/v2"

	"github.com/spinctl/boardctl/internal/model"
	"github.com/spinctl/boardctl/internal/scp"
)

// Verifier re-reads a downloaded region over the slow SCP path and
// xxhash-compares it against what FDSU assembled, backing the
// --compare-download flag. It exists because FDSU's
// own sliding-window NACK recovery never independently checksums the
// finished buffer; this gives an operator a second, much slower opinion.
type Verifier struct {
	Transport scp.Transport
}

func NewVerifier(t scp.Transport) *Verifier { return &Verifier{Transport: t} }

// Verify re-reads region via SCP and compares its xxhash digest against got.
func (v *Verifier) Verify(region model.Region, got []byte) error {
	ref, err := v.Transport.ReadMemory(region.Core, region.StartAddr, region.SizeBytes)
	if err != nil {
		return fail(PeerClosed, "compare-download: scp re-read: %v", err)
	}
	if xxhash.Sum64(ref) != xxhash.Sum64(got) {
		return fail(DanglingReference, "compare-download: digest mismatch for region %+v", region.Core)
	}
	return nil
}
