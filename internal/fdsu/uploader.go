package fdsu

import (
	"context"
	"net"
	"time"

	"github.com/spinctl/boardctl/internal/metrics"
	"github.com/spinctl/boardctl/internal/sdp"
)

// Upload chunk sizes: the first packet carries the target
// address alongside payload, so it has less room than subsequent packets.
const (
	DataInFullPacketWithAddress    = (sdp.SDPPayloadWords - 4) * 4
	DataInFullPacketWithoutAddress = (sdp.SDPPayloadWords - 1) * 4
)

// Uploader is the send side of the transport, symmetric to Downloader:
// no host-side retransmission beyond targeted NACK response, since the
// monitor core is the one that detects gaps.
type Uploader struct {
	mx *metrics.Transport
}

func NewUploader(mx *metrics.Transport) *Uploader {
	if mx == nil {
		mx = metrics.NewTransport()
	}
	return &Uploader{mx: mx}
}

// Send uploads data to (baseAddress, boardLocalX, boardLocalY) on a single
// board, then listens for a bounded window of NACK frames and retransmits
// targeted chunks before returning.
func (u *Uploader) Send(ctx context.Context, g *Gatherer, baseAddress, boardLocalX, boardLocalY uint32, data []byte) error {
	pace := newPacer(InterSendInterval)
	chunks := u.chunk(data)
	numPackets := uint32(len(chunks))

	pace.wait()
	first := sdp.Frame{Command: sdp.SendDataToLocation, Body: sdp.SendDataToLocationBody{
		BaseAddress: baseAddress,
		BoardLocalX: boardLocalX,
		BoardLocalY: boardLocalY,
		NumPackets:  numPackets,
		Payload:     chunks[0],
	}.Encode()}
	if err := g.send(first.Encode()); err != nil {
		return fail(PeerClosed, "send SEND_DATA_TO_LOCATION: %v", err)
	}

	for seq := 1; seq < len(chunks); seq++ {
		pace.wait()
		time.Sleep(DelayPerSend)
		f := sdp.Frame{Command: sdp.SendSeqData, Body: sdp.SendSeqDataBody{SeqNum: uint32(seq), Payload: chunks[seq]}.Encode()}
		if err := g.send(f.Encode()); err != nil {
			return fail(PeerClosed, "send SEND_SEQ_DATA %d: %v", seq, err)
		}
	}

	pace.wait()
	last := sdp.Frame{Command: sdp.SendLastDataIn, Body: nil}
	if err := g.send(last.Encode()); err != nil {
		return fail(PeerClosed, "send SEND_LAST_DATA_IN: %v", err)
	}
	u.mx.AddBytes(len(data))

	return u.retransmitOnNack(ctx, g, pace, chunks, baseAddress, boardLocalX, boardLocalY, numPackets)
}

// chunk splits data into wire-sized pieces: the first sized for the
// address-bearing packet, the rest for plain SEND_SEQ_DATA packets.
func (u *Uploader) chunk(data []byte) [][]byte {
	if len(data) <= DataInFullPacketWithAddress {
		return [][]byte{data}
	}
	chunks := [][]byte{data[:DataInFullPacketWithAddress]}
	rest := data[DataInFullPacketWithAddress:]
	for len(rest) > 0 {
		n := len(rest)
		if n > DataInFullPacketWithoutAddress {
			n = DataInFullPacketWithoutAddress
		}
		chunks = append(chunks, rest[:n])
		rest = rest[n:]
	}
	return chunks
}

// retransmitOnNack listens briefly for MISSING frames from the monitor and
// resends the targeted chunks. Unlike the downloader, there is no local
// notion of completion beyond exhausting the receive-timeout budget.
func (u *Uploader) retransmitOnNack(ctx context.Context, g *Gatherer, pace *pacer, chunks [][]byte, baseAddress, boardLocalX, boardLocalY, numPackets uint32) error {
	buf := make([]byte, 512)
	idle := 0
	for idle < TimeoutRetryLimit {
		if err := ctx.Err(); err != nil {
			return fail(InterruptedIO, "upload cancelled: %v", err)
		}
		_ = g.Conn.SetReadDeadline(time.Now().Add(TimeoutPerReceive))
		n, _, err := g.Conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				idle++
				continue
			}
			return fail(PeerClosed, "read: %v", err)
		}
		idle = 0

		frame, err := sdp.DecodeFrame(buf[:n])
		if err != nil {
			continue
		}
		isFirst := frame.Command == sdp.StartMissingSeqs
		if !isFirst && frame.Command != sdp.NextMissingSeqs {
			continue
		}
		missing, err := sdp.DecodeMissingBody(frame.Body, isFirst)
		if err != nil {
			continue
		}
		for _, seq := range missing.Seqs {
			if int(seq) >= len(chunks) {
				continue
			}
			pace.wait()
			time.Sleep(DelayPerSend)
			var rf sdp.Frame
			if seq == 0 {
				rf = sdp.Frame{Command: sdp.SendDataToLocation, Body: sdp.SendDataToLocationBody{
					BaseAddress: baseAddress,
					BoardLocalX: boardLocalX,
					BoardLocalY: boardLocalY,
					NumPackets:  numPackets,
					Payload:     chunks[0],
				}.Encode()}
			} else {
				rf = sdp.Frame{Command: sdp.SendSeqData, Body: sdp.SendSeqDataBody{SeqNum: seq, Payload: chunks[seq]}.Encode()}
			}
			if err := g.send(rf.Encode()); err != nil {
				return fail(PeerClosed, "retransmit seq %d: %v", seq, err)
			}
		}
	}
	return nil
}
