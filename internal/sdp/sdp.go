// Package sdp implements the SDP/UDP wire framing shared by FdsuDownloader
// and FdsuUploader: an 8-byte SDP header, a 4-byte command
// ID, and a little-endian command body bounded to SDP_PAYLOAD_WORDS 32-bit
// words. Everything on this wire is little-endian, encoded by hand rather
// than through a general-purpose serialization library.
/*
 * Copyright (c) 2024-2026, The SpinCtl Authors. All rights reserved.
 */
package sdp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Command IDs.
const (
	StartSendingData   uint32 = 100
	StartMissingSeqs   uint32 = 1000
	NextMissingSeqs    uint32 = 1001
	ClearTransmissions uint32 = 2000

	SendDataToLocation uint32 = 200
	SendSeqData        uint32 = 201
	SendLastDataIn     uint32 = 202
)

// LastFlag marks the final DATA packet in a download stream: OR'd into
// seq_num, masked off on receipt.
const LastFlag uint32 = 0x80000000

// SDPPayloadWords bounds every frame's command body to 68 32-bit words
// (~272 bytes), the fixed SpiNNaker SDP payload limit.
const SDPPayloadWords = 68

// DataWordsPerPacket is the usable payload of a single DATA packet, after
// its own 8-byte (seq_num, transaction_id) header.
const DataWordsPerPacket = SDPPayloadWords - 2

// MaxFirstSize/MaxNextSize bound how many missing sequence numbers fit in
// one MISSING_FIRST/MISSING_NEXT frame after their own headers.
const (
	MaxFirstSize = SDPPayloadWords - 3
	MaxNextSize  = SDPPayloadWords - 2
)

// Header is the common 8-byte SDP header. Within FDSU only the download
// START frame sets a field of it (Flags=ReplyNotExpected); the
// missing-sequence, CLEAR and upload frames go out with an all-zero
// header, and no frame sets the destination core/port.
type Header struct {
	Flags      uint8
	Tag        uint8
	DestPort   uint8 // high 3 bits core, low 5 bits port, per SpiNNaker SDP convention
	DestCPU    uint8
	SrcPortCPU uint8
	SrcCPU     uint8
	DestX      uint8
	DestY      uint8
}

// ReplyNotExpected is the flags value the download START frame carries.
const ReplyNotExpected uint8 = 0x07

// Encode writes the 8-byte header into dst (len(dst) must be >= 8).
func (h Header) Encode(dst []byte) {
	dst[0] = h.Flags
	dst[1] = h.Tag
	dst[2] = h.DestPort
	dst[3] = h.DestCPU
	dst[4] = h.SrcPortCPU
	dst[5] = h.SrcCPU
	dst[6] = h.DestX
	dst[7] = h.DestY
}

// DecodeHeader reads the 8-byte header from src.
func DecodeHeader(src []byte) (Header, error) {
	if len(src) < 8 {
		return Header{}, errors.New("sdp: short header")
	}
	return Header{
		Flags:      src[0],
		Tag:        src[1],
		DestPort:   src[2],
		DestCPU:    src[3],
		SrcPortCPU: src[4],
		SrcCPU:     src[5],
		DestX:      src[6],
		DestY:      src[7],
	}, nil
}

// Frame is a fully assembled SDP packet: 8-byte header + 4-byte command ID
// + body.
type Frame struct {
	Header  Header
	Command uint32
	Body    []byte
}

// Encode serializes the frame little-endian: header, then command, then
// body, verbatim.
func (f Frame) Encode() []byte {
	buf := make([]byte, 12+len(f.Body))
	f.Header.Encode(buf[0:8])
	binary.LittleEndian.PutUint32(buf[8:12], f.Command)
	copy(buf[12:], f.Body)
	return buf
}

// DecodeFrame parses a wire frame back into header/command/body.
func DecodeFrame(raw []byte) (Frame, error) {
	if len(raw) < 12 {
		return Frame{}, errors.Errorf("sdp: frame too short (%d bytes)", len(raw))
	}
	hdr, err := DecodeHeader(raw[0:8])
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Header:  hdr,
		Command: binary.LittleEndian.Uint32(raw[8:12]),
		Body:    raw[12:],
	}, nil
}

// StartSendingDataBody is the START (host->gatherer) download-request body.
type StartSendingDataBody struct {
	TransactionID uint32
	StartAddress  uint32
	SizeBytes     uint32
}

func (b StartSendingDataBody) Encode() []byte {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], b.TransactionID)
	binary.LittleEndian.PutUint32(buf[4:8], b.StartAddress)
	binary.LittleEndian.PutUint32(buf[8:12], b.SizeBytes)
	return buf
}

func DecodeStartSendingDataBody(body []byte) (StartSendingDataBody, error) {
	if len(body) < 12 {
		return StartSendingDataBody{}, errors.New("sdp: short START body")
	}
	return StartSendingDataBody{
		TransactionID: binary.LittleEndian.Uint32(body[0:4]),
		StartAddress:  binary.LittleEndian.Uint32(body[4:8]),
		SizeBytes:     binary.LittleEndian.Uint32(body[8:12]),
	}, nil
}

// DataBody is one monitor->host DATA packet.
type DataBody struct {
	SeqNum        uint32 // LastFlag may be OR'd in
	TransactionID uint32
	Payload       []byte
}

func (b DataBody) Encode() []byte {
	buf := make([]byte, 8+len(b.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], b.SeqNum)
	binary.LittleEndian.PutUint32(buf[4:8], b.TransactionID)
	copy(buf[8:], b.Payload)
	return buf
}

func DecodeDataBody(body []byte) (DataBody, error) {
	if len(body) < 8 {
		return DataBody{}, errors.New("sdp: short DATA body")
	}
	return DataBody{
		SeqNum:        binary.LittleEndian.Uint32(body[0:4]),
		TransactionID: binary.LittleEndian.Uint32(body[4:8]),
		Payload:       body[8:],
	}, nil
}

// MissingBody is shared by MISSING_FIRST (with NumPackets) and
// MISSING_NEXT (without); IsFirst picks the wire shape.
type MissingBody struct {
	TransactionID uint32
	NumPackets    uint32 // only meaningful/encoded when IsFirst
	Seqs          []uint32
	IsFirst       bool
}

func (b MissingBody) Encode() []byte {
	headerWords := 1
	if b.IsFirst {
		headerWords = 2
	}
	buf := make([]byte, 4*(headerWords+len(b.Seqs)))
	binary.LittleEndian.PutUint32(buf[0:4], b.TransactionID)
	off := 4
	if b.IsFirst {
		binary.LittleEndian.PutUint32(buf[4:8], b.NumPackets)
		off = 8
	}
	for _, s := range b.Seqs {
		binary.LittleEndian.PutUint32(buf[off:off+4], s)
		off += 4
	}
	return buf
}

func DecodeMissingBody(body []byte, isFirst bool) (MissingBody, error) {
	if len(body) < 4 {
		return MissingBody{}, errors.New("sdp: short MISSING body")
	}
	out := MissingBody{TransactionID: binary.LittleEndian.Uint32(body[0:4]), IsFirst: isFirst}
	off := 4
	if isFirst {
		if len(body) < 8 {
			return MissingBody{}, errors.New("sdp: short MISSING_FIRST body")
		}
		out.NumPackets = binary.LittleEndian.Uint32(body[4:8])
		off = 8
	}
	for off+4 <= len(body) {
		out.Seqs = append(out.Seqs, binary.LittleEndian.Uint32(body[off:off+4]))
		off += 4
	}
	return out, nil
}

// ClearBody is the CLEAR_TRANSMISSIONS body.
type ClearBody struct {
	TransactionID uint32
}

func (b ClearBody) Encode() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, b.TransactionID)
	return buf
}

func DecodeClearBody(body []byte) (ClearBody, error) {
	if len(body) < 4 {
		return ClearBody{}, errors.New("sdp: short CLEAR body")
	}
	return ClearBody{TransactionID: binary.LittleEndian.Uint32(body[0:4])}, nil
}

// SendDataToLocationBody is the upload START (host->monitor) body: target
// address plus the first chunk of payload.
type SendDataToLocationBody struct {
	BaseAddress uint32
	BoardLocalX uint32
	BoardLocalY uint32
	NumPackets  uint32
	Payload     []byte
}

func (b SendDataToLocationBody) Encode() []byte {
	buf := make([]byte, 16+len(b.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], b.BaseAddress)
	binary.LittleEndian.PutUint32(buf[4:8], b.BoardLocalX)
	binary.LittleEndian.PutUint32(buf[8:12], b.BoardLocalY)
	binary.LittleEndian.PutUint32(buf[12:16], b.NumPackets)
	copy(buf[16:], b.Payload)
	return buf
}

func DecodeSendDataToLocationBody(body []byte) (SendDataToLocationBody, error) {
	if len(body) < 16 {
		return SendDataToLocationBody{}, errors.New("sdp: short SEND_DATA_TO_LOCATION body")
	}
	return SendDataToLocationBody{
		BaseAddress: binary.LittleEndian.Uint32(body[0:4]),
		BoardLocalX: binary.LittleEndian.Uint32(body[4:8]),
		BoardLocalY: binary.LittleEndian.Uint32(body[8:12]),
		NumPackets:  binary.LittleEndian.Uint32(body[12:16]),
		Payload:     body[16:],
	}, nil
}

// SendSeqDataBody is one upload continuation packet.
type SendSeqDataBody struct {
	SeqNum  uint32
	Payload []byte
}

func (b SendSeqDataBody) Encode() []byte {
	buf := make([]byte, 4+len(b.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], b.SeqNum)
	copy(buf[4:], b.Payload)
	return buf
}

func DecodeSendSeqDataBody(body []byte) (SendSeqDataBody, error) {
	if len(body) < 4 {
		return SendSeqDataBody{}, errors.New("sdp: short SEND_SEQ_DATA body")
	}
	return SendSeqDataBody{SeqNum: binary.LittleEndian.Uint32(body[0:4]), Payload: body[4:]}, nil
}
