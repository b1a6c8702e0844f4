package sdp

import (
	"bytes"
	"testing"
)

// TestFrameRoundTrip checks the round-trip law: encode then decode any
// SDP frame yields the original fields bit-identically.
func TestFrameRoundTrip(t *testing.T) {
	hdr := Header{
		Flags:      ReplyNotExpected,
		Tag:        3,
		DestPort:   5,
		DestCPU:    1,
		SrcPortCPU: 2,
		SrcCPU:     4,
		DestX:      10,
		DestY:      20,
	}
	f := Frame{Header: hdr, Command: StartSendingData, Body: StartSendingDataBody{
		TransactionID: 7,
		StartAddress:  0x12345678,
		SizeBytes:     1024,
	}.Encode()}

	raw := f.Encode()
	got, err := DecodeFrame(raw)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if got.Header != hdr {
		t.Errorf("header round trip = %+v, want %+v", got.Header, hdr)
	}
	if got.Command != f.Command {
		t.Errorf("command round trip = %d, want %d", got.Command, f.Command)
	}
	if !bytes.Equal(got.Body, f.Body) {
		t.Errorf("body round trip = %v, want %v", got.Body, f.Body)
	}

	body, err := DecodeStartSendingDataBody(got.Body)
	if err != nil {
		t.Fatalf("DecodeStartSendingDataBody: %v", err)
	}
	if body.TransactionID != 7 || body.StartAddress != 0x12345678 || body.SizeBytes != 1024 {
		t.Errorf("START body round trip = %+v", body)
	}
}

func TestDataBodyRoundTrip(t *testing.T) {
	cases := []DataBody{
		{SeqNum: 0, TransactionID: 9, Payload: []byte("hello")},
		{SeqNum: 3 | LastFlag, TransactionID: 9, Payload: nil},
	}
	for _, c := range cases {
		raw := c.Encode()
		got, err := DecodeDataBody(raw)
		if err != nil {
			t.Fatalf("DecodeDataBody: %v", err)
		}
		if got.SeqNum != c.SeqNum || got.TransactionID != c.TransactionID || !bytes.Equal(got.Payload, c.Payload) {
			t.Errorf("DataBody round trip = %+v, want %+v", got, c)
		}
	}
}

func TestMissingBodyRoundTrip(t *testing.T) {
	first := MissingBody{TransactionID: 1, NumPackets: 3, Seqs: []uint32{2, 5, 9}, IsFirst: true}
	raw := first.Encode()
	got, err := DecodeMissingBody(raw, true)
	if err != nil {
		t.Fatalf("DecodeMissingBody(first): %v", err)
	}
	if got.TransactionID != first.TransactionID || got.NumPackets != first.NumPackets || !eqSeqs(got.Seqs, first.Seqs) {
		t.Errorf("MISSING_FIRST round trip = %+v, want %+v", got, first)
	}

	next := MissingBody{TransactionID: 1, Seqs: []uint32{11, 12}, IsFirst: false}
	raw = next.Encode()
	got, err = DecodeMissingBody(raw, false)
	if err != nil {
		t.Fatalf("DecodeMissingBody(next): %v", err)
	}
	if got.TransactionID != next.TransactionID || !eqSeqs(got.Seqs, next.Seqs) {
		t.Errorf("MISSING_NEXT round trip = %+v, want %+v", got, next)
	}
}

func TestClearBodyRoundTrip(t *testing.T) {
	c := ClearBody{TransactionID: 42}
	got, err := DecodeClearBody(c.Encode())
	if err != nil {
		t.Fatalf("DecodeClearBody: %v", err)
	}
	if got != c {
		t.Errorf("CLEAR round trip = %+v, want %+v", got, c)
	}
}

func TestUploadBodiesRoundTrip(t *testing.T) {
	start := SendDataToLocationBody{BaseAddress: 0x1000, BoardLocalX: 1, BoardLocalY: 2, NumPackets: 4, Payload: []byte("abcd")}
	got, err := DecodeSendDataToLocationBody(start.Encode())
	if err != nil {
		t.Fatalf("DecodeSendDataToLocationBody: %v", err)
	}
	if got.BaseAddress != start.BaseAddress || got.BoardLocalX != start.BoardLocalX ||
		got.BoardLocalY != start.BoardLocalY || got.NumPackets != start.NumPackets || !bytes.Equal(got.Payload, start.Payload) {
		t.Errorf("SEND_DATA_TO_LOCATION round trip = %+v, want %+v", got, start)
	}

	seq := SendSeqDataBody{SeqNum: 3, Payload: []byte("wxyz")}
	gotSeq, err := DecodeSendSeqDataBody(seq.Encode())
	if err != nil {
		t.Fatalf("DecodeSendSeqDataBody: %v", err)
	}
	if gotSeq.SeqNum != seq.SeqNum || !bytes.Equal(gotSeq.Payload, seq.Payload) {
		t.Errorf("SEND_SEQ_DATA round trip = %+v, want %+v", gotSeq, seq)
	}
}

func TestDecodeFrameShort(t *testing.T) {
	if _, err := DecodeFrame([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding short frame")
	}
}

func eqSeqs(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
