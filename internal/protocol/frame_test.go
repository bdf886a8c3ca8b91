package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	cases := []Message{
		Connected("w1"),
		Stop("w1"),
		Ack(),
		Custom("w2", []byte(`{"volume":11}`)),
		Custom("", nil),
	}
	for _, want := range cases {
		var buf bytes.Buffer
		if err := WriteFrame(&buf, want); err != nil {
			t.Fatalf("WriteFrame(%v): %v", want.Kind, err)
		}
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame(%v): %v", want.Kind, err)
		}
		if got.Kind != want.Kind || got.BotID != want.BotID {
			t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
		}
		if !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("payload mismatch: got %s want %s", got.Payload, want.Payload)
		}
	}
}

func TestFrameSeveralInSequence(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 5; i++ {
		if err := WriteFrame(&buf, Stop("w1")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	for i := 0; i < 5; i++ {
		m, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if m.Kind != KindStop {
			t.Fatalf("read %d: kind %q", i, m.Kind)
		}
	}
	if _, err := ReadFrame(&buf); err != io.EOF {
		t.Fatalf("expected EOF after last frame, got %v", err)
	}
}

func TestReadFrameTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Connected("w1")); err != nil {
		t.Fatalf("write: %v", err)
	}
	trunc := buf.Bytes()[:buf.Len()-3]
	_, err := ReadFrame(bytes.NewReader(trunc))
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected protocol error for truncated body, got %v", err)
	}
}

func TestReadFrameOversizedHeader(t *testing.T) {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], MaxFrameSize+1)
	_, err := ReadFrame(bytes.NewReader(hdr[:]))
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected protocol error for oversized header, got %v", err)
	}
}

func TestReadFrameZeroLength(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0, 0, 0}))
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected protocol error for zero-length frame, got %v", err)
	}
}

func TestReadFrameBadJSON(t *testing.T) {
	body := []byte(`{"kind":`)
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	buf.Write(hdr[:])
	buf.Write(body)
	_, err := ReadFrame(&buf)
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected protocol error for bad JSON, got %v", err)
	}
}

func TestReadFrameUnknownKind(t *testing.T) {
	body := []byte(`{"kind":"detonate","bot_id":"w1"}`)
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	buf.Write(hdr[:])
	buf.Write(body)
	_, err := ReadFrame(&buf)
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected protocol error for unknown kind, got %v", err)
	}
}

func TestWriteFrameRejectsInvalid(t *testing.T) {
	var buf bytes.Buffer
	// connected without bot_id is malformed by construction
	err := WriteFrame(&buf, Message{Kind: KindConnected})
	var perr *Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("invalid message must not write bytes, wrote %d", buf.Len())
	}
}

func TestAckNeedsNoAck(t *testing.T) {
	if Ack().NeedsAck() {
		t.Fatal("ack must not require an ack")
	}
	for _, m := range []Message{Connected("a"), Stop("a"), Custom("a", nil)} {
		if !m.NeedsAck() {
			t.Fatalf("%s must require an ack", m.Kind)
		}
	}
}
