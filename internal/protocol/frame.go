package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single frame body. A header announcing more than this
// is treated as a protocol error rather than an allocation request.
const MaxFrameSize = 1 << 20

// Frames are a 4-byte big-endian length header followed by that many bytes of
// UTF-8 JSON. One format everywhere; no delimiters, no fixed-size reads.

// WriteFrame encodes m and writes one complete frame to w.
func WriteFrame(w io.Writer, m Message) error {
	if err := m.validate(); err != nil {
		return err
	}
	body, err := json.Marshal(m)
	if err != nil {
		return &Error{Reason: "marshal message", Err: err}
	}
	if len(body) > MaxFrameSize {
		return &Error{Reason: fmt.Sprintf("frame body %d exceeds limit %d", len(body), MaxFrameSize)}
	}
	buf := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(body))) // #nosec G115 -- bounded by MaxFrameSize
	copy(buf[4:], body)
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads one complete frame from r and decodes it.
// io.EOF is returned untouched on a clean close between frames; a close in
// the middle of a frame surfaces as a protocol error.
func ReadFrame(r io.Reader) (Message, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return Message{}, io.EOF
		}
		return Message{}, &Error{Reason: "read frame header", Err: err}
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 {
		return Message{}, &Error{Reason: "zero-length frame"}
	}
	if n > MaxFrameSize {
		return Message{}, &Error{Reason: fmt.Sprintf("frame length %d exceeds limit %d", n, MaxFrameSize)}
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, &Error{Reason: "read frame body", Err: err}
	}
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, &Error{Reason: "unmarshal message", Err: err}
	}
	if err := m.validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}
