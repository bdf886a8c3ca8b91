package protocol

import (
	"encoding/json"
	"fmt"
)

// Kind enumerates the control message kinds carried on a channel.
type Kind string

const (
	// KindConnected registers a worker identity with the manager.
	KindConnected Kind = "connected"
	// KindStop asks a worker to begin its graceful shutdown.
	KindStop Kind = "stop"
	// KindAck is the transport-level receipt for a delivered frame.
	// It is never acked itself.
	KindAck Kind = "ack"
	// KindCustom carries an opaque payload for future command types.
	KindCustom Kind = "custom"
)

// Message is the wire-level unit exchanged between manager and workers.
// Values are immutable once constructed; Payload is opaque JSON.
type Message struct {
	Kind    Kind            `json:"kind"`
	BotID   string          `json:"bot_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Connected builds the registration message a worker sends after dialing.
func Connected(botID string) Message { return Message{Kind: KindConnected, BotID: botID} }

// Stop builds the stop command for the named worker.
func Stop(botID string) Message { return Message{Kind: KindStop, BotID: botID} }

// Ack builds the transport-level acknowledgment frame.
func Ack() Message { return Message{Kind: KindAck} }

// Custom builds an extensible command with an opaque payload.
func Custom(botID string, payload json.RawMessage) Message {
	return Message{Kind: KindCustom, BotID: botID, Payload: payload}
}

// NeedsAck reports whether the receiver must echo an ack for this message.
func (m Message) NeedsAck() bool { return m.Kind != KindAck }

func (m Message) validate() error {
	switch m.Kind {
	case KindConnected:
		if m.BotID == "" {
			return &Error{Reason: "connected message requires bot_id"}
		}
	case KindStop, KindAck, KindCustom:
	default:
		return &Error{Reason: fmt.Sprintf("unknown message kind %q", m.Kind)}
	}
	return nil
}

// Error is a protocol-level decode/encode failure. It terminates only the
// connection it occurred on, never the process.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "protocol: " + e.Reason + ": " + e.Err.Error()
	}
	return "protocol: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }
