package history

import (
	"context"
	"time"
)

// EventType defines the kind of bot lifecycle event.
type EventType string

const (
	EventStart      EventType = "start"
	EventStop       EventType = "stop"
	EventKill       EventType = "kill"
	EventConnect    EventType = "connect"
	EventDisconnect EventType = "disconnect"
)

// Event represents a bot lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	BotID      string    `json:"bot_id"`
	PID        int       `json:"pid,omitempty"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Fanout delivers an event to every sink, best effort. Sink errors never
// propagate to the caller.
func Fanout(ctx context.Context, sinks []Sink, e Event) {
	for _, s := range sinks {
		_ = s.Send(ctx, e)
	}
}
