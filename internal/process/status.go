package process

import "time"

// Status is a point-in-time snapshot of a tracked worker process.
type Status struct {
	BotID     string    `json:"bot_id"`
	Running   bool      `json:"running"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"`
	StoppedAt time.Time `json:"stopped_at"`
	ExitErr   error     `json:"exit_error,omitempty"`
}
