package client

import "time"

// BotStatus mirrors the manager's status response for one bot.
type BotStatus struct {
	BotID     string    `json:"bot_id"`
	Running   bool      `json:"running"`
	Connected bool      `json:"connected"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
