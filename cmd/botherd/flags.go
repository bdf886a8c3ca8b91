package main

import "time"

// Flag structs decouple cobra from logic for testing.

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// BotFlags holds flags for start/stop/status/send commands talking to a
// running manager over its HTTP API.
type BotFlags struct {
	ID         string
	Wait       time.Duration
	Payload    string
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for the serve command.
type ServeFlags struct {
	ConfigPath string
}

// WorkerFlags holds flags for the worker command.
type WorkerFlags struct {
	ID       string
	Addr     string
	Type     string
	TokenEnv string
}
