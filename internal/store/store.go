package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no record exists for a bot id.
var ErrNotFound = errors.New("store: record not found")

// Record is the durable process record for one launched worker. It lets a
// restarted manager recognize workers from a previous run: the PID alone is
// not trusted, the recorded command line must still match the live process.
type Record struct {
	BotID     string
	PID       int
	Command   string
	StartedAt time.Time
}

// Store persists process records keyed by bot id. Writes are atomic at the
// record level; a second manager instance reading concurrently never sees a
// torn record.
type Store interface {
	EnsureSchema(ctx context.Context) error
	// Put inserts or replaces the record for rec.BotID.
	Put(ctx context.Context, rec Record) error
	// Get returns the record for botID or ErrNotFound.
	Get(ctx context.Context, botID string) (Record, error)
	// Delete removes the record for botID; deleting a missing record is not an error.
	Delete(ctx context.Context, botID string) error
	// List returns all records.
	List(ctx context.Context) ([]Record, error)
	Close() error
}
