package control

import (
	"errors"
	"sync"
	"time"

	"github.com/botherd/botherd/internal/channel"
)

// ErrRegistryConflict reports a registration attempt for an identity that is
// already mapped to a different live connection. The old mapping wins; the
// duplicate is logged and its connection closed.
var ErrRegistryConflict = errors.New("control: identity already registered")

// ErrNotConnected reports a send to an identity with no live channel.
var ErrNotConnected = errors.New("control: worker not connected")

// record ties a registered identity to its live channel.
type record struct {
	ch       *channel.Channel
	lastSeen time.Time
}

// Registry is the manager's identity-to-connection mapping. It is the only
// cross-handler mutable state on the server side; every access goes through
// the lock, and the lock is never held across a socket operation.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*record
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*record)}
}

func (r *Registry) register(botID string, ch *channel.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.entries[botID]; ok && old.ch != ch {
		return ErrRegistryConflict
	}
	r.entries[botID] = &record{ch: ch, lastSeen: time.Now()}
	return nil
}

// unregister removes botID only while it still maps to ch, so a handler
// tearing down cannot evict a successor that re-registered meanwhile.
func (r *Registry) unregister(botID string, ch *channel.Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.entries[botID]; ok && cur.ch == ch {
		delete(r.entries, botID)
		return true
	}
	return false
}

func (r *Registry) lookup(botID string) (*channel.Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.entries[botID]
	if !ok {
		return nil, false
	}
	return rec.ch, true
}

func (r *Registry) touch(botID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.entries[botID]; ok {
		rec.lastSeen = time.Now()
	}
}

// Connected reports whether botID has a live registered channel.
func (r *Registry) Connected(botID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[botID]
	return ok
}

// IDs returns the currently registered identities.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of registered workers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
