// Package presence tracks which users are online and through which live connections.
package presence

import (
	"sync"

	"github.com/gofrs/uuid/v5"
	"github.com/samber/lo"

	"github.com/and161185/goph-talk/internal/model"
)

// Conn is a live, authenticated connection that can receive pushed messages.
// Push must not block; transports queue and write asynchronously.
type Conn interface {
	ID() uuid.UUID
	Push(msg model.Message) error
}

// Stats is a point-in-time view of the registry size.
type Stats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
}

// Registry maps user ids to their live connections. The state is in-memory only.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]map[uuid.UUID]Conn
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byUser: make(map[int64]map[uuid.UUID]Conn)}
}

// Register adds c to the user's connection set. Registering the same handle twice is a no-op.
func (r *Registry) Register(userID int64, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.byUser[userID]
	if set == nil {
		set = make(map[uuid.UUID]Conn)
		r.byUser[userID] = set
	}
	set[c.ID()] = c
}

// Deregister removes c from the user's set and drops the user once no connections remain.
func (r *Registry) Deregister(userID int64, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.byUser[userID]
	if set == nil {
		return
	}
	delete(set, c.ID())
	if len(set) == 0 {
		delete(r.byUser, userID)
	}
}

// LiveConnections returns a snapshot of the user's connections, nil when offline.
// The caller may push to the result without holding any registry lock.
func (r *Registry) LiveConnections(userID int64) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byUser[userID]
	if len(set) == 0 {
		return nil
	}
	return lo.Values(set)
}

// Online reports whether the user has at least one live connection.
func (r *Registry) Online(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

// Stats counts online users and their connections.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{Users: len(r.byUser)}
	for _, set := range r.byUser {
		s.Connections += len(set)
	}
	return s
}
