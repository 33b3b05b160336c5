// Package presence owns the mapping of user identity to live connections.
// It is the only cross-request shared mutable state in the realtime core;
// every other component reaches it through Register/Deregister/lookup and
// never touches its internals.
package presence

import (
	"sync"

	"github.com/rs/zerolog"
)

// Conn is a live, authenticated connection. Implemented by ws.Client;
// tests substitute their own.
type Conn interface {
	ID() string
	UserID() string
	// Send queues an event for delivery. It reports false when the
	// connection is gone or its buffer is full; callers treat delivery
	// as best-effort and never retry.
	Send(event string, data any) bool
}

// Registry maps user identity to the set of that user's live connections.
// A user appears iff it has at least one connection. All methods are safe
// for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string][]Conn
	log   zerolog.Logger
}

func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		conns: make(map[string][]Conn),
		log:   log.With().Str("component", "presence").Logger(),
	}
}

// Register adds a connection for its user.
func (r *Registry) Register(c Conn) {
	r.mu.Lock()
	r.conns[c.UserID()] = append(r.conns[c.UserID()], c)
	n := len(r.conns[c.UserID()])
	r.mu.Unlock()

	r.log.Debug().Str("user", c.UserID()).Str("conn", c.ID()).Int("connections", n).Msg("registered")
}

// Deregister removes a connection and reports whether it was the user's
// last one, in which case the user is no longer present.
func (r *Registry) Deregister(c Conn) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.conns[c.UserID()]
	for i, other := range list {
		if other.ID() == c.ID() {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.conns, c.UserID())
		return true
	}
	r.conns[c.UserID()] = list
	return false
}

// Connections returns a snapshot of the user's live connections.
func (r *Registry) Connections(userID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Conn(nil), r.conns[userID]...)
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// Online returns the identities of all present users.
func (r *Registry) Online() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.conns))
	for id := range r.conns {
		users = append(users, id)
	}
	return users
}

// SendToUser fans an event out to every connection of the user and
// returns how many deliveries were accepted. Zero means the user is
// unreachable right now; callers do not queue.
func (r *Registry) SendToUser(userID, event string, data any) int {
	delivered := 0
	for _, c := range r.Connections(userID) {
		if c.Send(event, data) {
			delivered++
		}
	}
	return delivered
}

// Broadcast sends an event to every connection except exceptConnID
// (pass "" to reach everyone).
func (r *Registry) Broadcast(event string, data any, exceptConnID string) {
	r.mu.RLock()
	var targets []Conn
	for _, list := range r.conns {
		for _, c := range list {
			if c.ID() != exceptConnID {
				targets = append(targets, c)
			}
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		c.Send(event, data)
	}
}
