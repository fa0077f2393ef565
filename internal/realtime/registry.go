package realtime

import (
	"errors"
	"sync"
)

// Conn is one live push connection.
type Conn interface {
	ID() string
	// Send queues msg without blocking and reports whether it was accepted.
	Send(msg []byte) bool
	Close()
}

// ErrConnTaken is returned when a connection id is held by another user.
var ErrConnTaken = errors.New("connection id belongs to another user")

// Presence maps users to their live connections.
type Presence interface {
	Register(userID int64, c Conn) error
	Unregister(c Conn) (userID int64, remaining int, ok bool)
	Connections(userID int64) []Conn
}

// Registry is the in-memory Presence. A user may hold several connections;
// registering one of the user's connection ids again replaces and closes the
// stale handle. Ids held by another user are refused with ErrConnTaken.
type Registry struct {
	mu    sync.RWMutex
	users map[int64]map[string]Conn
	owner map[string]int64
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[int64]map[string]Conn),
		owner: make(map[string]int64),
	}
}

func (r *Registry) Register(userID int64, c Conn) error {
	r.mu.Lock()
	var stale Conn
	if prevUser, ok := r.owner[c.ID()]; ok {
		if prevUser != userID {
			r.mu.Unlock()
			return ErrConnTaken
		}
		stale = r.users[prevUser][c.ID()]
		r.remove(prevUser, c.ID())
	}
	conns, ok := r.users[userID]
	if !ok {
		conns = make(map[string]Conn)
		r.users[userID] = conns
	}
	conns[c.ID()] = c
	r.owner[c.ID()] = userID
	r.mu.Unlock()

	if stale != nil && stale != c {
		stale.Close()
	}
	return nil
}

// Unregister removes c if it is still the registered handle for its id. It
// returns the owning user and how many connections that user has left.
func (r *Registry) Unregister(c Conn) (int64, int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owner[c.ID()]
	if !ok || r.users[userID][c.ID()] != c {
		return 0, 0, false
	}
	r.remove(userID, c.ID())
	return userID, len(r.users[userID]), true
}

func (r *Registry) remove(userID int64, id string) {
	delete(r.owner, id)
	conns := r.users[userID]
	delete(conns, id)
	if len(conns) == 0 {
		delete(r.users, userID)
	}
}

// Connections returns a snapshot of the user's connections.
func (r *Registry) Connections(userID int64) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.users[userID]
	out := make([]Conn, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Online(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID]) > 0
}
