package ws

import (
	"iter"
	"sync"
	"time"

	"roomchat-service/internal/observability"
)

type session struct {
	conn         *Conn
	roomID       string
	lastActivity time.Time
}

// Registry is the set of live, authenticated connections with their activity stamp and
// current room.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	now      func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// Register adds a connection whose token has already been verified.
func (r *Registry) Register(t Transport, info ConnInfo) *Conn {
	c := newConn(t, info)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[c.ID()] = &session{conn: c, lastActivity: r.now()}
	observability.SetWSActive(len(r.sessions))
	return c
}

// Touch stamps the connection as active now.
func (r *Registry) Touch(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[c.ID()]; ok {
		s.lastActivity = r.now()
	}
}

// Unregister removes the connection. It reports false when it was already gone.
func (r *Registry) Unregister(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[c.ID()]; !ok {
		return false
	}
	delete(r.sessions, c.ID())
	observability.SetWSActive(len(r.sessions))
	return true
}

// SnapshotStale yields connections idle for longer than timeout. Each iteration takes a
// fresh snapshot, and yield is never called with the lock held.
func (r *Registry) SnapshotStale(timeout time.Duration) iter.Seq[*Conn] {
	return func(yield func(*Conn) bool) {
		r.mu.RLock()
		cutoff := r.now().Add(-timeout)
		stale := make([]*Conn, 0)
		for _, s := range r.sessions {
			if s.lastActivity.Before(cutoff) {
				stale = append(stale, s.conn)
			}
		}
		r.mu.RUnlock()

		for _, c := range stale {
			if !yield(c) {
				return
			}
		}
	}
}

// All returns a snapshot of every registered connection.
func (r *Registry) All() []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Conn, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.conn)
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// LastActivity returns the connection's activity stamp.
func (r *Registry) LastActivity(c *Conn) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[c.ID()]
	if !ok {
		return time.Time{}, false
	}
	return s.lastActivity, true
}

// RoomOf returns the connection's current room.
func (r *Registry) RoomOf(c *Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[c.ID()]
	if !ok || s.roomID == "" {
		return "", false
	}
	return s.roomID, true
}

// SetRoom records the connection's current room.
func (r *Registry) SetRoom(c *Conn, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[c.ID()]; ok {
		s.roomID = roomID
	}
}

// ClearRoom forgets the connection's current room.
func (r *Registry) ClearRoom(c *Conn) {
	r.SetRoom(c, "")
}
