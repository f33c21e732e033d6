package ws

import (
	"sort"
	"sync"

	"roomchat-service/internal/observability"
)

// RoomIndex maps a room id to the connections subscribed to it. Entries are created on
// first join and deleted when they become empty.
type RoomIndex struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Conn
}

// NewRoomIndex creates an empty index.
func NewRoomIndex() *RoomIndex {
	return &RoomIndex{rooms: make(map[string]map[string]*Conn)}
}

// Join subscribes c to roomID. Leaving a previous room is the caller's job.
func (idx *RoomIndex) Join(roomID string, c *Conn) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.rooms[roomID]; !ok {
		idx.rooms[roomID] = make(map[string]*Conn)
	}
	idx.rooms[roomID][c.ID()] = c
	observability.SetWSActiveRooms(len(idx.rooms))
}

// Leave unsubscribes c from roomID and reports whether it was subscribed.
func (idx *RoomIndex) Leave(roomID string, c *Conn) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	conns := idx.rooms[roomID]
	if _, ok := conns[c.ID()]; !ok {
		return false
	}
	delete(conns, c.ID())
	if len(conns) == 0 {
		delete(idx.rooms, roomID)
		observability.SetWSActiveRooms(len(idx.rooms))
	}
	return true
}

// MembersOf returns a snapshot of roomID's subscribers.
func (idx *RoomIndex) MembersOf(roomID string) []*Conn {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	conns := idx.rooms[roomID]
	out := make([]*Conn, 0, len(conns))
	for _, c := range conns {
		out = append(out, c)
	}
	return out
}

// Contains reports whether c is subscribed to roomID.
func (idx *RoomIndex) Contains(roomID string, c *Conn) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.rooms[roomID][c.ID()]
	return ok
}

// Count returns the number of live connections in roomID.
func (idx *RoomIndex) Count(roomID string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.rooms[roomID])
}

// ActiveRoomIDs returns the rooms with at least one live connection, sorted.
func (idx *RoomIndex) ActiveRoomIDs() []string {
	idx.mu.RLock()
	ids := make([]string, 0, len(idx.rooms))
	for id := range idx.rooms {
		ids = append(ids, id)
	}
	idx.mu.RUnlock()

	sort.Strings(ids)
	return ids
}
