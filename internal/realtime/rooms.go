// Package realtime room membership: which sessions receive a room's events.
package realtime

import "sync"

// RoomManager tracks which sessions are subscribed to which rooms. It does
// not verify room-access authorization; the CRUD layer performs that before
// an event reaches this core.
type RoomManager struct {
	shards [shardCount]roomShard
}

type roomShard struct {
	mu    sync.Mutex
	rooms map[string]map[*Session]struct{}
}

// NewRoomManager creates an empty membership map.
func NewRoomManager() *RoomManager {
	m := &RoomManager{}
	for i := range m.shards {
		m.shards[i].rooms = make(map[string]map[*Session]struct{})
	}
	return m
}

func (m *RoomManager) shard(roomID string) *roomShard {
	return &m.shards[shardIndex(roomID)]
}

// Join subscribes a session to a room. Joining twice is a no-op.
func (m *RoomManager) Join(s *Session, roomID string) {
	if s == nil || roomID == "" {
		return
	}
	sh := m.shard(roomID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	members, ok := sh.rooms[roomID]
	if !ok {
		members = make(map[*Session]struct{})
		sh.rooms[roomID] = members
	}
	members[s] = struct{}{}
}

// Leave unsubscribes a session from a room; absent membership is a no-op.
func (m *RoomManager) Leave(s *Session, roomID string) {
	if s == nil || roomID == "" {
		return
	}
	sh := m.shard(roomID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	members, ok := sh.rooms[roomID]
	if !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(sh.rooms, roomID)
	}
}

// LeaveAll removes a session from every room it belongs to. Fan-out delivers
// under the same shard locks, so once LeaveAll has swept a shard the session
// can no longer receive broadcasts routed through it; after LeaveAll returns
// no broadcast reaches the session.
func (m *RoomManager) LeaveAll(s *Session) {
	if s == nil {
		return
	}
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		for roomID, members := range sh.rooms {
			delete(members, s)
			if len(members) == 0 {
				delete(sh.rooms, roomID)
			}
		}
		sh.mu.Unlock()
	}
}

// Members returns a snapshot of a room's current sessions.
func (m *RoomManager) Members(roomID string) []*Session {
	sh := m.shard(roomID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set := sh.rooms[roomID]
	if len(set) == 0 {
		return nil
	}
	members := make([]*Session, 0, len(set))
	for s := range set {
		members = append(members, s)
	}
	return members
}

// forEachMember invokes fn for every current member while holding the room's
// shard lock. Fan-out relies on this: enqueues for one broadcast complete
// before the next broadcast to the same room starts, which yields per-room
// FIFO delivery. fn must not block and must not call back into the manager.
func (m *RoomManager) forEachMember(roomID string, fn func(*Session)) {
	sh := m.shard(roomID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	for s := range sh.rooms[roomID] {
		fn(s)
	}
}
