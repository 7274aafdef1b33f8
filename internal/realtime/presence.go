// Package realtime presence tracking: user identity to live connections.
package realtime

import (
	"hash/fnv"
	"sync"
)

const shardCount = 32

// shardIndex picks the lock shard for a key. Presence and room state are
// partitioned so that operations on different keys only contend when their
// shards collide.
func shardIndex(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}

// PresenceRegistry maps user identities to their live sessions. A user is
// online while at least one session is registered. Multiple simultaneous
// sessions per user are legal (multi-device).
type PresenceRegistry struct {
	shards [shardCount]presenceShard

	// notify fires on online/offline edges. It is invoked while the owning
	// shard lock is held, which is what guarantees exactly one notification
	// per zero-to-nonzero and nonzero-to-zero transition; implementations
	// must not call back into the registry for the same user.
	notify func(userID string, online bool)
}

type presenceShard struct {
	mu    sync.Mutex
	users map[string]map[*Session]struct{}
}

// NewPresenceRegistry creates an empty registry. The notify callback may be
// nil when presence transitions need no announcement (tests).
func NewPresenceRegistry(notify func(userID string, online bool)) *PresenceRegistry {
	r := &PresenceRegistry{notify: notify}
	for i := range r.shards {
		r.shards[i].users = make(map[string]map[*Session]struct{})
	}
	return r
}

func (r *PresenceRegistry) shard(userID string) *presenceShard {
	return &r.shards[shardIndex(userID)]
}

// Register adds a session under a user identity. Registering the same session
// twice is a no-op. The online notification fires only when this is the
// user's first live session.
func (r *PresenceRegistry) Register(userID string, s *Session) {
	if userID == "" || s == nil {
		return
	}
	sh := r.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set, ok := sh.users[userID]
	if !ok {
		set = make(map[*Session]struct{})
		sh.users[userID] = set
	}
	if _, dup := set[s]; dup {
		return
	}
	set[s] = struct{}{}
	if len(set) == 1 && r.notify != nil {
		r.notify(userID, true)
	}
}

// Unregister removes a session from a user identity. Unknown sessions and
// unknown users are absorbed silently so duplicate disconnect notifications
// never error. The offline notification fires only when the user's last
// session is removed.
func (r *PresenceRegistry) Unregister(userID string, s *Session) {
	if userID == "" || s == nil {
		return
	}
	sh := r.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set, ok := sh.users[userID]
	if !ok {
		return
	}
	if _, present := set[s]; !present {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(sh.users, userID)
		if r.notify != nil {
			r.notify(userID, false)
		}
	}
}

// Connections returns a snapshot of the user's live sessions. The result is
// empty when the user is offline; it never contains a session whose
// Unregister has already completed.
func (r *PresenceRegistry) Connections(userID string) []*Session {
	sh := r.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	set := sh.users[userID]
	if len(set) == 0 {
		return nil
	}
	conns := make([]*Session, 0, len(set))
	for s := range set {
		conns = append(conns, s)
	}
	return conns
}

// Online reports whether the user has at least one live session.
func (r *PresenceRegistry) Online(userID string) bool {
	sh := r.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.users[userID]) > 0
}
