package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcastReachesMembersOnly(t *testing.T) {
	h := newTestHub(nil)
	member := h.Attach(nil, "member")
	outsider := h.Attach(nil, "outsider")

	h.rooms.Join(member, "general")
	h.fanout.Broadcast("general", []byte(`{"event":"chat-event"}`))

	assert.Len(t, drainEvents(t, member), 1, "member receives exactly once")
	assert.Empty(t, drainEvents(t, outsider), "non-member must never receive")
}

// A user online with two connections where only one joined the room: delivery
// targets room membership, not user identity.
func TestBroadcastTargetsHandlesNotUsers(t *testing.T) {
	h := newTestHub(nil)
	h1 := h.Attach(nil, "device-1")
	h2 := h.Attach(nil, "device-2")
	h1.bindUser("alice")
	h2.bindUser("alice")
	drainEvents(t, h1)
	drainEvents(t, h2)

	h.rooms.Join(h1, "general")
	h.fanout.Broadcast("general", []byte(`{"event":"chat-event"}`))

	assert.Len(t, drainEvents(t, h1), 1)
	assert.Empty(t, drainEvents(t, h2), "second device never joined the room")
}

func TestBroadcastAfterLeaveAllNeverDelivers(t *testing.T) {
	h := newTestHub(nil)
	s := h.Attach(nil, "test")
	h.rooms.Join(s, "general")
	h.rooms.Join(s, "random")

	h.rooms.LeaveAll(s)
	h.fanout.Broadcast("general", []byte(`{}`))
	h.fanout.Broadcast("random", []byte(`{}`))

	assert.Empty(t, drainEvents(t, s))
}

func TestBroadcastRaceWithLeaveAll(t *testing.T) {
	h := newTestHub(nil)
	s := h.Attach(nil, "test")
	for i := 0; i < 8; i++ {
		h.rooms.Join(s, fmt.Sprintf("room-%d", i))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.rooms.LeaveAll(s)
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 8; i++ {
			h.fanout.Broadcast(fmt.Sprintf("room-%d", i), []byte(`{}`))
		}
	}()
	wg.Wait()

	// After LeaveAll returned, no further broadcast may deliver.
	drainEvents(t, s)
	h.fanout.Broadcast("room-0", []byte(`{}`))
	assert.Empty(t, drainEvents(t, s))
}

func TestBroadcastOrderPerRoom(t *testing.T) {
	h := newTestHub(nil)
	s := h.Attach(nil, "test")
	h.rooms.Join(s, "general")

	const n = 50
	for i := 0; i < n; i++ {
		frame, err := json.Marshal(Envelope{Event: fmt.Sprintf("e-%d", i)})
		require.NoError(t, err)
		h.fanout.Broadcast("general", frame)
	}

	events := drainEvents(t, s)
	require.Len(t, events, n)
	for i, env := range events {
		assert.Equal(t, fmt.Sprintf("e-%d", i), env.Event, "single-room FIFO order")
	}
}

func TestBroadcastTypingExcludesSenderSessions(t *testing.T) {
	h := newTestHub(nil)
	senderA := h.Attach(nil, "alice-1")
	senderB := h.Attach(nil, "alice-2")
	receiver := h.Attach(nil, "bob-1")
	senderA.bindUser("alice")
	senderB.bindUser("alice")
	receiver.bindUser("bob")
	for _, s := range []*Session{senderA, senderB, receiver} {
		h.rooms.Join(s, "general")
		drainEvents(t, s)
	}

	require.NoError(t, h.fanout.BroadcastTyping("general", "alice", "Alice"))

	assert.Empty(t, drainEvents(t, senderA), "sender's sessions are excluded")
	assert.Empty(t, drainEvents(t, senderB), "all of the sender's sessions are excluded")

	events := drainEvents(t, receiver)
	require.Len(t, events, 1)
	assert.Equal(t, EventUserTyping, events[0].Event)

	var payload UserTypingPayload
	require.NoError(t, json.Unmarshal(events[0].Data, &payload))
	assert.Equal(t, "alice", payload.UserID)
	assert.Equal(t, "Alice", payload.DisplayName)
	assert.Equal(t, "general", payload.RoomID)
}

func TestBroadcastSkipsFullQueues(t *testing.T) {
	st := newFakeStore()
	h := NewHub(st, nil, Options{SendQueueSize: 1})
	slow := h.Attach(nil, "slow")
	healthy := h.Attach(nil, "healthy")
	h.rooms.Join(slow, "general")
	h.rooms.Join(healthy, "general")

	h.fanout.Broadcast("general", []byte(`{"event":"a"}`))
	assert.Len(t, drainEvents(t, healthy), 1)

	// The slow session still holds the first frame, so the next delivery to
	// it is dropped without affecting the healthy recipient.
	h.fanout.Broadcast("general", []byte(`{"event":"b"}`))
	assert.Len(t, drainEvents(t, healthy), 1)
	assert.Len(t, drainEvents(t, slow), 1)
}
