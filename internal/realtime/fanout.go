// Package realtime fan-out: deliver one event to every member of a room.
package realtime

import "log/slog"

// Fanout delivers encoded events to every session subscribed to a room.
// Delivery to an individual session is fire-and-forget: a session whose queue
// is full simply misses the event, and the remaining recipients are
// unaffected. Events to the same room reach all recipients in the order they
// were broadcast.
type Fanout struct {
	rooms  *RoomManager
	logger *slog.Logger
}

// NewFanout creates a fan-out engine over the given membership manager.
func NewFanout(rooms *RoomManager, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{rooms: rooms, logger: logger}
}

// Broadcast sends an already-encoded frame to every current member of the
// room. Members that joined after the call observes the member set do not
// receive the frame.
func (f *Fanout) Broadcast(roomID string, frame []byte) {
	f.rooms.forEachMember(roomID, func(s *Session) {
		if !s.enqueue(frame) {
			f.logger.Warn("dropping broadcast for slow or closed session",
				"room", roomID, "session", s.ID())
		}
	})
}

// BroadcastEvent encodes an envelope and broadcasts it.
func (f *Fanout) BroadcastEvent(roomID, event string, data any) error {
	frame, err := encodeEvent(event, data)
	if err != nil {
		return err
	}
	f.Broadcast(roomID, frame)
	return nil
}

// BroadcastTyping delivers a typing indicator to all room members except the
// sessions bound to the sender's own user identity. Pure best-effort signal,
// no persistence.
func (f *Fanout) BroadcastTyping(roomID, senderUserID, displayName string) error {
	frame, err := encodeEvent(EventUserTyping, UserTypingPayload{
		RoomID:      roomID,
		UserID:      senderUserID,
		DisplayName: displayName,
	})
	if err != nil {
		return err
	}
	f.rooms.forEachMember(roomID, func(s *Session) {
		if s.UserID() == senderUserID {
			return
		}
		s.enqueue(frame)
	})
	return nil
}
