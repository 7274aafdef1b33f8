// Package realtime implements the real-time coordination core: presence
// tracking, room membership, message fan-out, and call-signaling relay over
// per-connection WebSocket sessions.
package realtime

import "encoding/json"

// Inbound event names accepted from clients.
const (
	EventAnnounceOnline = "announce-online"
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"
	EventSendChat       = "send-chat"
	EventEditChat       = "edit-chat"
	EventDeleteChat     = "delete-chat"
	EventPinChat        = "pin-chat"
	EventAddReaction    = "add-reaction"
	EventTyping         = "typing"
	EventCallInvite     = "call-invite"
	EventCallAccept     = "call-accept"
	EventCallReject     = "call-reject"
	EventCallCandidate  = "call-ice-candidate"
	EventCallTerminate  = "call-terminate"
)

// Outbound event names emitted to clients.
const (
	EventPresenceChanged = "presence-changed"
	EventChatEvent       = "chat-event"
	EventUserTyping      = "user-typing"
	EventIncomingCall    = "incoming-call"
	EventCallAccepted    = "call-accepted"
	EventCallRejected    = "call-rejected"
	EventCallEnded       = "call-ended"
	EventIceCandidate    = "ice-candidate"
	EventError           = "error"
)

// Chat event change variants carried in ChatEventPayload.
const (
	ChatChangeNew     = "new"
	ChatChangeUpdated = "updated"
	ChatChangeDeleted = "deleted"
)

// Envelope is the wire format for every frame in both directions: an event
// name plus an event-specific JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// AnnounceOnlinePayload binds a connection to a user identity.
type AnnounceOnlinePayload struct {
	UserID string `json:"userId"`
}

// RoomRefPayload names a room for join-room and leave-room.
type RoomRefPayload struct {
	RoomID string `json:"roomId"`
}

// AttachmentPayload describes a single optional file attached to a message.
type AttachmentPayload struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// SendChatPayload creates a new persisted message in a room.
type SendChatPayload struct {
	RoomID     string             `json:"roomId"`
	SenderID   string             `json:"senderId"`
	Body       string             `json:"body"`
	ParentID   *string            `json:"parentId,omitempty"`
	Attachment *AttachmentPayload `json:"attachment,omitempty"`
}

// EditChatPayload replaces the body of an existing message.
type EditChatPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	Body      string `json:"body"`
}

// DeleteChatPayload removes an existing message.
type DeleteChatPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// PinChatPayload marks an existing message as pinned.
type PinChatPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
}

// AddReactionPayload toggles on an emoji reaction for a user.
type AddReactionPayload struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	Emoji     string `json:"emoji"`
	UserID    string `json:"userId"`
}

// TypingPayload is the lossy typing indicator. It carries no persistence side
// effect; receivers treat it as stale after a few seconds of silence.
type TypingPayload struct {
	RoomID      string `json:"roomId"`
	SenderID    string `json:"senderId"`
	DisplayName string `json:"displayName"`
}

// CallInvitePayload starts call negotiation with another user. The offer is an
// opaque blob relayed without interpretation.
type CallInvitePayload struct {
	ToUserID string          `json:"toUserId"`
	CallType string          `json:"callType"`
	Offer    json.RawMessage `json:"offer"`
}

// CallAcceptPayload answers a pending call.
type CallAcceptPayload struct {
	ToUserID string          `json:"toUserId"`
	Answer   json.RawMessage `json:"answer"`
}

// CallRejectPayload declines a pending call.
type CallRejectPayload struct {
	ToUserID string `json:"toUserId"`
}

// CallCandidatePayload relays one ICE candidate to the peer.
type CallCandidatePayload struct {
	ToUserID  string          `json:"toUserId"`
	Candidate json.RawMessage `json:"candidate"`
}

// CallTerminatePayload ends an in-progress or pending call.
type CallTerminatePayload struct {
	ToUserID string `json:"toUserId"`
}

// PresenceChangedPayload announces a user transitioning online or offline.
type PresenceChangedPayload struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// ChatEventPayload is the room broadcast for new, updated, and deleted
// messages. Message is present for new/updated; MessageID for deleted.
type ChatEventPayload struct {
	Change    string `json:"change"`
	RoomID    string `json:"roomId"`
	Message   any    `json:"message,omitempty"`
	MessageID string `json:"messageId,omitempty"`
}

// UserTypingPayload is the outbound typing indicator.
type UserTypingPayload struct {
	RoomID      string `json:"roomId"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

// IncomingCallPayload notifies a callee of a pending invitation.
type IncomingCallPayload struct {
	From     string          `json:"from"`
	CallType string          `json:"callType"`
	Offer    json.RawMessage `json:"offer"`
}

// CallAcceptedPayload carries the callee's answer back to the caller.
type CallAcceptedPayload struct {
	Answer json.RawMessage `json:"answer"`
}

// IceCandidatePayload carries one relayed ICE candidate.
type IceCandidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
}

// ErrorPayload reports an operation failure to the originating connection.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// encodeEvent marshals an outbound envelope for the given event name and
// payload.
func encodeEvent(event string, data any) ([]byte, error) {
	var raw json.RawMessage
	if data != nil {
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
