// Package realtime manages individual WebSocket sessions, handling read and
// write pumps, inbound event dispatch, rate limiting, and lifecycle control
// for each connection.
package realtime

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/loftwork/loft-realtime/internal/store"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Session is one live transport connection. It owns three goroutines: a read
// pump decoding frames onto the inbound channel, a dispatch loop invoking the
// managers in arrival order, and a write pump draining the send queue. The
// user identity is unbound until the announce-online event arrives.
type Session struct {
	id   string
	conn *websocket.Conn
	hub  *Hub
	addr string

	send    chan []byte
	inbound chan Envelope

	limiter        *rateLimiter
	maxMessageSize int64
	logger         *slog.Logger

	mu     sync.Mutex
	userID string
	closed bool

	teardown sync.Once
}

func newSession(hub *Hub, conn *websocket.Conn, addr string) *Session {
	opts := hub.opts
	if conn != nil {
		conn.SetReadLimit(opts.MaxMessageSize)
	}
	s := &Session{
		id:             uuid.NewString(),
		conn:           conn,
		hub:            hub,
		addr:           addr,
		send:           make(chan []byte, opts.SendQueueSize),
		inbound:        make(chan Envelope, 32),
		limiter:        newRateLimiter(opts.RateLimitBurst, opts.RateLimitRefill),
		maxMessageSize: opts.MaxMessageSize,
	}
	s.logger = hub.logger.With("session", s.id, "addr", addr)
	return s
}

// ID returns the transport-level identifier of this connection.
func (s *Session) ID() string {
	return s.id
}

// UserID returns the bound user identity, or "" before announce-online.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// enqueue queues an encoded frame for delivery. It never blocks: a closed
// session or a full queue drops the frame and reports false.
func (s *Session) enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// sendEvent encodes an envelope and queues it for this session only.
func (s *Session) sendEvent(event string, data any) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		s.logger.Error("failed to encode outbound event", "event", event, "error", err)
		return
	}
	s.enqueue(frame)
}

func (s *Session) sendError(code ErrorCode, message string) {
	s.sendEvent(EventError, ErrorPayload{Code: string(code), Message: message})
}

// Close tears the session down exactly once, even under duplicate disconnect
// notifications: room memberships first, then presence, then hub detach.
func (s *Session) Close() {
	s.teardown.Do(func() {
		s.hub.rooms.LeaveAll(s)
		if uid := s.UserID(); uid != "" {
			s.hub.presence.Unregister(uid, s)
		}
		s.hub.detach(s)

		s.mu.Lock()
		s.closed = true
		close(s.send)
		s.mu.Unlock()

		if s.conn != nil {
			if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
				s.logger.Warn("error closing connection", "error", err)
			}
		}
	})
}

// setupReadConnection configures read deadlines and the pong handler.
func (s *Session) setupReadConnection() {
	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		s.logger.Warn("error setting initial read deadline", "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			s.logger.Warn("error setting read deadline in pong handler", "error", err)
		}
		return nil
	})
}

// handleReadError logs the read failure appropriately and reports whether the
// read loop should stop.
func (s *Session) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		s.logger.Warn("inbound frame exceeded maximum size", "limit", s.maxMessageSize)
		return true
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		s.logger.Info("session disconnected", "error", err)
		return true
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		s.logger.Info("session connection closed", "error", err)
		return true
	}

	s.logger.Warn("websocket read error", "error", err)
	return true
}

// readPump decodes inbound frames onto the dispatch channel. Slow dispatch
// backpressures the pump rather than reordering or dropping events, which
// preserves per-connection ordering.
func (s *Session) readPump() {
	defer func() {
		close(s.inbound)
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn("error closing connection in read pump", "error", err)
		}
	}()

	s.setupReadConnection()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if s.handleReadError(err) {
				return
			}
			continue
		}

		if !s.limiter.allow() {
			s.logger.Warn("rate limit exceeded, discarding frame")
			continue
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.logger.Warn("invalid frame", "error", err)
			s.sendError(CodeInvalidPayload, "malformed event frame")
			continue
		}
		s.inbound <- env
	}
}

// dispatchLoop consumes the inbound channel until the read pump closes it,
// then tears the session down.
func (s *Session) dispatchLoop() {
	defer s.Close()
	for env := range s.inbound {
		s.handleEvent(env)
	}
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with periodic pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn("error closing connection in write pump", "error", err)
		}
	}()

	for {
		select {
		case frame, ok := <-s.send:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Warn("error setting write deadline", "error", err)
				return
			}
			if !ok {
				if err := s.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
					s.logger.Warn("error writing close message", "error", err)
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				if !isExpectedCloseError(err) {
					s.logger.Warn("error writing frame", "error", err)
				}
				return
			}
		case <-ticker.C:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.logger.Warn("error setting write deadline for ping", "error", err)
				return
			}
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				if !isExpectedCloseError(err) {
					s.logger.Warn("error writing ping", "error", err)
				}
				return
			}
		}
	}
}

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	if len(data) == 0 {
		return v, errors.New("missing event data")
	}
	err := json.Unmarshal(data, &v)
	return v, err
}

// handleEvent routes one inbound event to the matching manager call.
func (s *Session) handleEvent(env Envelope) {
	switch env.Event {
	case EventAnnounceOnline:
		payload, err := decode[AnnounceOnlinePayload](env.Data)
		if err != nil || payload.UserID == "" {
			s.sendError(CodeInvalidPayload, "announce-online requires userId")
			return
		}
		s.bindUser(payload.UserID)

	case EventJoinRoom:
		payload, err := decode[RoomRefPayload](env.Data)
		if err != nil || payload.RoomID == "" {
			s.sendError(CodeInvalidPayload, "join-room requires roomId")
			return
		}
		s.hub.rooms.Join(s, payload.RoomID)

	case EventLeaveRoom:
		payload, err := decode[RoomRefPayload](env.Data)
		if err != nil || payload.RoomID == "" {
			s.sendError(CodeInvalidPayload, "leave-room requires roomId")
			return
		}
		s.hub.rooms.Leave(s, payload.RoomID)

	case EventSendChat:
		s.handleSendChat(env.Data)

	case EventEditChat:
		s.handleEditChat(env.Data)

	case EventDeleteChat:
		s.handleDeleteChat(env.Data)

	case EventPinChat:
		s.handlePinChat(env.Data)

	case EventAddReaction:
		s.handleAddReaction(env.Data)

	case EventTyping:
		payload, err := decode[TypingPayload](env.Data)
		if err != nil || payload.RoomID == "" {
			s.sendError(CodeInvalidPayload, "typing requires roomId")
			return
		}
		if err := s.hub.fanout.BroadcastTyping(payload.RoomID, payload.SenderID, payload.DisplayName); err != nil {
			s.logger.Error("failed to broadcast typing indicator", "error", err)
		}

	case EventCallInvite:
		s.handleCallInvite(env.Data)

	case EventCallAccept:
		payload, err := decode[CallAcceptPayload](env.Data)
		if err != nil || payload.ToUserID == "" {
			s.sendError(CodeInvalidPayload, "call-accept requires toUserId")
			return
		}
		s.hub.relay.Accept(payload.ToUserID, payload.Answer)

	case EventCallReject:
		payload, err := decode[CallRejectPayload](env.Data)
		if err != nil || payload.ToUserID == "" {
			s.sendError(CodeInvalidPayload, "call-reject requires toUserId")
			return
		}
		s.hub.relay.Reject(payload.ToUserID)

	case EventCallCandidate:
		payload, err := decode[CallCandidatePayload](env.Data)
		if err != nil || payload.ToUserID == "" {
			s.sendError(CodeInvalidPayload, "call-ice-candidate requires toUserId")
			return
		}
		s.hub.relay.Candidate(payload.ToUserID, payload.Candidate)

	case EventCallTerminate:
		payload, err := decode[CallTerminatePayload](env.Data)
		if err != nil || payload.ToUserID == "" {
			s.sendError(CodeInvalidPayload, "call-terminate requires toUserId")
			return
		}
		s.hub.relay.End(payload.ToUserID)

	default:
		s.logger.Debug("ignoring unknown event", "event", env.Event)
	}
}

// bindUser registers this session under a user identity on the first
// announce-online. Re-announcing the same identity is idempotent; announcing
// a different one is ignored.
func (s *Session) bindUser(userID string) {
	s.mu.Lock()
	switch s.userID {
	case "":
		s.userID = userID
	case userID:
	default:
		bound := s.userID
		s.mu.Unlock()
		s.logger.Warn("ignoring announce-online for a different user",
			"bound", bound, "requested", userID)
		return
	}
	s.mu.Unlock()
	s.hub.presence.Register(userID, s)
}

func (s *Session) handleSendChat(data []byte) {
	payload, err := decode[SendChatPayload](data)
	if err != nil || payload.RoomID == "" {
		s.sendError(CodeInvalidPayload, "send-chat requires roomId")
		return
	}

	msg := store.NewMessage{
		ChannelID: payload.RoomID,
		SenderID:  payload.SenderID,
		Content:   payload.Body,
		ParentID:  payload.ParentID,
	}
	if payload.Attachment != nil {
		msg.Attachment = &store.Attachment{
			Name: payload.Attachment.Name,
			URL:  payload.Attachment.URL,
			Type: payload.Attachment.Type,
			Size: payload.Attachment.Size,
		}
	}

	row, err := s.hub.store.Create(s.hub.ctx, msg)
	if err != nil {
		s.reportStoreError("send-chat", err)
		return
	}
	s.broadcastChatEvent(payload.RoomID, ChatChangeNew, row, "")
}

func (s *Session) handleEditChat(data []byte) {
	payload, err := decode[EditChatPayload](data)
	if err != nil || payload.MessageID == "" {
		s.sendError(CodeInvalidPayload, "edit-chat requires messageId")
		return
	}
	row, err := s.hub.store.Edit(s.hub.ctx, payload.MessageID, payload.Body)
	if err != nil {
		s.reportStoreError("edit-chat", err)
		return
	}
	s.broadcastChatEvent(payload.RoomID, ChatChangeUpdated, row, "")
}

func (s *Session) handleDeleteChat(data []byte) {
	payload, err := decode[DeleteChatPayload](data)
	if err != nil || payload.MessageID == "" {
		s.sendError(CodeInvalidPayload, "delete-chat requires messageId")
		return
	}
	if err := s.hub.store.Delete(s.hub.ctx, payload.MessageID); err != nil {
		s.reportStoreError("delete-chat", err)
		return
	}
	s.broadcastChatEvent(payload.RoomID, ChatChangeDeleted, nil, payload.MessageID)
}

func (s *Session) handlePinChat(data []byte) {
	payload, err := decode[PinChatPayload](data)
	if err != nil || payload.MessageID == "" {
		s.sendError(CodeInvalidPayload, "pin-chat requires messageId")
		return
	}
	row, err := s.hub.store.Pin(s.hub.ctx, payload.MessageID)
	if err != nil {
		s.reportStoreError("pin-chat", err)
		return
	}
	s.broadcastChatEvent(payload.RoomID, ChatChangeUpdated, row, "")
}

func (s *Session) handleAddReaction(data []byte) {
	payload, err := decode[AddReactionPayload](data)
	if err != nil || payload.MessageID == "" {
		s.sendError(CodeInvalidPayload, "add-reaction requires messageId")
		return
	}
	row, err := s.hub.store.AddReaction(s.hub.ctx, payload.MessageID, payload.Emoji, payload.UserID)
	if err != nil {
		s.reportStoreError("add-reaction", err)
		return
	}
	s.broadcastChatEvent(payload.RoomID, ChatChangeUpdated, row, "")
}

func (s *Session) handleCallInvite(data []byte) {
	payload, err := decode[CallInvitePayload](data)
	if err != nil || payload.ToUserID == "" {
		s.sendError(CodeInvalidPayload, "call-invite requires toUserId")
		return
	}
	from := s.UserID()
	if from == "" {
		s.logger.Warn("dropping call-invite from unbound session")
		return
	}
	if !s.hub.relay.Invite(from, payload.ToUserID, payload.CallType, payload.Offer) {
		// Unreachable callee looks like an immediate decline to the caller;
		// the two cases are intentionally indistinguishable at the relay.
		s.sendEvent(EventCallRejected, nil)
	}
}

// broadcastChatEvent fans a persisted message change out to its room.
func (s *Session) broadcastChatEvent(roomID, change string, msg *store.ChatMessage, messageID string) {
	payload := ChatEventPayload{Change: change, RoomID: roomID, MessageID: messageID}
	if msg != nil {
		payload.Message = msg
	}
	if err := s.hub.fanout.BroadcastEvent(roomID, EventChatEvent, payload); err != nil {
		s.logger.Error("failed to broadcast chat event", "change", change, "error", err)
	}
}

// reportStoreError surfaces a persistence failure to this session only.
func (s *Session) reportStoreError(op string, err error) {
	opErr := newOpError(CodePersistFailed, op+" failed", err)
	if errors.Is(err, store.ErrNotFound) {
		opErr = newOpError(CodeNotFound, op+": message not found", err)
	}
	s.logger.Warn("persistence operation failed", "op", op, "error", opErr)
	s.sendError(opErr.Code, opErr.Message)
}
