// Package realtime coordinates session registration, presence announcements,
// and connection cleanup for the real-time core via the Hub type.
package realtime

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loftwork/loft-realtime/internal/store"
)

// Options tunes per-session transport behavior.
type Options struct {
	MaxMessageSize  int64
	RateLimitBurst  int
	RateLimitRefill time.Duration
	SendQueueSize   int
}

func (o Options) withDefaults() Options {
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.RateLimitBurst <= 0 {
		o.RateLimitBurst = 20
	}
	if o.RateLimitRefill <= 0 {
		o.RateLimitRefill = time.Second
	}
	if o.SendQueueSize <= 0 {
		o.SendQueueSize = 256
	}
	return o
}

// Hub owns the shared coordination state: the presence registry, room
// membership, fan-out engine, call relay, and the set of live sessions.
// Presence transitions are announced to every connected session, matching the
// reference behavior of a global presence broadcast.
type Hub struct {
	presence *PresenceRegistry
	rooms    *RoomManager
	fanout   *Fanout
	relay    *CallRelay
	store    store.MessageStore
	logger   *slog.Logger
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

// NewHub wires the coordination core around a message store.
func NewHub(st store.MessageStore, logger *slog.Logger, opts Options) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		store:    st,
		logger:   logger,
		opts:     opts.withDefaults(),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[*Session]struct{}),
	}
	h.presence = NewPresenceRegistry(h.presenceChanged)
	h.rooms = NewRoomManager()
	h.fanout = NewFanout(h.rooms, logger)
	h.relay = NewCallRelay(h.presence, logger)
	return h
}

// Presence exposes the registry for collaborators that resolve connections.
func (h *Hub) Presence() *PresenceRegistry {
	return h.presence
}

// Rooms exposes the membership manager.
func (h *Hub) Rooms() *RoomManager {
	return h.rooms
}

// Fanout exposes the broadcast engine.
func (h *Hub) Fanout() *Fanout {
	return h.fanout
}

// Relay exposes the call-signaling relay.
func (h *Hub) Relay() *CallRelay {
	return h.relay
}

// Attach creates a session for an upgraded connection, registers it, and
// starts its pump goroutines. A nil connection still yields a registered
// session without pumps, which tests drive directly.
func (h *Hub) Attach(conn *websocket.Conn, addr string) *Session {
	s := newSession(h, conn, addr)

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	count := len(h.sessions)
	h.mu.Unlock()
	h.logger.Info("session attached", "addr", addr, "sessions", count)

	if conn != nil {
		h.wg.Add(3)
		go func() {
			defer h.wg.Done()
			s.writePump()
		}()
		go func() {
			defer h.wg.Done()
			s.readPump()
		}()
		go func() {
			defer h.wg.Done()
			s.dispatchLoop()
		}()
	}
	return s
}

func (h *Hub) detach(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s)
	count := len(h.sessions)
	h.mu.Unlock()
	h.logger.Info("session detached", "addr", s.addr, "sessions", count)
}

// presenceChanged announces an online/offline transition to every connected
// session. Invoked by the registry with the user's shard lock held; it only
// enqueues frames and never re-enters the registry.
func (h *Hub) presenceChanged(userID string, online bool) {
	status := "offline"
	if online {
		status = "online"
	}
	frame, err := encodeEvent(EventPresenceChanged, PresenceChangedPayload{
		UserID: userID,
		Status: status,
	})
	if err != nil {
		h.logger.Error("failed to encode presence change", "error", err)
		return
	}
	h.broadcastAll(frame)
}

// broadcastAll enqueues a frame on every live session.
func (h *Hub) broadcastAll(frame []byte) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		s.enqueue(frame)
	}
}

// SessionCount reports the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Shutdown closes every live session and waits for their goroutines to
// finish, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("shutting down hub")
	h.cancel()

	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed", "sessions_closed", len(sessions))
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached")
		return context.DeadlineExceeded
	}
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
