package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/loftwork/loft-realtime/internal/store"
)

// fakeStore is an in-memory MessageStore with switchable failure modes.
type fakeStore struct {
	mu         sync.Mutex
	messages   map[string]*store.ChatMessage
	failCreate bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{messages: make(map[string]*store.ChatMessage)}
}

func (f *fakeStore) Create(_ context.Context, msg store.NewMessage) (*store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return nil, errors.New("database unavailable")
	}
	row := &store.ChatMessage{
		ID:        uuid.NewString(),
		ChannelID: msg.ChannelID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		ParentID:  msg.ParentID,
	}
	f.messages[row.ID] = row
	return row, nil
}

func (f *fakeStore) Edit(_ context.Context, id, content string) (*store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	row.Content = content
	return row, nil
}

func (f *fakeStore) Pin(_ context.Context, id string) (*store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	row.IsPinned = true
	return row, nil
}

func (f *fakeStore) AddReaction(_ context.Context, id, _, _ string) (*store.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return row, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.messages[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.messages, id)
	return nil
}

func newTestHub(st store.MessageStore) *Hub {
	if st == nil {
		st = newFakeStore()
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHub(st, logger, Options{SendQueueSize: 64})
}

// drainEvents reads every frame currently queued on the session's send
// channel and decodes the envelopes.
func drainEvents(t *testing.T, s *Session) []Envelope {
	t.Helper()
	var events []Envelope
	for {
		select {
		case frame, ok := <-s.send:
			if !ok {
				return events
			}
			var env Envelope
			if err := json.Unmarshal(frame, &env); err != nil {
				t.Fatalf("invalid outbound frame: %v", err)
			}
			events = append(events, env)
		default:
			return events
		}
	}
}

// eventNames projects envelopes to their event names.
func eventNames(events []Envelope) []string {
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.Event)
	}
	return names
}

func mustRaw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func inboundEvent(t *testing.T, event string, payload any) Envelope {
	t.Helper()
	return Envelope{Event: event, Data: mustRaw(t, payload)}
}
