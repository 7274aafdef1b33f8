// Package store persists chat messages for the real-time core. The core only
// depends on the MessageStore port; the gorm/sqlite implementation lives
// alongside it as the default collaborator.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when an operation references a message id that does
// not exist.
var ErrNotFound = errors.New("store: message not found")

// ChatMessage is the durable message row and the payload broadcast to a room
// after a successful write. Reactions is a JSON object mapping emoji to the
// user ids that reacted, kept as text the way the original schema stored it.
type ChatMessage struct {
	ID        string  `gorm:"primaryKey" json:"id"`
	ChannelID string  `gorm:"index" json:"channelId"`
	SenderID  string  `json:"senderId"`
	Content   string  `json:"content"`
	ParentID  *string `json:"parentId,omitempty"`
	IsPinned  bool    `json:"isPinned"`
	Reactions string  `json:"reactions,omitempty"`

	AttachmentName string `json:"attachmentName,omitempty"`
	AttachmentURL  string `json:"attachmentUrl,omitempty"`
	AttachmentType string `json:"attachmentType,omitempty"`
	AttachmentSize int64  `json:"attachmentSize,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Attachment describes one optional file carried by a new message.
type Attachment struct {
	Name string
	URL  string
	Type string
	Size int64
}

// NewMessage is the input for Create.
type NewMessage struct {
	ChannelID  string
	SenderID   string
	Content    string
	ParentID   *string
	Attachment *Attachment
}

// MessageStore is the persistence port the core calls before fanning a chat
// event out. A failed write means no broadcast.
type MessageStore interface {
	Create(ctx context.Context, msg NewMessage) (*ChatMessage, error)
	Edit(ctx context.Context, id, content string) (*ChatMessage, error)
	Pin(ctx context.Context, id string) (*ChatMessage, error)
	AddReaction(ctx context.Context, id, emoji, userID string) (*ChatMessage, error)
	Delete(ctx context.Context, id string) error
}

// addReaction merges one (emoji, user) pair into a reactions JSON blob,
// idempotently per pair.
func addReaction(reactions, emoji, userID string) (string, error) {
	parsed := make(map[string][]string)
	if reactions != "" {
		if err := json.Unmarshal([]byte(reactions), &parsed); err != nil {
			return "", err
		}
	}
	for _, existing := range parsed[emoji] {
		if existing == userID {
			return reactions, nil
		}
	}
	parsed[emoji] = append(parsed[emoji], userID)
	merged, err := json.Marshal(parsed)
	if err != nil {
		return "", err
	}
	return string(merged), nil
}
