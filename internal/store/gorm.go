package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormStore implements MessageStore on a sqlite database through GORM.
type GormStore struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite database at path and migrates the
// message table. Use "file::memory:?cache=shared" for tests.
func Open(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}
	if err := db.AutoMigrate(&ChatMessage{}); err != nil {
		return nil, fmt.Errorf("migrate messages: %w", err)
	}
	return &GormStore{db: db}, nil
}

// Create persists a new message and returns the stored row.
func (s *GormStore) Create(ctx context.Context, msg NewMessage) (*ChatMessage, error) {
	row := &ChatMessage{
		ID:        uuid.NewString(),
		ChannelID: msg.ChannelID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		ParentID:  msg.ParentID,
	}
	if msg.Attachment != nil {
		row.AttachmentName = msg.Attachment.Name
		row.AttachmentURL = msg.Attachment.URL
		row.AttachmentType = msg.Attachment.Type
		row.AttachmentSize = msg.Attachment.Size
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return row, nil
}

func (s *GormStore) find(ctx context.Context, id string) (*ChatMessage, error) {
	var row ChatMessage
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message %s: %w", id, err)
	}
	return &row, nil
}

// Edit replaces the content of an existing message.
func (s *GormStore) Edit(ctx context.Context, id, content string) (*ChatMessage, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	row.Content = content
	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return nil, fmt.Errorf("edit message %s: %w", id, err)
	}
	return row, nil
}

// Pin marks an existing message as pinned.
func (s *GormStore) Pin(ctx context.Context, id string) (*ChatMessage, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	row.IsPinned = true
	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return nil, fmt.Errorf("pin message %s: %w", id, err)
	}
	return row, nil
}

// AddReaction records an emoji reaction by a user. Repeating the same
// (emoji, user) pair leaves the row unchanged.
func (s *GormStore) AddReaction(ctx context.Context, id, emoji, userID string) (*ChatMessage, error) {
	row, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	merged, err := addReaction(row.Reactions, emoji, userID)
	if err != nil {
		return nil, fmt.Errorf("merge reactions for %s: %w", id, err)
	}
	row.Reactions = merged
	if err := s.db.WithContext(ctx).Save(row).Error; err != nil {
		return nil, fmt.Errorf("save reactions for %s: %w", id, err)
	}
	return row, nil
}

// Delete removes an existing message.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Delete(&ChatMessage{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("delete message %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
