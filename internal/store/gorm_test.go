package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "messages.db"))
	require.NoError(t, err)
	return s
}

func TestCreateAndEdit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	parent := "parent-id"
	row, err := s.Create(ctx, NewMessage{
		ChannelID: "general",
		SenderID:  "alice",
		Content:   "hello",
		ParentID:  &parent,
		Attachment: &Attachment{
			Name: "report.pdf",
			URL:  "https://files.example/report.pdf",
			Type: "application/pdf",
			Size: 1024,
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, row.ID)
	assert.Equal(t, "general", row.ChannelID)
	require.NotNil(t, row.ParentID)
	assert.Equal(t, "parent-id", *row.ParentID)
	assert.Equal(t, "report.pdf", row.AttachmentName)
	assert.False(t, row.CreatedAt.IsZero())

	edited, err := s.Edit(ctx, row.ID, "hello again")
	require.NoError(t, err)
	assert.Equal(t, "hello again", edited.Content)
}

func TestPin(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	row, err := s.Create(ctx, NewMessage{ChannelID: "general", SenderID: "alice", Content: "pin me"})
	require.NoError(t, err)
	assert.False(t, row.IsPinned)

	pinned, err := s.Pin(ctx, row.ID)
	require.NoError(t, err)
	assert.True(t, pinned.IsPinned)
}

func TestAddReactionIdempotentPerUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	row, err := s.Create(ctx, NewMessage{ChannelID: "general", SenderID: "alice", Content: "react"})
	require.NoError(t, err)

	first, err := s.AddReaction(ctx, row.ID, "👍", "bob")
	require.NoError(t, err)
	assert.JSONEq(t, `{"👍":["bob"]}`, first.Reactions)

	repeat, err := s.AddReaction(ctx, row.ID, "👍", "bob")
	require.NoError(t, err)
	assert.JSONEq(t, `{"👍":["bob"]}`, repeat.Reactions, "same pair must not duplicate")

	second, err := s.AddReaction(ctx, row.ID, "👍", "carol")
	require.NoError(t, err)
	assert.JSONEq(t, `{"👍":["bob","carol"]}`, second.Reactions)
}

func TestDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	row, err := s.Create(ctx, NewMessage{ChannelID: "general", SenderID: "alice", Content: "gone"})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, row.ID))
	assert.ErrorIs(t, s.Delete(ctx, row.ID), ErrNotFound)
}

func TestOperationsOnMissingMessage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Edit(ctx, "ghost", "x")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Pin(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.AddReaction(ctx, "ghost", "👍", "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}
