package realtime

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loftwork/loft-realtime/internal/store"
)

func TestOpErrorWrapsCause(t *testing.T) {
	opErr := newOpError(CodeNotFound, "edit-chat: message not found", store.ErrNotFound)

	assert.ErrorIs(t, opErr, store.ErrNotFound, "the cause must stay reachable through Unwrap")
	assert.ErrorIs(t, opErr, &OpError{Code: CodeNotFound}, "errors with the same code must match")
	assert.NotErrorIs(t, opErr, &OpError{Code: CodePersistFailed})
	assert.Contains(t, opErr.Error(), "not_found")
}

func TestOpErrorWithoutCause(t *testing.T) {
	opErr := newOpError(CodePersistFailed, "send-chat failed", nil)

	assert.Nil(t, errors.Unwrap(opErr))
	assert.Equal(t, "persist_failed: send-chat failed", opErr.Error())
}
