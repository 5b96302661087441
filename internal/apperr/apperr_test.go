package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeConfig, CodeOf(New(ErrCodeConfig, "bad config")))
	assert.Equal(t, ErrCodeNotFound, CodeOf(NotFound("hazard", "h1")))
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("plain")))

	// Codes survive wrapping by callers.
	wrapped := fmt.Errorf("outer: %w", Newf(ErrCodeConflict, "taken"))
	assert.Equal(t, ErrCodeConflict, CodeOf(wrapped))
}

func TestIs(t *testing.T) {
	err := Newf(ErrCodeUnauthorized, "user %s denied", "u1")
	assert.True(t, Is(err, ErrCodeUnauthorized))
	assert.False(t, Is(err, ErrCodeNotFound))
	assert.False(t, Is(nil, ErrCodeUnauthorized))
	assert.False(t, Is(errors.New("plain"), ErrCodeUnauthorized))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrCodeInternal, "load hazard")

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "load hazard")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestInvalidInput(t *testing.T) {
	err := InvalidInput("deadline", "must be in the future")
	assert.Equal(t, ErrCodeInvalidInput, CodeOf(err))
	assert.Contains(t, err.Error(), "deadline")
}
