package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodesOf(t *testing.T) {
	err := fmt.Errorf("%w: %w", ErrUnauthorized, ErrExpired)
	assert.Equal(t, []ErrorCode{CodeExpired, CodeUnauthorized}, CodesOf(err))

	assert.Equal(t, []ErrorCode{CodeInternal}, CodesOf(errors.New("boom")))
	assert.Nil(t, CodesOf(nil))
	assert.Equal(t, []ErrorCode{CodeFormat}, CodesOf(&FormatError{Field: "x", Reason: "y"}))
}

func TestRemoteError_Is(t *testing.T) {
	local := fmt.Errorf("relay: %w: %w", ErrUnauthorized, ErrInsufficientScope)
	re := NewRemoteError(local)

	assert.ErrorIs(t, re, ErrUnauthorized)
	assert.ErrorIs(t, re, ErrInsufficientScope)
	assert.NotErrorIs(t, re, ErrCalleeUnavailable)
	assert.Contains(t, re.Error(), "insufficient scope")

	wrapped := fmt.Errorf("call: %w", re)
	assert.Same(t, re, NewRemoteError(wrapped))
}

func TestErrorCode_String(t *testing.T) {
	assert.Equal(t, "callee unavailable", CodeCalleeUnavailable.String())
	assert.Equal(t, "code(999)", ErrorCode(999).String())
	assert.Nil(t, ErrorCode(999).Err())
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&RemoteError{Codes: []ErrorCode{CodeCalleeUnavailable}}))
	assert.True(t, Retryable(fmt.Errorf("x: %w", ErrTransportLost)))
	assert.False(t, Retryable(ErrBadSignature))
	assert.False(t, Retryable(NewRemoteError(fmt.Errorf("%w: %w", ErrUnauthorized, ErrExpired))))
}
