package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsStateConflict(t *testing.T) {
	for _, err := range []error{
		ErrRoundNotFound, ErrRoundEnded, ErrRoundResolved, ErrRoundStillOpen,
		ErrRoundNotResolved, ErrAlreadyClaimed, ErrNotAWinner,
	} {
		assert.True(t, IsStateConflict(err), "%v", err)
		assert.True(t, IsStateConflict(fmt.Errorf("wrapped: %w", err)), "wrapped %v", err)
	}

	assert.False(t, IsStateConflict(ErrLedgerUnavailable))
	assert.False(t, IsStateConflict(errors.New("anything else")))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrLedgerUnavailable))
	assert.True(t, IsRetryable(ErrBackendUnreachable))
	assert.True(t, IsRetryable(ErrAuthorizationDenied))
	assert.False(t, IsRetryable(ErrAlreadyClaimed))
}

func TestFriendlyNeverEmpty(t *testing.T) {
	for _, err := range []error{
		ErrLedgerUnavailable, ErrAlreadyClaimed, ErrNotAWinner,
		errors.New("unexpected"), nil,
	} {
		assert.NotPanics(t, func() { _ = Friendly(err) })
	}
}
