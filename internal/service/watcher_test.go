package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherbet/cipherbet/internal/domain"
)

func TestWatcherResolvesEndedRounds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ended, err := h.rounds.CreateRound(ctx, "ended", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	open, err := h.rounds.CreateRound(ctx, "still open", h.clock.Now().Add(48*time.Hour))
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour)

	w := NewWatcher(h.rounds, nil, time.Minute, false, h.self(), testLogger())
	w.now = h.clock.Now
	w.tick(ctx)

	got, err := h.rounds.GetRound(ctx, ended.ID)
	require.NoError(t, err)
	assert.True(t, got.Resolved)

	got, err = h.rounds.GetRound(ctx, open.ID)
	require.NoError(t, err)
	assert.False(t, got.Resolved, "open round must be left alone")
}

func TestWatcherResolveOwnOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	mine, err := h.rounds.CreateRound(ctx, "mine", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	theirs, err := h.state.Ledger(otherAddrA).CreateRound(ctx, "theirs", h.clock.Now().Add(time.Hour).Unix())
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour)

	w := NewWatcher(h.rounds, nil, time.Minute, true, h.self(), testLogger())
	w.now = h.clock.Now
	w.tick(ctx)

	got, err := h.rounds.GetRound(ctx, mine.ID)
	require.NoError(t, err)
	assert.True(t, got.Resolved)

	got, err = h.rounds.GetRound(ctx, theirs)
	require.NoError(t, err)
	assert.False(t, got.Resolved, "foreign rounds are skipped in resolve-own mode")
}

// heldLock always reports the lock as taken elsewhere.
type heldLock struct{}

func (heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

func TestWatcherSkipsLockedRounds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "contested", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	h.clock.Advance(2 * time.Hour)

	w := NewWatcher(h.rounds, heldLock{}, time.Minute, false, h.self(), testLogger())
	w.now = h.clock.Now
	w.tick(ctx)

	got, err := h.rounds.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.False(t, got.Resolved, "another instance holds the resolve lock")
}

// memLock is a process-local domain.LockManager for exercising the
// single-resolver path without redis.
type memLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLock) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

func TestWatcherResolvesWithLockManager(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "locked ok", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	h.clock.Advance(2 * time.Hour)

	locks := &memLock{}
	w := NewWatcher(h.rounds, locks, time.Minute, false, h.self(), testLogger())
	w.now = h.clock.Now
	w.tick(ctx)

	got, err := h.rounds.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.True(t, got.Resolved)
	assert.Empty(t, locks.held, "lock must be released after resolving")
}
