package domain

import (
	"context"
	"time"
)

// RoundCache provides fast round projection lookups. Entries expire on
// their own; Invalidate forces a refresh after a state-changing tx.
type RoundCache interface {
	Set(ctx context.Context, round Round) error
	Get(ctx context.Context, id uint64) (Round, error)
	Invalidate(ctx context.Context, id uint64) error
}

// SignalBus provides pub/sub fan-out for round lifecycle events, consumed
// by the WebSocket hub and any number of watchers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager provides distributed locks so that only one process runs a
// given side-effecting task, such as auto-resolving a round.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned unlock
	// function is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter bounds request rates per key.
type RateLimiter interface {
	// Allow reports whether a request for key fits the sliding window; an
	// allowed request is counted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
