package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cipherbet/cipherbet/internal/domain"
)

// Watcher periodically scans for rounds whose betting window has closed and
// resolves them, so results become revealable without anyone clicking.
type Watcher struct {
	rounds     *RoundService
	locks      domain.LockManager // nil disables cross-instance locking
	interval   time.Duration
	resolveOwn bool // only resolve rounds this wallet created
	self       string
	logger     *slog.Logger
	now        func() time.Time
}

func NewWatcher(rounds *RoundService, locks domain.LockManager, interval time.Duration, resolveOwn bool, self string, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		rounds:     rounds,
		locks:      locks,
		interval:   interval,
		resolveOwn: resolveOwn,
		self:       self,
		logger:     logger.With(slog.String("component", "watcher")),
		now:        time.Now,
	}
}

// Run blocks until ctx is cancelled, ticking at the configured interval.
// One tick's failure never stops the loop.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "watcher started",
		slog.Duration("interval", w.interval),
		slog.Bool("resolve_own_only", w.resolveOwn),
	)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// First pass immediately rather than waiting a full interval.
	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "watcher stopped")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Watcher) tick(ctx context.Context) {
	rounds, err := w.rounds.ListRounds(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "round scan failed", slog.String("error", err.Error()))
		return
	}

	now := w.now()
	for _, round := range rounds {
		if round.StateAt(now) != domain.RoundEnded {
			continue
		}
		if w.resolveOwn && !strings.EqualFold(round.Creator, w.self) {
			continue
		}

		if err := w.resolveOne(ctx, round.ID); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.WarnContext(ctx, "auto-resolve failed",
				slog.Uint64("round_id", round.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
	}
}

func (w *Watcher) resolveOne(ctx context.Context, roundID uint64) error {
	// When several watcher instances share a deployment, only the lock
	// holder pays the resolve gas; the ledger keeps the rest harmless.
	if w.locks != nil {
		unlock, err := w.locks.Acquire(ctx, fmt.Sprintf("resolve:%d", roundID), w.interval)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				return nil
			}
			return err
		}
		defer unlock()
	}

	if err := w.rounds.Resolve(ctx, roundID); err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "round auto-resolved", slog.Uint64("round_id", roundID))
	return nil
}
