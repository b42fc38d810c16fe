package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/cipherbet/cipherbet/internal/domain"
)

// RoundEvents consumes round lifecycle events from the signal bus and
// forwards the interesting ones to the notifier. Runs until ctx is
// cancelled.
type RoundEvents struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewRoundEvents creates a bus-to-notifier bridge.
func NewRoundEvents(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *RoundEvents {
	return &RoundEvents{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "round_events")),
	}
}

// Run subscribes to both round channels and dispatches notifications for
// each event. Malformed payloads are skipped.
func (re *RoundEvents) Run(ctx context.Context) error {
	rounds, err := re.bus.Subscribe(ctx, domain.ChannelRounds)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.ChannelRounds, err)
	}
	results, err := re.bus.Subscribe(ctx, domain.ChannelResults)
	if err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", domain.ChannelResults, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-rounds:
			if !ok {
				return nil
			}
			re.handle(ctx, payload)
		case payload, ok := <-results:
			if !ok {
				return nil
			}
			re.handle(ctx, payload)
		}
	}
}

func (re *RoundEvents) handle(ctx context.Context, payload []byte) {
	var event domain.RoundEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		re.logger.WarnContext(ctx, "malformed event payload",
			slog.String("error", err.Error()),
		)
		return
	}

	title, message := render(event)
	if title == "" {
		return
	}
	if err := re.notifier.Notify(ctx, string(event.Type), title, message); err != nil {
		re.logger.WarnContext(ctx, "notification failed",
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// render maps an event to a notification title and body. Unknown types
// render empty and are dropped.
func render(event domain.RoundEvent) (title, message string) {
	switch event.Type {
	case domain.EventRoundCreated:
		return "Round created",
			fmt.Sprintf("Round #%d %q is open for bets.", event.RoundID, event.Name)
	case domain.EventRoundResolved:
		return "Round resolved",
			fmt.Sprintf("Round #%d has been resolved; results can now be revealed.", event.RoundID)
	case domain.EventResultReveal:
		winner := event.Winner
		if winner == "" {
			winner = domain.WinnerNone
		}
		return "Result revealed",
			fmt.Sprintf("Round #%d: YES %d vs NO %d, winner: %s.", event.RoundID, event.YesUnits, event.NoUnits, winner)
	case domain.EventRewardClaimed:
		return "Reward claimed",
			fmt.Sprintf("Round #%d: reward claimed by %s.", event.RoundID, event.Participant)
	default:
		return "", ""
	}
}
