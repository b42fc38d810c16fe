package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cipherbet/cipherbet/internal/domain"
)

// EventHistory reads the durable event stream behind a pub/sub channel.
type EventHistory interface {
	History(ctx context.Context, channel string, count int) ([]domain.StreamMessage, error)
}

// EventsHandler serves buffered round lifecycle events so clients can
// backfill what they missed before their WebSocket connected.
type EventsHandler struct {
	history EventHistory
}

// NewEventsHandler creates an EventsHandler over the given history source.
func NewEventsHandler(history EventHistory) *EventsHandler {
	return &EventsHandler{history: history}
}

// ListEvents returns buffered events for a channel, oldest first.
// GET /api/events?channel=rounds&limit=100
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	channel := r.URL.Query().Get("channel")
	switch channel {
	case "":
		channel = domain.ChannelRounds
	case domain.ChannelRounds, domain.ChannelResults:
	default:
		writeError(w, http.StatusBadRequest, "unknown channel")
		return
	}

	messages, err := h.history.History(r.Context(), channel, parseLimit(r))
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "event history unavailable")
		return
	}

	events := make([]json.RawMessage, 0, len(messages))
	for _, msg := range messages {
		events = append(events, json.RawMessage(msg.Payload))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel": channel,
		"events":  events,
	})
}
