package domain

import "time"

// StreamMessage is one durable bus entry: the stream-assigned id plus the
// raw event payload.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// Signal bus channels for round lifecycle events.
const (
	ChannelRounds  = "rounds"  // created / resolved
	ChannelResults = "results" // revealed / claimed
)

// RoundEventType enumerates the published round lifecycle events.
type RoundEventType string

const (
	EventRoundCreated  RoundEventType = "round_created"
	EventRoundResolved RoundEventType = "round_resolved"
	EventBetPlaced     RoundEventType = "bet_placed"
	EventResultReveal  RoundEventType = "result_revealed"
	EventRewardClaimed RoundEventType = "reward_claimed"
)

// RoundEvent is the JSON payload published on the signal bus.
type RoundEvent struct {
	ID      string         `json:"id"` // uuid, for dedup on the consumer side
	Type    RoundEventType `json:"type"`
	RoundID uint64         `json:"round_id"`
	At      time.Time      `json:"at"`

	// Optional detail fields, populated per event type.
	Name        string `json:"name,omitempty"`
	Participant string `json:"participant,omitempty"`
	Winner      Winner `json:"winner,omitempty"`
	YesUnits    uint64 `json:"yes_units,omitempty"`
	NoUnits     uint64 `json:"no_units,omitempty"`
}
