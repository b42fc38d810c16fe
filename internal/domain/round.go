// Package domain defines the core types shared across the cipherbet
// application: rounds, bets, decrypted results, store and cache interfaces,
// and the error taxonomy.
package domain

import (
	"math/big"
	"strings"
	"time"
)

// UnitScale is the number of abstract bet units per one native token.
// Aggregates are accumulated in units inside the encrypted domain; the
// escrowed pool is tracked in wei by the ledger.
const UnitScale = 1000

// RoundState is the derived lifecycle state of a round. It is a pure
// function of (resolved flag, current time, end time) and is never stored,
// which avoids clock-skew disagreements between client and ledger.
type RoundState string

const (
	RoundOpen     RoundState = "open"
	RoundEnded    RoundState = "ended"
	RoundResolved RoundState = "resolved"
)

// ZeroHandle is the sentinel ciphertext handle for an aggregate that has
// never been written. Decrypting it always yields 0 without touching the
// decryption backend.
const ZeroHandle = "0x0000000000000000000000000000000000000000000000000000000000000000"

// IsZeroHandle reports whether h denotes the empty/uninitialized ciphertext.
func IsZeroHandle(h string) bool {
	switch h {
	case "", "0", "0x", "0x0", ZeroHandle:
		return true
	}
	trimmed := strings.TrimPrefix(h, "0x")
	for _, c := range trimmed {
		if c != '0' {
			return false
		}
	}
	return trimmed != ""
}

// Round is the client-side projection of a betting round as stored by the
// ledger. Aggregate amounts stay encrypted until the round is resolved.
type Round struct {
	ID               uint64    `json:"id"`
	Creator          string    `json:"creator"`
	Name             string    `json:"name"`
	EndTime          time.Time `json:"end_time"`
	Resolved         bool      `json:"resolved"`
	ParticipantCount uint32    `json:"participant_count"`

	// TotalPoolWei is the sum of escrowed native value, read directly from
	// the ledger. Nil when not yet populated.
	TotalPoolWei *big.Int `json:"total_pool_wei,omitempty"`
}

// StateAt derives the round's lifecycle state at the given instant.
func (r Round) StateAt(now time.Time) RoundState {
	if r.Resolved {
		return RoundResolved
	}
	if !now.Before(r.EndTime) {
		return RoundEnded
	}
	return RoundOpen
}

// AcceptsBets reports whether a bet placed at now would be accepted.
func (r Round) AcceptsBets(now time.Time) bool {
	return r.StateAt(now) == RoundOpen
}

// AggregateHandles carries the three ciphertext handles of a round's
// encrypted aggregates. Each is either a 32-byte hex handle or the zero
// sentinel.
type AggregateHandles struct {
	Yes   string `json:"yes"`
	No    string `json:"no"`
	Total string `json:"total"`
}
