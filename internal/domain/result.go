package domain

import "math/big"

// Winner identifies the winning side of a resolved round.
type Winner string

const (
	WinnerYes  Winner = "yes"
	WinnerNo   Winner = "no"
	WinnerNone Winner = "none" // tie: no side is owed anything
)

// WinnerOf returns the winning side given the decrypted aggregate units.
// A strict majority wins; equal totals produce no winner.
func WinnerOf(yesUnits, noUnits uint64) Winner {
	switch {
	case yesUnits > noUnits:
		return WinnerYes
	case noUnits > yesUnits:
		return WinnerNo
	default:
		return WinnerNone
	}
}

// Side returns the Winner value for a raw choice boolean.
func Side(choice bool) Winner {
	if choice {
		return WinnerYes
	}
	return WinnerNo
}

// RoundResult is a decrypted round outcome together with the querying
// participant's position. Produced by the reveal protocol; resolved results
// are memoized by the result cache for the process lifetime and updated in
// place when a claim succeeds. A result taken while the round is still open
// is a live snapshot and is never memoized.
type RoundResult struct {
	RoundID    uint64   `json:"round_id"`
	Resolved   bool     `json:"resolved"` // false for a mid-round snapshot
	YesUnits   uint64   `json:"yes_units"`
	NoUnits    uint64   `json:"no_units"`
	TotalUnits uint64   `json:"total_units"`
	Winner     Winner   `json:"winner"`
	TotalPool  *big.Int `json:"total_pool_wei"`

	// Viewer-specific fields; zero values when the viewer did not
	// participate or no local bet record exists.
	Participant string   `json:"participant,omitempty"`
	BetUnits    uint32   `json:"bet_units,omitempty"`
	Choice      bool     `json:"choice,omitempty"`
	Won         bool     `json:"won"`
	RewardWei   *big.Int `json:"reward_wei,omitempty"`
	Claimed     bool     `json:"claimed"`
}

// WinningSideUnits returns the decrypted unit total of the winning side,
// or 0 when the round has no winner.
func (r RoundResult) WinningSideUnits() uint64 {
	switch r.Winner {
	case WinnerYes:
		return r.YesUnits
	case WinnerNo:
		return r.NoUnits
	default:
		return 0
	}
}
