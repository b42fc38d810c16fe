package domain

import (
	"context"
	"math/big"
)

// Ledger is the contract surface of the on-chain EncryptedBet program.
// Every call is a network round trip; state-changing operations return only
// after the transaction is confirmed. Failures are signaled with the typed
// sentinel errors from this package.
type Ledger interface {
	// CreateRound allocates a new round and returns its id.
	CreateRound(ctx context.Context, name string, endTime int64) (uint64, error)

	// PlaceBet escrows valueWei and homomorphically accumulates the
	// encrypted amount into the round's aggregates. Returns the tx hash.
	PlaceBet(ctx context.Context, roundID uint64, choiceHandle, amountHandle string, proof []byte, valueWei *big.Int) (string, error)

	// ResolveRound flips the resolved flag and makes the three aggregate
	// handles publicly decryptable.
	ResolveRound(ctx context.Context, roundID uint64) error

	// AuthorizeParticipant grants participant decrypt permission on the
	// round's current aggregates. Idempotent.
	AuthorizeParticipant(ctx context.Context, roundID uint64, participant string) error

	// ClaimReward pays out the asserted reward and sets hasClaimed.
	ClaimReward(ctx context.Context, roundID uint64, rewardWei *big.Int, betUnits uint32, choice bool, winningSide bool, winningSideUnits uint64) error

	// GetRoundInfo returns the round projection (without pool).
	GetRoundInfo(ctx context.Context, roundID uint64) (Round, error)

	// Aggregate handle reads; each returns ZeroHandle before any bet.
	GetYesAmount(ctx context.Context, roundID uint64) (string, error)
	GetNoAmount(ctx context.Context, roundID uint64) (string, error)
	GetTotalAmount(ctx context.Context, roundID uint64) (string, error)

	// HasParticipated reports whether address placed at least one bet.
	HasParticipated(ctx context.Context, roundID uint64, address string) (bool, error)

	// GetUserBet returns the escrowed value and claimed flag for address.
	GetUserBet(ctx context.Context, roundID uint64, address string) (UserBet, error)

	// GetRoundTotalPool returns the round's escrowed native total in wei.
	GetRoundTotalPool(ctx context.Context, roundID uint64) (*big.Int, error)

	// RoundCounter returns the total number of rounds ever created.
	RoundCounter(ctx context.Context) (uint64, error)
}
