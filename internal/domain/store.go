package domain

import "context"

// BetStore persists the client's own bet records per (round, participant).
// Absence of a record means the participant's reward cannot be computed
// locally, even if the ledger confirms participation: the choice is not
// separately retrievable from the ledger after submission.
type BetStore interface {
	// Upsert inserts or accumulates a bet record. A second bet by the same
	// participant into the same round adds its units and wei to the stored
	// record, mirroring the ledger's homomorphic accumulation.
	Upsert(ctx context.Context, bet BetRecord) error

	// Get returns the record for (roundID, participant), or ErrNotFound.
	Get(ctx context.Context, roundID uint64, participant string) (BetRecord, error)

	// MarkClaimed flips the claimed flag after a successful claim tx.
	MarkClaimed(ctx context.Context, roundID uint64, participant string) error

	// ListByParticipant returns all records for one address, newest first.
	ListByParticipant(ctx context.Context, participant string, limit int) ([]BetRecord, error)
}
