package domain

import (
	"math/big"
	"time"
)

// BetRecord is the locally persisted record of one participant's bet in a
// round. The ledger never exposes an individual bet's units or choice after
// submission (only the encrypted aggregates are queryable), so this record
// is the only way the client can later compute its own reward. It is a
// best-effort projection: the ledger remains authoritative for escrowed
// value and the claimed flag.
type BetRecord struct {
	RoundID     uint64    `json:"round_id"`
	Participant string    `json:"participant"`
	AmountUnits uint32    `json:"amount_units"`
	Choice      bool      `json:"choice"` // true = YES, false = NO
	AmountWei   *big.Int  `json:"amount_wei"`
	TxHash      string    `json:"tx_hash"`
	Claimed     bool      `json:"claimed"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserBet is the ledger's per-participant view: escrowed value and payout
// state. The ledger's HasClaimed flag is the source of truth for payout
// state.
type UserBet struct {
	AmountWei  *big.Int
	HasClaimed bool
}
