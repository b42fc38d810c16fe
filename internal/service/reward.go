package service

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/cipherbet/cipherbet/internal/domain"
)

// CalculateReward computes the proportional payout for a revealed bet:
//
//	reward = betUnits / winningSideUnits * totalPoolWei
//
// floored to an integral number of wei. A tie, a bet on the losing side, or
// a zero winning side all pay zero. The returned value is never nil.
func CalculateReward(betUnits uint32, choice bool, winner domain.Winner, winningSideUnits uint64, totalPoolWei *big.Int) *big.Int {
	if winner == domain.WinnerNone || winningSideUnits == 0 {
		return new(big.Int)
	}
	if domain.Side(choice) != winner {
		return new(big.Int)
	}
	if totalPoolWei == nil || totalPoolWei.Sign() <= 0 || betUnits == 0 {
		return new(big.Int)
	}

	// Multiply before dividing so precision is only spent on the final
	// fractional wei, which the floor discards.
	pool := decimal.NewFromBigInt(totalPoolWei, 0)
	reward := pool.Mul(decimal.NewFromInt(int64(betUnits))).
		Div(decimal.NewFromUint64(winningSideUnits)).
		Floor()
	return reward.BigInt()
}
