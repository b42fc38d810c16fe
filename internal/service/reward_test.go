package service

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cipherbet/cipherbet/internal/domain"
)

func TestCalculateReward(t *testing.T) {
	tests := []struct {
		name             string
		betUnits         uint32
		choice           bool
		winner           domain.Winner
		winningSideUnits uint64
		totalPoolWei     *big.Int
		want             *big.Int
	}{
		{
			name:             "proportional share of the pool",
			betUnits:         500,
			choice:           true,
			winner:           domain.WinnerYes,
			winningSideUnits: 2000,
			totalPoolWei:     eth(3).Add(eth(3), milliEth(500)), // 3.5 ETH
			want:             milliEth(875),                     // 3.5 * 500/2000
		},
		{
			name:             "sole winner takes the whole pool",
			betUnits:         2000,
			choice:           true,
			winner:           domain.WinnerYes,
			winningSideUnits: 2000,
			totalPoolWei:     eth(7),
			want:             eth(7),
		},
		{
			name:             "no side bet takes nothing on a tie",
			betUnits:         1000,
			choice:           false,
			winner:           domain.WinnerNone,
			winningSideUnits: 0,
			totalPoolWei:     eth(2),
			want:             new(big.Int),
		},
		{
			name:             "losing side gets zero",
			betUnits:         1500,
			choice:           false,
			winner:           domain.WinnerYes,
			winningSideUnits: 2000,
			totalPoolWei:     eth(3),
			want:             new(big.Int),
		},
		{
			name:             "zero winning side units never divides",
			betUnits:         100,
			choice:           true,
			winner:           domain.WinnerYes,
			winningSideUnits: 0,
			totalPoolWei:     eth(1),
			want:             new(big.Int),
		},
		{
			name:             "nil pool",
			betUnits:         100,
			choice:           true,
			winner:           domain.WinnerYes,
			winningSideUnits: 100,
			totalPoolWei:     nil,
			want:             new(big.Int),
		},
		{
			name:             "fractional wei floors down",
			betUnits:         1,
			choice:           false,
			winner:           domain.WinnerNo,
			winningSideUnits: 3,
			totalPoolWei:     big.NewInt(100),
			want:             big.NewInt(33),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateReward(tt.betUnits, tt.choice, tt.winner, tt.winningSideUnits, tt.totalPoolWei)
			assert.Zero(t, tt.want.Cmp(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestCalculateRewardConservesPool(t *testing.T) {
	// However the winning side splits its units, the paid shares never
	// exceed the escrowed pool.
	pool := big.NewInt(1_000_000_000_000_000_001) // deliberately not divisible
	shares := []uint32{1, 2, 499, 1000, 1498}

	var winning uint64
	for _, s := range shares {
		winning += uint64(s)
	}

	paid := new(big.Int)
	for _, s := range shares {
		paid.Add(paid, CalculateReward(s, true, domain.WinnerYes, winning, pool))
	}
	assert.True(t, paid.Cmp(pool) <= 0, "paid %s exceeds pool %s", paid, pool)
}
