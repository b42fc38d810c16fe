package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherbet/cipherbet/internal/domain"
)

func TestClaimPaysWinner(t *testing.T) {
	h := newHarness(t)
	roundID := settle(t, h)
	ctx := context.Background()

	reward, err := h.claims.Claim(ctx, roundID)
	require.NoError(t, err)
	assert.Zero(t, milliEth(875).Cmp(reward))

	// The ledger recorded the payout for this wallet.
	paid, ok := h.state.Payouts[strings.ToLower(h.self())]
	require.True(t, ok)
	assert.Zero(t, milliEth(875).Cmp(paid))

	// The local record and the cached result both flip to claimed.
	stored, err := h.bets.Get(ctx, roundID, h.self())
	require.NoError(t, err)
	assert.True(t, stored.Claimed)

	result, err := h.reveal.Reveal(ctx, roundID)
	require.NoError(t, err)
	assert.True(t, result.Claimed)
}

func TestClaimTwiceFailsSecondTime(t *testing.T) {
	h := newHarness(t)
	roundID := settle(t, h)
	ctx := context.Background()

	_, err := h.claims.Claim(ctx, roundID)
	require.NoError(t, err)

	_, err = h.claims.Claim(ctx, roundID)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	// Only one payout happened.
	assert.Len(t, h.state.Payouts, 1)
}

func TestClaimDetectsExternalSettlement(t *testing.T) {
	h := newHarness(t)
	roundID := settle(t, h)
	ctx := context.Background()

	// Prime the result cache, then settle through a second process sharing
	// the same wallet.
	_, err := h.reveal.Reveal(ctx, roundID)
	require.NoError(t, err)

	other := newMemBetStore()
	require.NoError(t, other.Upsert(ctx, domain.BetRecord{
		RoundID: roundID, Participant: h.self(), AmountUnits: 500, Choice: true,
		AmountWei: milliEth(500), CreatedAt: h.clock.Now(),
	}))
	reveal := NewRevealService(
		h.state.Ledger(h.self()), h.state.Backend(), h.signer, other, NewResultCache(), nil, testContract, 10, testLogger(),
	).WithClock(h.clock.Now)
	claims := NewClaimService(h.state.Ledger(h.self()), reveal, other, nil, testLogger())
	_, err = claims.Claim(ctx, roundID)
	require.NoError(t, err)

	// The stale cache does not permit a double payout.
	_, err = h.claims.Claim(ctx, roundID)
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
	assert.Len(t, h.state.Payouts, 1)
}

func TestClaimAfterPeekOnFlippedRound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "flipped", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = h.rounds.PlaceBet(ctx, round.ID, 100, true, milliEth(100))
	require.NoError(t, err)

	// Peek while YES is the only side on the board.
	snapshot, err := h.reveal.Reveal(ctx, round.ID)
	require.NoError(t, err)
	require.Equal(t, domain.WinnerYes, snapshot.Winner)

	// NO overtakes before the round resolves; the claim must settle on the
	// final outcome, not the earlier snapshot.
	h.betAs(t, otherAddrA, round.ID, 500, false, milliEth(500))
	h.clock.Advance(2 * time.Hour)
	require.NoError(t, h.rounds.Resolve(ctx, round.ID))

	_, err = h.claims.Claim(ctx, round.ID)
	assert.ErrorIs(t, err, domain.ErrNotAWinner)
	assert.Empty(t, h.state.Payouts)
}

func TestClaimLosingSide(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "r", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = h.rounds.PlaceBet(ctx, round.ID, 500, false, milliEth(500))
	require.NoError(t, err)
	h.betAs(t, otherAddrA, round.ID, 2000, true, eth(2))

	h.clock.Advance(2 * time.Hour)
	require.NoError(t, h.rounds.Resolve(ctx, round.ID))

	_, err = h.claims.Claim(ctx, round.ID)
	assert.ErrorIs(t, err, domain.ErrNotAWinner)
	assert.Empty(t, h.state.Payouts)
}

func TestClaimUnresolvedRound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "r", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = h.rounds.PlaceBet(ctx, round.ID, 500, true, milliEth(500))
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour)

	// Ended but never resolved: the reveal works, the claim must not.
	_, err = h.claims.Claim(ctx, round.ID)
	assert.ErrorIs(t, err, domain.ErrRoundNotResolved)
}

func TestClaimWithoutLocalBet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "r", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	h.betAs(t, otherAddrA, round.ID, 1000, true, eth(1))

	h.clock.Advance(2 * time.Hour)
	require.NoError(t, h.rounds.Resolve(ctx, round.ID))

	_, err = h.claims.Claim(ctx, round.ID)
	assert.ErrorIs(t, err, domain.ErrNoLocalBet)
}

func TestClaimOnTie(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "r", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = h.rounds.PlaceBet(ctx, round.ID, 1000, true, eth(1))
	require.NoError(t, err)
	h.betAs(t, otherAddrA, round.ID, 1000, false, eth(1))

	h.clock.Advance(2 * time.Hour)
	require.NoError(t, h.rounds.Resolve(ctx, round.ID))

	_, err = h.claims.Claim(ctx, round.ID)
	assert.ErrorIs(t, err, domain.ErrNotAWinner)
	assert.Empty(t, h.state.Payouts)
}
