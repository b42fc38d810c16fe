package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherbet/cipherbet/internal/domain"
)

func TestCreateRoundRejectsPastEndTime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.rounds.CreateRound(ctx, "expired", h.clock.Now().Add(-time.Minute))
	assert.ErrorIs(t, err, domain.ErrEndTimeInPast)

	_, err = h.rounds.CreateRound(ctx, "right now", h.clock.Now())
	assert.ErrorIs(t, err, domain.ErrEndTimeInPast)

	// Nothing reached the ledger.
	count, err := h.state.Ledger(h.self()).RoundCounter(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateRoundReadsBackProjection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	end := h.clock.Now().Add(time.Hour)
	round, err := h.rounds.CreateRound(ctx, "world cup final", end)
	require.NoError(t, err)

	assert.Equal(t, uint64(0), round.ID)
	assert.Equal(t, "world cup final", round.Name)
	assert.Equal(t, end.Unix(), round.EndTime.Unix())
	assert.False(t, round.Resolved)
	assert.Equal(t, domain.RoundOpen, round.StateAt(h.clock.Now()))
}

func TestPlaceBetRecordsPosition(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "r", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	record, err := h.rounds.PlaceBet(ctx, round.ID, 500, true, milliEth(500))
	require.NoError(t, err)
	assert.Equal(t, uint32(500), record.AmountUnits)
	assert.True(t, record.Choice)
	assert.NotEmpty(t, record.TxHash)

	// The local store mirrors the position for later reward computation.
	stored, err := h.bets.Get(ctx, round.ID, h.self())
	require.NoError(t, err)
	assert.Equal(t, uint32(500), stored.AmountUnits)

	// The escrowed pool is visible on the projection.
	got, err := h.rounds.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.ParticipantCount)
	require.NotNil(t, got.TotalPoolWei)
	assert.Zero(t, milliEth(500).Cmp(got.TotalPoolWei))
}

func TestPlaceBetAccumulatesRepeatBets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "r", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = h.rounds.PlaceBet(ctx, round.ID, 300, true, milliEth(300))
	require.NoError(t, err)
	_, err = h.rounds.PlaceBet(ctx, round.ID, 200, true, milliEth(200))
	require.NoError(t, err)

	stored, err := h.bets.Get(ctx, round.ID, h.self())
	require.NoError(t, err)
	assert.Equal(t, uint32(500), stored.AmountUnits)
	assert.Zero(t, milliEth(500).Cmp(stored.AmountWei))

	got, err := h.rounds.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.ParticipantCount, "same wallet is one participant")
}

func TestPlaceBetAfterEndFailsBeforeEncrypting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "r", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	h.clock.Advance(2 * time.Hour)

	_, err = h.rounds.PlaceBet(ctx, round.ID, 100, true, milliEth(100))
	assert.ErrorIs(t, err, domain.ErrRoundEnded)
	assert.Zero(t, h.state.EncryptCalls, "late bet must not reach the encryption backend")
}

func TestPlaceBetRejectsNonPositiveEscrow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "r", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = h.rounds.PlaceBet(ctx, round.ID, 100, true, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidPlaintext)

	_, err = h.rounds.PlaceBet(ctx, round.ID, 0, true, milliEth(100))
	assert.ErrorIs(t, err, domain.ErrInvalidPlaintext)
}

func TestResolveLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "r", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	// Too early.
	err = h.rounds.Resolve(ctx, round.ID)
	assert.ErrorIs(t, err, domain.ErrRoundStillOpen)

	h.clock.Advance(2 * time.Hour)

	require.NoError(t, h.rounds.Resolve(ctx, round.ID))

	got, err := h.rounds.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.True(t, got.Resolved)

	// Resolving again is a benign no-op.
	assert.NoError(t, h.rounds.Resolve(ctx, round.ID))
}

func TestResolveUnknownRound(t *testing.T) {
	h := newHarness(t)

	err := h.rounds.Resolve(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrRoundNotFound)
}

func TestListRoundsNewestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		_, err := h.rounds.CreateRound(ctx, name, h.clock.Now().Add(time.Hour))
		require.NoError(t, err)
	}

	rounds, err := h.rounds.ListRounds(ctx)
	require.NoError(t, err)
	require.Len(t, rounds, 3)
	assert.Equal(t, "third", rounds[0].Name)
	assert.Equal(t, "first", rounds[2].Name)
}

func TestListRoundsEmptyLedger(t *testing.T) {
	h := newHarness(t)

	rounds, err := h.rounds.ListRounds(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rounds)
}

func TestMyBets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.rounds.CreateRound(ctx, "a", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	second, err := h.rounds.CreateRound(ctx, "b", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = h.rounds.PlaceBet(ctx, first.ID, 100, true, milliEth(100))
	require.NoError(t, err)
	_, err = h.rounds.PlaceBet(ctx, second.ID, 200, false, milliEth(200))
	require.NoError(t, err)

	bets, err := h.rounds.MyBets(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, bets, 2)
}
