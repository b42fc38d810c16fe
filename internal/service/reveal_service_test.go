package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cipherbet/cipherbet/internal/crypto"
	"github.com/cipherbet/cipherbet/internal/domain"
	"github.com/cipherbet/cipherbet/internal/platform/relayer"
)

// settle creates a round, lets this wallet and two other wallets bet, moves
// the clock past the end time, and resolves. Aggregates: 2000 YES units
// (500 ours), 1500 NO units, 3.5 ETH escrowed.
func settle(t *testing.T, h *harness) uint64 {
	t.Helper()
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "settled", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = h.rounds.PlaceBet(ctx, round.ID, 500, true, milliEth(500))
	require.NoError(t, err)
	h.betAs(t, otherAddrA, round.ID, 1500, true, milliEth(1500))
	h.betAs(t, otherAddrB, round.ID, 1500, false, milliEth(1500))

	h.clock.Advance(2 * time.Hour)
	require.NoError(t, h.rounds.Resolve(ctx, round.ID))
	return round.ID
}

func TestRevealDecryptsAggregates(t *testing.T) {
	h := newHarness(t)
	roundID := settle(t, h)

	result, err := h.reveal.Reveal(context.Background(), roundID)
	require.NoError(t, err)

	assert.Equal(t, uint64(2000), result.YesUnits)
	assert.Equal(t, uint64(1500), result.NoUnits)
	assert.Equal(t, uint64(3500), result.TotalUnits)
	assert.Equal(t, domain.WinnerYes, result.Winner)
	require.NotNil(t, result.TotalPool)
	assert.Zero(t, milliEth(3500).Cmp(result.TotalPool))
}

func TestRevealPersonalOutcome(t *testing.T) {
	h := newHarness(t)
	roundID := settle(t, h)

	result, err := h.reveal.Reveal(context.Background(), roundID)
	require.NoError(t, err)

	assert.Equal(t, h.self(), result.Participant)
	assert.Equal(t, uint32(500), result.BetUnits)
	assert.True(t, result.Choice)
	assert.True(t, result.Won)
	assert.False(t, result.Claimed)

	// 3.5 ETH * 500/2000 = 0.875 ETH.
	require.NotNil(t, result.RewardWei)
	assert.Zero(t, milliEth(875).Cmp(result.RewardWei))
}

func TestRevealEmptyRoundSkipsBackend(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "nobody came", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	h.clock.Advance(2 * time.Hour)
	require.NoError(t, h.rounds.Resolve(ctx, round.ID))

	result, err := h.reveal.Reveal(ctx, round.ID)
	require.NoError(t, err)

	assert.Zero(t, result.YesUnits)
	assert.Zero(t, result.NoUnits)
	assert.Zero(t, result.TotalUnits)
	assert.Equal(t, domain.WinnerNone, result.Winner)
	assert.Zero(t, h.state.DecryptCalls, "zero handles must decode locally")
}

func TestRevealTie(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "dead heat", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = h.rounds.PlaceBet(ctx, round.ID, 1000, true, eth(1))
	require.NoError(t, err)
	h.betAs(t, otherAddrA, round.ID, 1000, false, eth(1))

	h.clock.Advance(2 * time.Hour)
	require.NoError(t, h.rounds.Resolve(ctx, round.ID))

	result, err := h.reveal.Reveal(ctx, round.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.WinnerNone, result.Winner)
	assert.False(t, result.Won)
	assert.Zero(t, result.WinningSideUnits())
}

func TestRevealCachesResult(t *testing.T) {
	h := newHarness(t)
	roundID := settle(t, h)
	ctx := context.Background()

	_, err := h.reveal.Reveal(ctx, roundID)
	require.NoError(t, err)
	assert.Equal(t, 3, h.state.DecryptCalls, "one decrypt per aggregate handle")

	_, err = h.reveal.Reveal(ctx, roundID)
	require.NoError(t, err)
	assert.Equal(t, 3, h.state.DecryptCalls, "second reveal must be served from cache")
}

func TestRevealConcurrentCallersShareOneRun(t *testing.T) {
	h := newHarness(t)
	roundID := settle(t, h)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := h.reveal.Reveal(context.Background(), roundID)
			assert.NoError(t, err)
			assert.Equal(t, domain.WinnerYes, result.Winner)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, h.state.DecryptCalls, "concurrent reveals must share a single protocol run")
}

// flakyBackend fails the first N decrypt requests, then delegates.
type flakyBackend struct {
	inner     DecryptBackend
	remaining atomic.Int32
}

func (f *flakyBackend) UserDecrypt(
	ctx context.Context,
	pairs []relayer.HandleContractPair,
	keypair *crypto.EphemeralKeypair,
	signature string,
	contractAddresses []string,
	userAddr string,
	startTimestamp int64,
	durationDays int64,
) (map[string]uint64, error) {
	if f.remaining.Add(-1) >= 0 {
		return nil, fmt.Errorf("relayer: %w", domain.ErrBackendUnreachable)
	}
	return f.inner.UserDecrypt(ctx, pairs, keypair, signature, contractAddresses, userAddr, startTimestamp, durationDays)
}

func TestRevealFailureCachesNothing(t *testing.T) {
	h := newHarness(t)
	roundID := settle(t, h)
	ctx := context.Background()

	flaky := &flakyBackend{inner: h.state.Backend()}
	flaky.remaining.Store(3) // the entire first run fails
	reveal := NewRevealService(
		h.state.Ledger(h.self()), flaky, h.signer, h.bets, NewResultCache(), nil, testContract, 10, testLogger(),
	).WithClock(h.clock.Now)

	_, err := reveal.Reveal(ctx, roundID)
	require.Error(t, err)
	assert.Zero(t, reveal.Cache().Len(), "failed reveal must not poison the cache")

	// The next attempt starts clean and succeeds.
	result, err := reveal.Reveal(ctx, roundID)
	require.NoError(t, err)
	assert.Equal(t, domain.WinnerYes, result.Winner)
}

func TestRevealBeforeResolutionAuthorizesParticipant(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "live peek", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = h.rounds.PlaceBet(ctx, round.ID, 700, false, milliEth(700))
	require.NoError(t, err)

	// Round still open: a participant may reveal the running aggregates.
	result, err := h.reveal.Reveal(ctx, round.ID)
	require.NoError(t, err)
	assert.False(t, result.Resolved)
	assert.Equal(t, uint64(700), result.NoUnits)
	assert.Equal(t, uint32(700), result.BetUnits)
}

func TestRevealMidRoundSnapshotNotCached(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	round, err := h.rounds.CreateRound(ctx, "early lead", h.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = h.rounds.PlaceBet(ctx, round.ID, 100, true, milliEth(100))
	require.NoError(t, err)

	// A peek while only the YES bet exists shows YES ahead.
	snapshot, err := h.reveal.Reveal(ctx, round.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WinnerYes, snapshot.Winner)
	assert.Zero(t, h.reveal.Cache().Len(), "an open-round snapshot must not be memoized")

	// The outcome flips before resolution.
	h.betAs(t, otherAddrA, round.ID, 500, false, milliEth(500))
	h.clock.Advance(2 * time.Hour)
	require.NoError(t, h.rounds.Resolve(ctx, round.ID))

	result, err := h.reveal.Reveal(ctx, round.ID)
	require.NoError(t, err)
	assert.True(t, result.Resolved)
	assert.Equal(t, domain.WinnerNo, result.Winner)
	assert.Equal(t, uint64(100), result.YesUnits)
	assert.Equal(t, uint64(500), result.NoUnits)
	assert.False(t, result.Won)
	assert.Equal(t, 1, h.reveal.Cache().Len())
}

// ctxBoundBackend refuses work once its context is done, the way an HTTP
// client would.
type ctxBoundBackend struct {
	inner DecryptBackend
}

func (c *ctxBoundBackend) UserDecrypt(
	ctx context.Context,
	pairs []relayer.HandleContractPair,
	keypair *crypto.EphemeralKeypair,
	signature string,
	contractAddresses []string,
	userAddr string,
	startTimestamp int64,
	durationDays int64,
) (map[string]uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("relayer: %w", err)
	}
	return c.inner.UserDecrypt(ctx, pairs, keypair, signature, contractAddresses, userAddr, startTimestamp, durationDays)
}

func TestRevealSurvivesCallerCancellation(t *testing.T) {
	h := newHarness(t)
	roundID := settle(t, h)

	backend := &ctxBoundBackend{inner: h.state.Backend()}
	reveal := NewRevealService(
		h.state.Ledger(h.self()), backend, h.signer, h.bets, NewResultCache(), nil, testContract, 10, testLogger(),
	).WithClock(h.clock.Now)

	// The shared protocol run must outlive the caller that started it, so
	// a caller abandoning the flight cannot fail joiners sharing it.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := reveal.Reveal(ctx, roundID)
	require.NoError(t, err)
	assert.Equal(t, domain.WinnerYes, result.Winner)
	assert.Equal(t, 1, reveal.Cache().Len())
}

func TestRevealPublishesResultEvent(t *testing.T) {
	h := newHarness(t)
	roundID := settle(t, h)
	ctx := context.Background()

	_, err := h.reveal.Reveal(ctx, roundID)
	require.NoError(t, err)

	payloads := h.bus.payloads(domain.ChannelResults)
	require.Len(t, payloads, 1)

	var event domain.RoundEvent
	require.NoError(t, json.Unmarshal(payloads[0], &event))
	assert.Equal(t, domain.EventResultReveal, event.Type)
	assert.Equal(t, roundID, event.RoundID)
	assert.Equal(t, domain.WinnerYes, event.Winner)
	assert.Equal(t, uint64(2000), event.YesUnits)
	assert.Equal(t, uint64(1500), event.NoUnits)

	// A cache hit does not re-announce the result.
	_, err = h.reveal.Reveal(ctx, roundID)
	require.NoError(t, err)
	assert.Len(t, h.bus.payloads(domain.ChannelResults), 1)
}

func TestResultCacheUpdateClaimed(t *testing.T) {
	cache := NewResultCache()
	cache.Put(domain.RoundResult{RoundID: 7, Winner: domain.WinnerYes})

	cache.UpdateClaimed(7)
	result, ok := cache.Get(7)
	require.True(t, ok)
	assert.True(t, result.Claimed)

	// Unknown rounds are ignored.
	cache.UpdateClaimed(99)
	assert.Equal(t, 1, cache.Len())
}
