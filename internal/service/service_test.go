package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cipherbet/cipherbet/internal/crypto"
	"github.com/cipherbet/cipherbet/internal/domain"
	"github.com/cipherbet/cipherbet/internal/fhe"
	"github.com/cipherbet/cipherbet/internal/ledger/ledgertest"
)

const (
	testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

	// Well-known throwaway development key; address
	// 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266.
	testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

	otherAddrA = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	otherAddrB = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
)

var testChainID = int64(31337)

// testClock is a movable clock shared between a service and the ledger
// double, so tests can push a round past its end time.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memBetStore is an in-memory domain.BetStore with the same accumulate and
// case-folding semantics as the postgres store.
type memBetStore struct {
	mu      sync.Mutex
	records map[string]domain.BetRecord
}

func newMemBetStore() *memBetStore {
	return &memBetStore{records: make(map[string]domain.BetRecord)}
}

func betKey(roundID uint64, participant string) string {
	return fmt.Sprintf("%s/%d", strings.ToLower(participant), roundID)
}

func (m *memBetStore) Upsert(_ context.Context, bet domain.BetRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := betKey(bet.RoundID, bet.Participant)
	if existing, ok := m.records[key]; ok {
		existing.AmountUnits += bet.AmountUnits
		existing.AmountWei = new(big.Int).Add(existing.AmountWei, bet.AmountWei)
		existing.Choice = bet.Choice
		existing.TxHash = bet.TxHash
		m.records[key] = existing
		return nil
	}
	bet.Participant = strings.ToLower(bet.Participant)
	m.records[key] = bet
	return nil
}

func (m *memBetStore) Get(_ context.Context, roundID uint64, participant string) (domain.BetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[betKey(roundID, participant)]
	if !ok {
		return domain.BetRecord{}, domain.ErrNotFound
	}
	return record, nil
}

func (m *memBetStore) MarkClaimed(_ context.Context, roundID uint64, participant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := betKey(roundID, participant)
	record, ok := m.records[key]
	if !ok {
		return domain.ErrNotFound
	}
	record.Claimed = true
	m.records[key] = record
	return nil
}

func (m *memBetStore) ListByParticipant(_ context.Context, participant string, limit int) ([]domain.BetRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.BetRecord
	for _, record := range m.records {
		if record.Participant == strings.ToLower(participant) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// memBus records published payloads per channel.
type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func newMemBus() *memBus {
	return &memBus{published: make(map[string][][]byte)}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *memBus) payloads(channel string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.published[channel]...)
}

// harness wires one wallet's full service stack over a shared ledger double.
type harness struct {
	clock  *testClock
	state  *ledgertest.State
	signer *crypto.Signer
	bets   *memBetStore
	bus    *memBus
	rounds *RoundService
	reveal *RevealService
	claims *ClaimService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := newTestClock()
	state := ledgertest.New(clock.Now)

	signer, err := crypto.NewSigner(testPrivateKey, testChainID)
	require.NoError(t, err)

	self := signer.Address().Hex()
	bets := newMemBetStore()
	bus := newMemBus()
	builder := fhe.NewInputBuilder(state.Backend(), testContract)
	logger := testLogger()

	rounds := NewRoundService(state.Ledger(self), builder, bets, nil, nil, self, logger).
		WithClock(clock.Now)
	reveal := NewRevealService(state.Ledger(self), state.Backend(), signer, bets, NewResultCache(), bus, testContract, 10, logger).
		WithClock(clock.Now)
	claims := NewClaimService(state.Ledger(self), reveal, bets, nil, logger)

	return &harness{
		clock:  clock,
		state:  state,
		signer: signer,
		bets:   bets,
		bus:    bus,
		rounds: rounds,
		reveal: reveal,
		claims: claims,
	}
}

func (h *harness) self() string {
	return h.signer.Address().Hex()
}

// betAs places a bet directly on the ledger double for another wallet,
// without going through this harness's services.
func (h *harness) betAs(t *testing.T, addr string, roundID uint64, units uint32, choice bool, valueWei *big.Int) {
	t.Helper()

	input, err := h.state.Backend().EncryptInput(context.Background(), testContract, addr, units, choice)
	require.NoError(t, err)

	_, err = h.state.Ledger(addr).PlaceBet(
		context.Background(), roundID, input.ChoiceHandle, input.AmountHandle, input.Proof, valueWei,
	)
	require.NoError(t, err)
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func milliEth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e15))
}
