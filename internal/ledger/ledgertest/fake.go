// Package ledgertest provides an in-memory double of the betting contract
// and its FHE coprocessor for service-level tests. One State emulates the
// chain; Ledger views scope it to a caller address and the Backend shares
// the handle-to-plaintext table so encrypted values round-trip without a
// network.
package ledgertest

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cipherbet/cipherbet/internal/crypto"
	"github.com/cipherbet/cipherbet/internal/domain"
	"github.com/cipherbet/cipherbet/internal/platform/relayer"
)

// State is the shared contract emulation. Zero value is not usable; use New.
type State struct {
	mu         sync.Mutex
	now        func() time.Time
	rounds     []*roundState
	plaintexts map[string]uint64 // ciphertext handle -> cleartext
	handleSeq  uint64
	txSeq      uint64

	// Call counters for caching and single-flight assertions.
	DecryptCalls int
	EncryptCalls int

	// Payouts records every successful claim: caller -> asserted reward.
	Payouts map[string]*big.Int
}

type roundState struct {
	id          uint64
	creator     string
	name        string
	endTime     int64
	resolved    bool
	positions   map[string]*position
	yesUnits    uint64
	noUnits     uint64
	yesHandle   string
	noHandle    string
	totalHandle string
	pool        *big.Int
	authorized  map[string]bool
}

type position struct {
	units   uint64
	choice  bool
	wei     *big.Int
	claimed bool
}

// New creates an empty State whose clock is the given function.
func New(now func() time.Time) *State {
	return &State{
		now:        now,
		plaintexts: make(map[string]uint64),
		Payouts:    make(map[string]*big.Int),
	}
}

// SetNow replaces the clock, letting tests move time past round end.
func (s *State) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Ledger returns a domain.Ledger view of the state for the given caller.
func (s *State) Ledger(caller string) domain.Ledger {
	return &callerView{state: s, caller: strings.ToLower(caller)}
}

// Backend returns the coprocessor double implementing both the input
// encrypter and the user-decryption backend over the shared handle table.
func (s *State) Backend() *Backend {
	return &Backend{state: s}
}

func (s *State) newHandle() string {
	s.handleSeq++
	return fmt.Sprintf("0x%064x", s.handleSeq)
}

func (s *State) round(id uint64) (*roundState, error) {
	if id >= uint64(len(s.rounds)) {
		return nil, domain.ErrRoundNotFound
	}
	return s.rounds[id], nil
}

type callerView struct {
	state  *State
	caller string
}

func (v *callerView) CreateRound(_ context.Context, name string, endTime int64) (uint64, error) {
	s := v.state
	s.mu.Lock()
	defer s.mu.Unlock()

	if endTime <= s.now().Unix() {
		return 0, domain.ErrEndTimeInPast
	}
	round := &roundState{
		id:          uint64(len(s.rounds)),
		creator:     v.caller,
		name:        name,
		endTime:     endTime,
		positions:   make(map[string]*position),
		yesHandle:   domain.ZeroHandle,
		noHandle:    domain.ZeroHandle,
		totalHandle: domain.ZeroHandle,
		pool:        new(big.Int),
		authorized:  make(map[string]bool),
	}
	s.rounds = append(s.rounds, round)
	return round.id, nil
}

func (v *callerView) PlaceBet(_ context.Context, roundID uint64, choiceHandle, amountHandle string, proof []byte, valueWei *big.Int) (string, error) {
	s := v.state
	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.round(roundID)
	if err != nil {
		return "", err
	}
	if round.resolved {
		return "", domain.ErrRoundResolved
	}
	if s.now().Unix() >= round.endTime {
		return "", domain.ErrRoundEnded
	}
	if valueWei == nil || valueWei.Sign() <= 0 {
		return "", fmt.Errorf("ledgertest: bet requires escrow value")
	}
	if want := proofFor(v.caller, amountHandle, choiceHandle); string(proof) != want {
		return "", fmt.Errorf("ledgertest: input proof not bound to caller %s", v.caller)
	}

	units, ok := s.plaintexts[amountHandle]
	if !ok {
		return "", fmt.Errorf("ledgertest: unknown amount handle %s", amountHandle)
	}
	choiceVal, ok := s.plaintexts[choiceHandle]
	if !ok {
		return "", fmt.Errorf("ledgertest: unknown choice handle %s", choiceHandle)
	}
	choice := choiceVal != 0

	pos, existing := round.positions[v.caller]
	if !existing {
		pos = &position{wei: new(big.Int)}
		round.positions[v.caller] = pos
	}
	pos.units += units
	pos.choice = choice
	pos.wei.Add(pos.wei, valueWei)

	if choice {
		round.yesUnits += units
	} else {
		round.noUnits += units
	}
	round.pool.Add(round.pool, valueWei)

	// Homomorphic adds yield fresh ciphertexts.
	round.yesHandle = s.newHandle()
	round.noHandle = s.newHandle()
	round.totalHandle = s.newHandle()
	s.plaintexts[round.yesHandle] = round.yesUnits
	s.plaintexts[round.noHandle] = round.noUnits
	s.plaintexts[round.totalHandle] = round.yesUnits + round.noUnits

	s.txSeq++
	return fmt.Sprintf("0x%064x", s.txSeq), nil
}

func (v *callerView) ResolveRound(_ context.Context, roundID uint64) error {
	s := v.state
	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.round(roundID)
	if err != nil {
		return err
	}
	if round.resolved {
		return domain.ErrAlreadyResolved
	}
	if s.now().Unix() < round.endTime {
		return domain.ErrRoundStillOpen
	}
	round.resolved = true
	return nil
}

func (v *callerView) AuthorizeParticipant(_ context.Context, roundID uint64, participant string) error {
	s := v.state
	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.round(roundID)
	if err != nil {
		return err
	}
	addr := strings.ToLower(participant)
	if _, ok := round.positions[addr]; !ok {
		return domain.ErrNotAParticipant
	}
	round.authorized[addr] = true
	return nil
}

func (v *callerView) ClaimReward(_ context.Context, roundID uint64, rewardWei *big.Int, betUnits uint32, choice bool, winningSide bool, winningSideUnits uint64) error {
	s := v.state
	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.round(roundID)
	if err != nil {
		return err
	}
	if !round.resolved {
		return domain.ErrRoundNotResolved
	}
	pos, ok := round.positions[v.caller]
	if !ok {
		return domain.ErrNotAParticipant
	}
	if pos.claimed {
		return domain.ErrAlreadyClaimed
	}
	if choice != winningSide {
		return domain.ErrNotAWinner
	}
	pos.claimed = true
	s.Payouts[v.caller] = new(big.Int).Set(rewardWei)
	return nil
}

func (v *callerView) GetRoundInfo(_ context.Context, roundID uint64) (domain.Round, error) {
	s := v.state
	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.round(roundID)
	if err != nil {
		return domain.Round{}, err
	}
	return domain.Round{
		ID:               round.id,
		Creator:          round.creator,
		Name:             round.name,
		EndTime:          time.Unix(round.endTime, 0).UTC(),
		Resolved:         round.resolved,
		ParticipantCount: uint32(len(round.positions)),
	}, nil
}

func (v *callerView) GetYesAmount(_ context.Context, roundID uint64) (string, error) {
	return v.handle(roundID, func(r *roundState) string { return r.yesHandle })
}

func (v *callerView) GetNoAmount(_ context.Context, roundID uint64) (string, error) {
	return v.handle(roundID, func(r *roundState) string { return r.noHandle })
}

func (v *callerView) GetTotalAmount(_ context.Context, roundID uint64) (string, error) {
	return v.handle(roundID, func(r *roundState) string { return r.totalHandle })
}

func (v *callerView) handle(roundID uint64, pick func(*roundState) string) (string, error) {
	s := v.state
	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.round(roundID)
	if err != nil {
		return "", err
	}
	return pick(round), nil
}

func (v *callerView) HasParticipated(_ context.Context, roundID uint64, address string) (bool, error) {
	s := v.state
	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.round(roundID)
	if err != nil {
		return false, err
	}
	_, ok := round.positions[strings.ToLower(address)]
	return ok, nil
}

func (v *callerView) GetUserBet(_ context.Context, roundID uint64, address string) (domain.UserBet, error) {
	s := v.state
	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.round(roundID)
	if err != nil {
		return domain.UserBet{}, err
	}
	pos, ok := round.positions[strings.ToLower(address)]
	if !ok {
		return domain.UserBet{AmountWei: new(big.Int)}, nil
	}
	return domain.UserBet{
		AmountWei:  new(big.Int).Set(pos.wei),
		HasClaimed: pos.claimed,
	}, nil
}

func (v *callerView) GetRoundTotalPool(_ context.Context, roundID uint64) (*big.Int, error) {
	s := v.state
	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.round(roundID)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(round.pool), nil
}

func (v *callerView) RoundCounter(_ context.Context) (uint64, error) {
	s := v.state
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.rounds)), nil
}

// Backend doubles both relayer surfaces: input encryption and signed
// user-decryption, backed by the State's plaintext table.
type Backend struct {
	state *State
}

// EncryptInput mints fresh handles for (amount, choice) and a proof bound
// to (user, handles), matching what the contract-side check expects.
func (b *Backend) EncryptInput(_ context.Context, _ string, userAddr string, amount uint32, choice bool) (relayer.EncryptedInput, error) {
	s := b.state
	s.mu.Lock()
	defer s.mu.Unlock()

	s.EncryptCalls++
	amountHandle := s.newHandle()
	choiceHandle := s.newHandle()
	s.plaintexts[amountHandle] = uint64(amount)
	if choice {
		s.plaintexts[choiceHandle] = 1
	} else {
		s.plaintexts[choiceHandle] = 0
	}
	return relayer.EncryptedInput{
		AmountHandle: amountHandle,
		ChoiceHandle: choiceHandle,
		Proof:        []byte(proofFor(strings.ToLower(userAddr), amountHandle, choiceHandle)),
	}, nil
}

// UserDecrypt resolves each requested handle against the plaintext table.
// The grant must carry a signature and ephemeral keypair; their
// cryptographic validity is the real relayer's concern, not this double's.
func (b *Backend) UserDecrypt(
	_ context.Context,
	pairs []relayer.HandleContractPair,
	keypair *crypto.EphemeralKeypair,
	signature string,
	_ []string,
	_ string,
	_ int64,
	_ int64,
) (map[string]uint64, error) {
	s := b.state
	s.mu.Lock()
	defer s.mu.Unlock()

	s.DecryptCalls++
	if keypair == nil || signature == "" {
		return nil, domain.ErrAuthorizationDenied
	}

	out := make(map[string]uint64, len(pairs))
	for _, pair := range pairs {
		value, ok := s.plaintexts[pair.Handle]
		if !ok {
			return nil, fmt.Errorf("ledgertest: unknown handle %s: %w", pair.Handle, domain.ErrMalformedResponse)
		}
		out[pair.Handle] = value
	}
	return out, nil
}

func proofFor(userAddr, amountHandle, choiceHandle string) string {
	return "proof:" + userAddr + ":" + amountHandle + ":" + choiceHandle
}
