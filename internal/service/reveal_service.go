package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/cipherbet/cipherbet/internal/crypto"
	"github.com/cipherbet/cipherbet/internal/domain"
	"github.com/cipherbet/cipherbet/internal/platform/relayer"
)

// DecryptBackend is the slice of the relayer client the reveal protocol
// needs: signed user-decryption of ciphertext handles.
type DecryptBackend interface {
	UserDecrypt(
		ctx context.Context,
		pairs []relayer.HandleContractPair,
		keypair *crypto.EphemeralKeypair,
		signature string,
		contractAddresses []string,
		userAddr string,
		startTimestamp int64,
		durationDays int64,
	) (map[string]uint64, error)
}

// RevealService runs the confidential result reveal: it authorizes this
// wallet on the round's ciphertexts, decrypts the three aggregate handles
// through the relayer, and derives the winner, this wallet's outcome, and
// the proportional reward. Resolved results are cached; a reveal of a round
// that is still open returns a live snapshot of the running aggregates and
// is never cached. Concurrent reveals of the same round share one protocol
// run.
type RevealService struct {
	ledger       domain.Ledger
	backend      DecryptBackend
	signer       *crypto.Signer
	bets         domain.BetStore
	cache        *ResultCache
	bus          domain.SignalBus
	contract     string
	durationDays int64
	logger       *slog.Logger
	now          func() time.Time
	group        singleflight.Group
}

func NewRevealService(
	ledger domain.Ledger,
	backend DecryptBackend,
	signer *crypto.Signer,
	bets domain.BetStore,
	cache *ResultCache,
	bus domain.SignalBus,
	contract string,
	durationDays int64,
	logger *slog.Logger,
) *RevealService {
	if durationDays <= 0 {
		durationDays = 10
	}
	return &RevealService{
		ledger:       ledger,
		backend:      backend,
		signer:       signer,
		bets:         bets,
		cache:        cache,
		bus:          bus,
		contract:     contract,
		durationDays: durationDays,
		logger:       logger.With(slog.String("component", "reveal_service")),
		now:          time.Now,
	}
}

// Reveal returns the decrypted result for a round. Cached results are
// served without touching the network. On a miss, exactly one decryption
// protocol run is in flight per round; concurrent callers share its
// outcome. Only results of resolved rounds are cached: a mid-round reveal
// is a snapshot of moving aggregates, so the next call re-runs the
// protocol. A failed run caches nothing, so the next call retries cleanly.
func (s *RevealService) Reveal(ctx context.Context, roundID uint64) (domain.RoundResult, error) {
	if result, ok := s.cache.Get(roundID); ok {
		return result, nil
	}

	// The protocol run is shared by every caller that joins the flight,
	// so it must not die with the first caller's context.
	runCtx := context.WithoutCancel(ctx)

	v, err, _ := s.group.Do(fmt.Sprintf("reveal:%d", roundID), func() (interface{}, error) {
		// A racer may have populated the cache while we queued.
		if result, ok := s.cache.Get(roundID); ok {
			return result, nil
		}
		result, err := s.reveal(runCtx, roundID)
		if err != nil {
			return nil, err
		}
		if result.Resolved {
			s.cache.Put(result)
			s.publishReveal(runCtx, result)
		}
		return result, nil
	})
	if err != nil {
		return domain.RoundResult{}, err
	}
	return v.(domain.RoundResult), nil
}

func (s *RevealService) reveal(ctx context.Context, roundID uint64) (domain.RoundResult, error) {
	round, err := s.ledger.GetRoundInfo(ctx, roundID)
	if err != nil {
		return domain.RoundResult{}, fmt.Errorf("reveal_service: round %d: %w", roundID, err)
	}

	self := s.signer.Address().Hex()
	participated, err := s.ledger.HasParticipated(ctx, roundID, self)
	if err != nil {
		return domain.RoundResult{}, fmt.Errorf("reveal_service: round %d: %w", roundID, err)
	}

	// Before resolution the aggregates are only readable by authorized
	// participants. Authorization is best-effort: an ACL that is already in
	// place makes the call revert, and the decrypt step is the real gate.
	if !round.Resolved && participated {
		if err := s.ledger.AuthorizeParticipant(ctx, roundID, self); err != nil {
			s.logger.DebugContext(ctx, "authorize participant skipped",
				slog.Uint64("round_id", roundID),
				slog.String("error", err.Error()),
			)
		}
	}

	yes, no, total, err := s.concurrentAggregates(ctx, roundID)
	if err != nil {
		return domain.RoundResult{}, err
	}

	result := domain.RoundResult{
		RoundID:    roundID,
		Resolved:   round.Resolved,
		YesUnits:   yes,
		NoUnits:    no,
		TotalUnits: total,
		Winner:     domain.WinnerOf(yes, no),
	}

	pool, err := s.ledger.GetRoundTotalPool(ctx, roundID)
	if err != nil {
		return domain.RoundResult{}, fmt.Errorf("reveal_service: round %d pool: %w", roundID, err)
	}
	result.TotalPool = pool

	if participated {
		if err := s.fillPersonalOutcome(ctx, roundID, self, &result); err != nil {
			return domain.RoundResult{}, err
		}
	}

	s.logger.InfoContext(ctx, "round revealed",
		slog.Uint64("round_id", roundID),
		slog.Uint64("yes_units", yes),
		slog.Uint64("no_units", no),
		slog.String("winner", string(result.Winner)),
	)
	return result, nil
}

// decryptAggregate fetches one aggregate handle and decrypts it. The
// all-zero handle means no ciphertext was ever written; it decodes to zero
// locally without a backend round trip.
func (s *RevealService) decryptAggregate(
	ctx context.Context,
	roundID uint64,
	fetch func(context.Context, uint64) (string, error),
) (uint64, error) {
	handle, err := fetch(ctx, roundID)
	if err != nil {
		return 0, fmt.Errorf("reveal_service: round %d handle: %w", roundID, err)
	}
	if domain.IsZeroHandle(handle) {
		return 0, nil
	}
	return s.decryptHandle(ctx, handle)
}

// decryptHandle runs a single signed user-decryption: a fresh ephemeral
// keypair, an EIP-712 grant over it, and one relayer call.
func (s *RevealService) decryptHandle(ctx context.Context, handle string) (uint64, error) {
	keypair, err := crypto.GenerateKeypair()
	if err != nil {
		return 0, fmt.Errorf("reveal_service: %w", err)
	}

	start := s.now().Unix()
	signature, err := s.signer.SignDecryptRequest(crypto.DecryptRequest{
		PublicKey:         keypair.PublicKey[:],
		ContractAddresses: []string{s.contract},
		StartTimestamp:    start,
		DurationDays:      s.durationDays,
	})
	if err != nil {
		return 0, fmt.Errorf("reveal_service: sign grant: %w", err)
	}

	cleartexts, err := s.backend.UserDecrypt(
		ctx,
		[]relayer.HandleContractPair{{Handle: handle, ContractAddress: s.contract}},
		keypair,
		signature,
		[]string{s.contract},
		s.signer.Address().Hex(),
		start,
		s.durationDays,
	)
	if err != nil {
		return 0, fmt.Errorf("reveal_service: decrypt %s: %w", handle, err)
	}

	value, ok := cleartexts[handle]
	if !ok {
		return 0, fmt.Errorf("reveal_service: decrypt %s: %w", handle, domain.ErrMalformedResponse)
	}
	return value, nil
}

// fillPersonalOutcome attaches this wallet's bet, win flag, reward, and
// claim status to the result. The plaintext bet units come from the local
// bet store; the ledger only holds them encrypted.
func (s *RevealService) fillPersonalOutcome(ctx context.Context, roundID uint64, self string, result *domain.RoundResult) error {
	result.Participant = self

	userBet, err := s.ledger.GetUserBet(ctx, roundID, self)
	if err != nil {
		return fmt.Errorf("reveal_service: round %d user bet: %w", roundID, err)
	}
	result.Claimed = userBet.HasClaimed

	record, err := s.bets.Get(ctx, roundID, self)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Participated on-ledger but no local record: the plaintext
			// amount is unknowable, so the personal outcome stays empty.
			s.logger.WarnContext(ctx, "no local bet record for participated round",
				slog.Uint64("round_id", roundID),
			)
			return nil
		}
		return fmt.Errorf("reveal_service: round %d bet record: %w", roundID, err)
	}

	result.BetUnits = record.AmountUnits
	result.Choice = record.Choice
	result.Won = result.Winner != domain.WinnerNone && domain.Side(record.Choice) == result.Winner
	if result.Won {
		result.RewardWei = CalculateReward(
			record.AmountUnits,
			record.Choice,
			result.Winner,
			result.WinningSideUnits(),
			result.TotalPool,
		)
	} else {
		result.RewardWei = new(big.Int)
	}
	return nil
}

func (s *RevealService) publishReveal(ctx context.Context, result domain.RoundResult) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.RoundEvent{
		ID:       uuid.NewString(),
		Type:     domain.EventResultReveal,
		RoundID:  result.RoundID,
		At:       s.now().UTC(),
		Winner:   result.Winner,
		YesUnits: result.YesUnits,
		NoUnits:  result.NoUnits,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelResults, payload); err != nil {
		s.logger.WarnContext(ctx, "reveal event publish failed",
			slog.Uint64("round_id", result.RoundID),
			slog.String("error", err.Error()),
		)
	}
}

// Cache exposes the underlying result cache for settlement updates.
func (s *RevealService) Cache() *ResultCache {
	return s.cache
}

// WithClock overrides the service clock. Test hook.
func (s *RevealService) WithClock(now func() time.Time) *RevealService {
	s.now = now
	return s
}

// concurrentAggregates decrypts the three aggregate handles in parallel;
// one failure cancels the others and fails the whole reveal.
func (s *RevealService) concurrentAggregates(ctx context.Context, roundID uint64) (yes, no, total uint64, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var e error
		yes, e = s.decryptAggregate(gctx, roundID, s.ledger.GetYesAmount)
		return e
	})
	g.Go(func() error {
		var e error
		no, e = s.decryptAggregate(gctx, roundID, s.ledger.GetNoAmount)
		return e
	})
	g.Go(func() error {
		var e error
		total, e = s.decryptAggregate(gctx, roundID, s.ledger.GetTotalAmount)
		return e
	})
	err = g.Wait()
	return yes, no, total, err
}
