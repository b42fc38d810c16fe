// Package service implements the round lifecycle, the confidential reveal
// protocol, reward calculation, and claim settlement on top of the ledger
// and relayer clients.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cipherbet/cipherbet/internal/domain"
	"github.com/cipherbet/cipherbet/internal/fhe"
)

// listConcurrency bounds parallel getRoundInfo reads when listing rounds.
const listConcurrency = 8

// RoundService drives round lifecycle transitions: create, bet, resolve,
// and the read-only registry projection.
type RoundService struct {
	ledger  domain.Ledger
	builder *fhe.InputBuilder
	bets    domain.BetStore
	cache   domain.RoundCache
	bus     domain.SignalBus
	self    string // this wallet's address
	logger  *slog.Logger
	now     func() time.Time
}

// NewRoundService creates a RoundService. cache and bus may be nil (both are
// best-effort layers); bets must be set for PlaceBet to record positions.
func NewRoundService(
	ledger domain.Ledger,
	builder *fhe.InputBuilder,
	bets domain.BetStore,
	cache domain.RoundCache,
	bus domain.SignalBus,
	self string,
	logger *slog.Logger,
) *RoundService {
	return &RoundService{
		ledger:  ledger,
		builder: builder,
		bets:    bets,
		cache:   cache,
		bus:     bus,
		self:    self,
		logger:  logger.With(slog.String("component", "round_service")),
		now:     time.Now,
	}
}

// CreateRound allocates a new round ending at endTime. The end time must be
// strictly in the future; violations are rejected before any network call.
func (s *RoundService) CreateRound(ctx context.Context, name string, endTime time.Time) (domain.Round, error) {
	if name == "" {
		return domain.Round{}, fmt.Errorf("round_service: name must not be empty")
	}
	if !endTime.After(s.now()) {
		return domain.Round{}, fmt.Errorf("round_service: end time %s: %w", endTime.Format(time.RFC3339), domain.ErrEndTimeInPast)
	}

	id, err := s.ledger.CreateRound(ctx, name, endTime.Unix())
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: create round: %w", err)
	}

	round, err := s.ledger.GetRoundInfo(ctx, id)
	if err != nil {
		// The round exists; return what we know.
		s.logger.WarnContext(ctx, "created round but readback failed",
			slog.Uint64("round_id", id),
			slog.String("error", err.Error()),
		)
		round = domain.Round{ID: id, Creator: s.self, Name: name, EndTime: endTime.UTC()}
	}

	s.cacheRound(ctx, round)
	s.publish(ctx, domain.ChannelRounds, domain.RoundEvent{
		ID:      uuid.NewString(),
		Type:    domain.EventRoundCreated,
		RoundID: id,
		At:      s.now().UTC(),
		Name:    round.Name,
	})

	s.logger.InfoContext(ctx, "round created",
		slog.Uint64("round_id", id),
		slog.String("name", name),
		slog.Time("end_time", endTime),
	)
	return round, nil
}

// PlaceBet encrypts (amountUnits, choice), submits the bet escrowing
// valueWei, and records the local bet position. Bets are only accepted while
// the round is Open; late submissions fail fast with ErrRoundEnded before
// any encryption work.
func (s *RoundService) PlaceBet(ctx context.Context, roundID uint64, amountUnits int64, choice bool, valueWei *big.Int) (domain.BetRecord, error) {
	if valueWei == nil || valueWei.Sign() <= 0 {
		return domain.BetRecord{}, fmt.Errorf("round_service: escrow value must be positive: %w", domain.ErrInvalidPlaintext)
	}

	round, err := s.GetRound(ctx, roundID)
	if err != nil {
		return domain.BetRecord{}, err
	}
	switch round.StateAt(s.now()) {
	case domain.RoundResolved:
		return domain.BetRecord{}, fmt.Errorf("round_service: place bet: %w", domain.ErrRoundResolved)
	case domain.RoundEnded:
		return domain.BetRecord{}, fmt.Errorf("round_service: place bet: %w", domain.ErrRoundEnded)
	}

	input, err := s.builder.Build(ctx, s.self, amountUnits, choice)
	if err != nil {
		return domain.BetRecord{}, fmt.Errorf("round_service: %w", err)
	}

	txHash, err := s.ledger.PlaceBet(ctx, roundID, input.ChoiceHandle, input.AmountHandle, input.Proof, valueWei)
	if err != nil {
		return domain.BetRecord{}, fmt.Errorf("round_service: place bet: %w", err)
	}

	record := domain.BetRecord{
		RoundID:     roundID,
		Participant: s.self,
		AmountUnits: uint32(amountUnits),
		Choice:      choice,
		AmountWei:   new(big.Int).Set(valueWei),
		TxHash:      txHash,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.bets.Upsert(ctx, record); err != nil {
		// The bet is on the ledger but the local record failed; without it
		// the reward cannot be computed later, so this is worth a loud log.
		s.logger.ErrorContext(ctx, "bet placed but local record failed",
			slog.Uint64("round_id", roundID),
			slog.String("tx", txHash),
			slog.String("error", err.Error()),
		)
	}

	s.invalidateRound(ctx, roundID)
	s.publish(ctx, domain.ChannelRounds, domain.RoundEvent{
		ID:          uuid.NewString(),
		Type:        domain.EventBetPlaced,
		RoundID:     roundID,
		At:          s.now().UTC(),
		Participant: s.self,
	})

	s.logger.InfoContext(ctx, "bet placed",
		slog.Uint64("round_id", roundID),
		slog.Int64("units", amountUnits),
		slog.String("tx", txHash),
	)
	return record, nil
}

// Resolve transitions an Ended round to Resolved, making its aggregates
// publicly decryptable. Resolving an already-resolved round is a no-op:
// concurrent resolvers race benignly. Resolving an Open round fails with
// ErrRoundStillOpen without submitting a transaction.
func (s *RoundService) Resolve(ctx context.Context, roundID uint64) error {
	round, err := s.GetRound(ctx, roundID)
	if err != nil {
		return err
	}

	switch round.StateAt(s.now()) {
	case domain.RoundResolved:
		return nil
	case domain.RoundOpen:
		return fmt.Errorf("round_service: resolve round %d: %w", roundID, domain.ErrRoundStillOpen)
	}

	if err := s.ledger.ResolveRound(ctx, roundID); err != nil {
		// Another resolver won the race; the desired state holds.
		if errors.Is(err, domain.ErrAlreadyResolved) || errors.Is(err, domain.ErrRoundResolved) {
			s.logger.DebugContext(ctx, "round resolved concurrently", slog.Uint64("round_id", roundID))
			s.invalidateRound(ctx, roundID)
			return nil
		}
		return fmt.Errorf("round_service: resolve round %d: %w", roundID, err)
	}

	s.invalidateRound(ctx, roundID)
	s.publish(ctx, domain.ChannelRounds, domain.RoundEvent{
		ID:      uuid.NewString(),
		Type:    domain.EventRoundResolved,
		RoundID: roundID,
		At:      s.now().UTC(),
		Name:    round.Name,
	})

	s.logger.InfoContext(ctx, "round resolved", slog.Uint64("round_id", roundID))
	return nil
}

// GetRound returns the round projection, checking the cache first and
// populating the escrowed pool from the ledger on a miss.
func (s *RoundService) GetRound(ctx context.Context, roundID uint64) (domain.Round, error) {
	if s.cache != nil {
		if round, err := s.cache.Get(ctx, roundID); err == nil {
			return round, nil
		}
	}

	round, err := s.ledger.GetRoundInfo(ctx, roundID)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: get round %d: %w", roundID, err)
	}
	if pool, err := s.ledger.GetRoundTotalPool(ctx, roundID); err == nil {
		round.TotalPoolWei = pool
	}

	s.cacheRound(ctx, round)
	return round, nil
}

// HasParticipated reports whether this wallet placed a bet in the round.
func (s *RoundService) HasParticipated(ctx context.Context, roundID uint64) (bool, error) {
	ok, err := s.ledger.HasParticipated(ctx, roundID, s.self)
	if err != nil {
		return false, fmt.Errorf("round_service: has participated: %w", err)
	}
	return ok, nil
}

// ListRounds returns every round on the ledger, newest first. Round reads
// fan out with bounded concurrency; a single failed read fails the listing.
func (s *RoundService) ListRounds(ctx context.Context) ([]domain.Round, error) {
	count, err := s.ledger.RoundCounter(ctx)
	if err != nil {
		return nil, fmt.Errorf("round_service: list rounds: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	rounds := make([]domain.Round, count)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for id := uint64(0); id < count; id++ {
		g.Go(func() error {
			round, err := s.GetRound(gctx, id)
			if err != nil {
				return err
			}
			rounds[id] = round
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(rounds, func(i, j int) bool { return rounds[i].ID > rounds[j].ID })
	return rounds, nil
}

// MyBets lists this wallet's locally recorded bets, newest first.
func (s *RoundService) MyBets(ctx context.Context, limit int) ([]domain.BetRecord, error) {
	records, err := s.bets.ListByParticipant(ctx, s.self, limit)
	if err != nil {
		return nil, fmt.Errorf("round_service: my bets: %w", err)
	}
	return records, nil
}

// cacheRound stores the projection; cache failures are logged, not fatal.
func (s *RoundService) cacheRound(ctx context.Context, round domain.Round) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, round); err != nil {
		s.logger.WarnContext(ctx, "round cache set failed",
			slog.Uint64("round_id", round.ID),
			slog.String("error", err.Error()),
		)
	}
}

// invalidateRound drops the cached projection after a state-changing tx.
func (s *RoundService) invalidateRound(ctx context.Context, roundID uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, roundID); err != nil {
		s.logger.WarnContext(ctx, "round cache invalidate failed",
			slog.Uint64("round_id", roundID),
			slog.String("error", err.Error()),
		)
	}
}

// publish emits a round event on the signal bus; failures are logged only.
func (s *RoundService) publish(ctx context.Context, channel string, event domain.RoundEvent) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// WithClock overrides the service clock. Test hook.
func (s *RoundService) WithClock(now func() time.Time) *RoundService {
	s.now = now
	return s
}
