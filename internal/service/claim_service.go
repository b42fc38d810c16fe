package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/cipherbet/cipherbet/internal/domain"
)

// ClaimService settles rewards: it reveals the round if needed, verifies
// this wallet won and has not yet been paid, and submits the claim that
// releases the proportional share of the escrowed pool.
type ClaimService struct {
	ledger domain.Ledger
	reveal *RevealService
	bets   domain.BetStore
	bus    domain.SignalBus
	logger *slog.Logger
	now    func() time.Time
}

func NewClaimService(
	ledger domain.Ledger,
	reveal *RevealService,
	bets domain.BetStore,
	bus domain.SignalBus,
	logger *slog.Logger,
) *ClaimService {
	return &ClaimService{
		ledger: ledger,
		reveal: reveal,
		bets:   bets,
		bus:    bus,
		logger: logger.With(slog.String("component", "claim_service")),
		now:    time.Now,
	}
}

// Claim settles this wallet's reward for a round. Only the round id is
// required; the asserted reveal values the ledger checks are reproduced
// from the revealed result. Errors are precise: an unresolved round,
// a losing bet, and an already-settled claim each get their own sentinel,
// and only the first successful call pays out.
func (s *ClaimService) Claim(ctx context.Context, roundID uint64) (*big.Int, error) {
	result, err := s.reveal.Reveal(ctx, roundID)
	if err != nil {
		return nil, err
	}

	round, err := s.ledger.GetRoundInfo(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("claim_service: round %d: %w", roundID, err)
	}
	if !round.Resolved {
		return nil, fmt.Errorf("claim_service: round %d: %w", roundID, domain.ErrRoundNotResolved)
	}

	if result.Participant == "" || result.BetUnits == 0 {
		return nil, fmt.Errorf("claim_service: round %d: %w", roundID, domain.ErrNoLocalBet)
	}
	if !result.Won {
		return nil, fmt.Errorf("claim_service: round %d: %w", roundID, domain.ErrNotAWinner)
	}

	// Re-read the claim flag from the ledger rather than trusting the
	// cached result; another process may have settled since the reveal.
	userBet, err := s.ledger.GetUserBet(ctx, roundID, s.reveal.signer.Address().Hex())
	if err != nil {
		return nil, fmt.Errorf("claim_service: round %d: %w", roundID, err)
	}
	if userBet.HasClaimed {
		s.reveal.cache.UpdateClaimed(roundID)
		return nil, fmt.Errorf("claim_service: round %d: %w", roundID, domain.ErrAlreadyClaimed)
	}

	winnerIsYes := result.Winner == domain.WinnerYes
	err = s.ledger.ClaimReward(
		ctx,
		roundID,
		result.RewardWei,
		result.BetUnits,
		result.Choice,
		winnerIsYes,
		result.WinningSideUnits(),
	)
	if err != nil {
		return nil, fmt.Errorf("claim_service: round %d: %w", roundID, err)
	}

	s.reveal.cache.UpdateClaimed(roundID)
	if err := s.bets.MarkClaimed(ctx, roundID, result.Participant); err != nil {
		s.logger.WarnContext(ctx, "claim paid but local record update failed",
			slog.Uint64("round_id", roundID),
			slog.String("error", err.Error()),
		)
	}

	s.publishClaim(ctx, roundID, result)
	s.logger.InfoContext(ctx, "reward claimed",
		slog.Uint64("round_id", roundID),
		slog.String("reward_wei", result.RewardWei.String()),
	)
	return result.RewardWei, nil
}

func (s *ClaimService) publishClaim(ctx context.Context, roundID uint64, result domain.RoundResult) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(domain.RoundEvent{
		ID:          uuid.NewString(),
		Type:        domain.EventRewardClaimed,
		RoundID:     roundID,
		At:          s.now().UTC(),
		Participant: result.Participant,
		Winner:      result.Winner,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelResults, payload); err != nil {
		s.logger.WarnContext(ctx, "claim event publish failed",
			slog.Uint64("round_id", roundID),
			slog.String("error", err.Error()),
		)
	}
}
