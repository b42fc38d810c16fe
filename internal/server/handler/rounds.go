package handler

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/cipherbet/cipherbet/internal/service"
)

// RoundHandler serves the round lifecycle API: listing, creation, betting,
// resolution, result reveal, and claim settlement.
type RoundHandler struct {
	rounds *service.RoundService
	reveal *service.RevealService
	claims *service.ClaimService
	logger *slog.Logger
}

// NewRoundHandler creates a RoundHandler over the three round services.
func NewRoundHandler(
	rounds *service.RoundService,
	reveal *service.RevealService,
	claims *service.ClaimService,
	logger *slog.Logger,
) *RoundHandler {
	return &RoundHandler{
		rounds: rounds,
		reveal: reveal,
		claims: claims,
		logger: logger,
	}
}

// ListRounds returns every round, newest first.
// GET /api/rounds
func (h *RoundHandler) ListRounds(w http.ResponseWriter, r *http.Request) {
	rounds, err := h.rounds.ListRounds(r.Context())
	if err != nil {
		logHandler(h.logger, "list_rounds").ErrorContext(r.Context(), "list failed",
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rounds": rounds})
}

// GetRound returns one round projection.
// GET /api/rounds/{id}
func (h *RoundHandler) GetRound(w http.ResponseWriter, r *http.Request) {
	id, err := roundIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	round, err := h.rounds.GetRound(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// createRoundRequest is the POST /api/rounds body.
type createRoundRequest struct {
	Name    string    `json:"name"`
	EndTime time.Time `json:"end_time"`
}

// CreateRound creates a new round.
// POST /api/rounds
func (h *RoundHandler) CreateRound(w http.ResponseWriter, r *http.Request) {
	var req createRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	round, err := h.rounds.CreateRound(r.Context(), req.Name, req.EndTime)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

// placeBetRequest is the POST /api/rounds/{id}/bets body. ValueWei is a
// decimal string because wei amounts overflow JSON numbers.
type placeBetRequest struct {
	AmountUnits int64  `json:"amount_units"`
	Choice      bool   `json:"choice"`
	ValueWei    string `json:"value_wei"`
}

// PlaceBet encrypts and submits a bet into an open round.
// POST /api/rounds/{id}/bets
func (h *RoundHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id, err := roundIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	value, ok := new(big.Int).SetString(req.ValueWei, 10)
	if !ok {
		writeError(w, http.StatusBadRequest, "value_wei must be a decimal string")
		return
	}

	record, err := h.rounds.PlaceBet(r.Context(), id, req.AmountUnits, req.Choice, value)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// ResolveRound resolves an ended round. Resolving an already-resolved round
// succeeds with no effect.
// POST /api/rounds/{id}/resolve
func (h *RoundHandler) ResolveRound(w http.ResponseWriter, r *http.Request) {
	id, err := roundIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	if err := h.rounds.Resolve(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"round_id": id, "resolved": true})
}

// GetResult reveals (or serves the cached) decrypted outcome of a round,
// including this wallet's reward when it participated.
// GET /api/rounds/{id}/result
func (h *RoundHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	id, err := roundIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	result, err := h.reveal.Reveal(r.Context(), id)
	if err != nil {
		logHandler(h.logger, "get_result").ErrorContext(r.Context(), "reveal failed",
			slog.Uint64("round_id", id),
			slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Claim settles this wallet's reward for a round.
// POST /api/rounds/{id}/claim
func (h *RoundHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := roundIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round id")
		return
	}

	reward, err := h.claims.Claim(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"round_id":   id,
		"reward_wei": reward.String(),
	})
}

// MyBets lists this wallet's recorded bets, newest first.
// GET /api/bets
func (h *RoundHandler) MyBets(w http.ResponseWriter, r *http.Request) {
	records, err := h.rounds.MyBets(r.Context(), parseLimit(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": records})
}
