package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cipherbet/cipherbet/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betSelectCols = `round_id, participant, amount_units, choice,
	amount_wei::text, tx_hash, claimed, created_at`

// Upsert inserts the bet, or accumulates units and wei into an existing
// record for the same (round, participant). The choice and tx hash reflect
// the latest submission.
func (s *BetStore) Upsert(ctx context.Context, bet domain.BetRecord) error {
	const query = `
		INSERT INTO bets (
			round_id, participant, amount_units, choice,
			amount_wei, tx_hash, claimed, created_at
		) VALUES ($1, lower($2), $3, $4, $5::numeric, $6, $7, $8)
		ON CONFLICT (round_id, participant) DO UPDATE SET
			amount_units = bets.amount_units + EXCLUDED.amount_units,
			amount_wei   = bets.amount_wei + EXCLUDED.amount_wei,
			choice       = EXCLUDED.choice,
			tx_hash      = EXCLUDED.tx_hash`

	wei := "0"
	if bet.AmountWei != nil {
		wei = bet.AmountWei.String()
	}
	created := bet.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		bet.RoundID, bet.Participant, bet.AmountUnits, bet.Choice,
		wei, bet.TxHash, bet.Claimed, created,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert bet round=%d: %w", bet.RoundID, err)
	}
	return nil
}

// Get returns the record for (roundID, participant), or domain.ErrNotFound.
func (s *BetStore) Get(ctx context.Context, roundID uint64, participant string) (domain.BetRecord, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets
		WHERE round_id = $1 AND participant = lower($2)`

	bet, err := scanBet(s.pool.QueryRow(ctx, query, roundID, participant))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.BetRecord{}, fmt.Errorf("postgres: bet round=%d participant=%s: %w", roundID, participant, domain.ErrNotFound)
		}
		return domain.BetRecord{}, fmt.Errorf("postgres: get bet round=%d: %w", roundID, err)
	}
	return bet, nil
}

// MarkClaimed flips the claimed flag. Marking a missing record returns
// domain.ErrNotFound.
func (s *BetStore) MarkClaimed(ctx context.Context, roundID uint64, participant string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE bets SET claimed = TRUE WHERE round_id = $1 AND participant = lower($2)`,
		roundID, participant,
	)
	if err != nil {
		return fmt.Errorf("postgres: mark claimed round=%d: %w", roundID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: bet round=%d participant=%s: %w", roundID, participant, domain.ErrNotFound)
	}
	return nil
}

// ListByParticipant returns all of one address's records, newest first.
func (s *BetStore) ListByParticipant(ctx context.Context, participant string, limit int) ([]domain.BetRecord, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets
		WHERE participant = lower($1)
		ORDER BY created_at DESC`
	args := []any{participant}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for %s: %w", participant, err)
	}
	defer rows.Close()

	var bets []domain.BetRecord
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, bet)
	}
	return bets, rows.Err()
}

// ListBefore returns all records created strictly before the cutoff,
// oldest first. Used by the cold-storage archiver.
func (s *BetStore) ListBefore(ctx context.Context, before time.Time) ([]domain.BetRecord, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets
		WHERE created_at < $1
		ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	var bets []domain.BetRecord
	for rows.Next() {
		bet, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, bet)
	}
	return bets, rows.Err()
}

func scanBet(row pgx.Row) (domain.BetRecord, error) {
	var (
		bet domain.BetRecord
		wei string
	)
	if err := row.Scan(
		&bet.RoundID, &bet.Participant, &bet.AmountUnits, &bet.Choice,
		&wei, &bet.TxHash, &bet.Claimed, &bet.CreatedAt,
	); err != nil {
		return domain.BetRecord{}, err
	}

	amount, ok := new(big.Int).SetString(wei, 10)
	if !ok {
		return domain.BetRecord{}, fmt.Errorf("invalid wei amount %q", wei)
	}
	bet.AmountWei = amount
	return bet, nil
}
