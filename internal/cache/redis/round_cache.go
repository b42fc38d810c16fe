package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cipherbet/cipherbet/internal/domain"
)

// roundTTL keeps projections fresh without hammering the RPC endpoint; any
// state-changing tx invalidates the entry early.
const roundTTL = 30 * time.Second

// RoundCache implements domain.RoundCache using Redis hashes with
// JSON-serialized round projections.
//
// Key schema:
//
//	round:{id} - hash with field "data" containing JSON
type RoundCache struct {
	rdb *redis.Client
}

// NewRoundCache creates a RoundCache backed by the given Client.
func NewRoundCache(c *Client) *RoundCache {
	return &RoundCache{rdb: c.Underlying()}
}

func roundKey(id uint64) string { return "round:" + strconv.FormatUint(id, 10) }

// Set stores a round projection with a short TTL.
func (rc *RoundCache) Set(ctx context.Context, round domain.Round) error {
	data, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("redis: marshal round %d: %w", round.ID, err)
	}

	key := roundKey(round.ID)
	pipe := rc.rdb.TxPipeline()
	pipe.HSet(ctx, key, "data", data)
	pipe.Expire(ctx, key, roundTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set round %d: %w", round.ID, err)
	}
	return nil
}

// Get retrieves a round projection by id.
// It returns domain.ErrNotFound when the key does not exist.
func (rc *RoundCache) Get(ctx context.Context, id uint64) (domain.Round, error) {
	data, err := rc.rdb.HGet(ctx, roundKey(id), "data").Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Round{}, domain.ErrNotFound
		}
		return domain.Round{}, fmt.Errorf("redis: get round %d: %w", id, err)
	}

	var round domain.Round
	if err := json.Unmarshal(data, &round); err != nil {
		return domain.Round{}, fmt.Errorf("redis: unmarshal round %d: %w", id, err)
	}
	return round, nil
}

// Invalidate drops the cached projection after a state-changing tx.
func (rc *RoundCache) Invalidate(ctx context.Context, id uint64) error {
	if err := rc.rdb.Del(ctx, roundKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate round %d: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.RoundCache = (*RoundCache)(nil)
