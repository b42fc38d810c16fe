package service

import (
	"sync"

	"github.com/cipherbet/cipherbet/internal/domain"
)

// ResultCache holds revealed round results in memory so repeat views never
// re-run the decryption protocol. Entries are only written after a fully
// successful reveal and live for the process lifetime.
type ResultCache struct {
	mu      sync.RWMutex
	results map[uint64]domain.RoundResult
}

func NewResultCache() *ResultCache {
	return &ResultCache{results: make(map[uint64]domain.RoundResult)}
}

// Get returns the cached result for a round, if any.
func (c *ResultCache) Get(roundID uint64) (domain.RoundResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.results[roundID]
	return result, ok
}

// Put stores a revealed result.
func (c *ResultCache) Put(result domain.RoundResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[result.RoundID] = result
}

// UpdateClaimed flips the claimed flag on a cached result after settlement.
// Missing entries are ignored.
func (c *ResultCache) UpdateClaimed(roundID uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if result, ok := c.results[roundID]; ok {
		result.Claimed = true
		c.results[roundID] = result
	}
}

// Len reports the number of cached results.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}
