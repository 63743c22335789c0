package x402

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// SettlementCache provides idempotency for settle operations. Successful
// settlement responses are cached by payload hash for a TTL, and concurrent
// settles of the same payload coalesce onto the first in-flight attempt.
// This protects against duplicate on-chain submissions when a resource
// server retries after a timeout.
//
// The cache is per-process; cross-replica double-settlement protection comes
// from the rails themselves (nonce, signature, and sequence uniqueness).
type SettlementCache struct {
	mu       sync.Mutex
	entries  map[string]settlementEntry
	inFlight map[string]chan struct{}
	ttl      time.Duration
}

type settlementEntry struct {
	response *SettleResponse
	expiry   time.Time
}

// NewSettlementCache creates a settlement cache with the given TTL.
func NewSettlementCache(ttl time.Duration) *SettlementCache {
	return &SettlementCache{
		entries:  make(map[string]settlementEntry),
		inFlight: make(map[string]chan struct{}),
		ttl:      ttl,
	}
}

// GenerateSettlementKey derives the cache key from raw payload bytes. The
// payload includes the authorization signature and nonce, so the hash is
// unique per payment attempt.
func GenerateSettlementKey(payloadBytes []byte) string {
	sum := sha256.Sum256(payloadBytes)
	return hex.EncodeToString(sum[:])
}

// SettlementStatus is the result of a cache check.
type SettlementStatus int

const (
	// StatusNotFound means no cached result and no in-flight request; the
	// caller now owns the in-flight marker and must Complete or Fail it.
	StatusNotFound SettlementStatus = iota
	// StatusCached means a cached result was returned.
	StatusCached
	// StatusInFlight means another settle for the same payload is running.
	StatusInFlight
)

// CheckAndMark atomically checks the cache and, when the key is unknown,
// marks it in-flight. Exactly one of the three statuses is returned:
// cached result, a wait channel for an in-flight attempt, or a done channel
// the caller must resolve.
func (c *SettlementCache) CheckAndMark(key string) (SettlementStatus, *SettleResponse, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		if time.Now().Before(entry.expiry) {
			return StatusCached, entry.response, nil
		}
		delete(c.entries, key)
	}

	if done, ok := c.inFlight[key]; ok {
		return StatusInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[key] = done
	return StatusNotFound, nil, done
}

// WaitForResult blocks until the in-flight attempt completes or the context
// is cancelled. A nil result with nil error means the attempt failed without
// caching and the settle may be retried.
func (c *SettlementCache) WaitForResult(ctx context.Context, key string, done chan struct{}) (*SettleResponse, error) {
	select {
	case <-done:
		return c.Get(key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the cached response for a key, or nil if absent or expired.
func (c *SettlementCache) Get(key string) *SettleResponse {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	if time.Now().After(entry.expiry) {
		delete(c.entries, key)
		return nil
	}
	return entry.response
}

// Complete caches the response, releases the in-flight marker, and wakes
// any waiters.
func (c *SettlementCache) Complete(key string, response *SettleResponse, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = settlementEntry{response: response, expiry: time.Now().Add(c.ttl)}
	delete(c.inFlight, key)
	close(done)

	c.evictExpiredLocked()
}

// Fail releases the in-flight marker without caching, allowing a retry.
// Waiters wake and observe the missing entry.
func (c *SettlementCache) Fail(key string, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, key)
	close(done)
}

func (c *SettlementCache) evictExpiredLocked() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expiry) {
			delete(c.entries, key)
		}
	}
}
