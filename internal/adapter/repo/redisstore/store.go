// Package redisstore persists score cache entries in Redis as JSON documents.
package redisstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

const keyPrefix = "score:"

// Extra lifetime past the logical expiry so expired entries remain available
// for stale serving until the sweeper (or Redis itself) drops them.
const staleGrace = 7 * 24 * time.Hour

// Store implements domain.ScoreStore on Redis.
type Store struct {
	rdb *redis.Client
}

// New constructs a Store around an existing client.
func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Get loads one cache entry by key.
func (s *Store) Get(ctx domain.Context, key string) (domain.CacheEntry, error) {
	b, err := s.rdb.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.CacheEntry{}, fmt.Errorf("op=redisstore.get: %w", domain.ErrNotFound)
		}
		return domain.CacheEntry{}, fmt.Errorf("op=redisstore.get: %w", err)
	}
	var e domain.CacheEntry
	if err := json.Unmarshal(b, &e); err != nil {
		return domain.CacheEntry{}, fmt.Errorf("op=redisstore.get: decode: %w", err)
	}
	return e, nil
}

// Put upserts a cache entry. The Redis TTL is the logical expiry plus a
// grace window so stale serving keeps working after expiry.
func (s *Store) Put(ctx domain.Context, e domain.CacheEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("op=redisstore.put: encode: %w", err)
	}
	ttl := time.Until(e.ExpiresAt) + staleGrace
	if ttl <= 0 {
		ttl = staleGrace
	}
	if err := s.rdb.Set(ctx, keyPrefix+e.Key, b, ttl).Err(); err != nil {
		return fmt.Errorf("op=redisstore.put: %w", err)
	}
	return nil
}

// Delete removes one cache entry; a missing key is not an error.
func (s *Store) Delete(ctx domain.Context, key string) error {
	if err := s.rdb.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("op=redisstore.delete: %w", err)
	}
	return nil
}

// DeleteExpiredBefore scans for entries whose logical expiry predates cutoff.
// Redis also expires keys on its own; this keeps the sweep contract uniform
// across stores.
func (s *Store) DeleteExpiredBefore(ctx domain.Context, cutoff time.Time) (int64, error) {
	var removed int64
	iter := s.rdb.Scan(ctx, 0, keyPrefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		b, err := s.rdb.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var e domain.CacheEntry
		if err := json.Unmarshal(b, &e); err != nil {
			continue
		}
		if e.ExpiresAt.Before(cutoff) {
			if err := s.rdb.Del(ctx, key).Err(); err == nil {
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("op=redisstore.delete_expired: %w", err)
	}
	return removed, nil
}
