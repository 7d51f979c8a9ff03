// Package scorecache sits between the usecase layer and the score store.
// It deduplicates concurrent computations of the same request, serves fresh
// entries without touching providers, refreshes aging entries in the
// background, and falls back to stale entries when recomputation fails.
package scorecache

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fairyhunter13/talent-match-engine/internal/adapter/observability"
	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

// Outcome classifies how a score was served.
type Outcome string

const (
	OutcomeFresh    Outcome = "fresh"
	OutcomeComputed Outcome = "computed"
	OutcomeStale    Outcome = "stale"
)

// ComputeFunc produces a score when no fresh cache entry exists.
// staleAvailable tells the callback that an expired entry can still answer:
// when it is true the callback should surface provider failures instead of
// degrading to a cruder estimate, so the stale entry wins.
type ComputeFunc func(ctx domain.Context, staleAvailable bool) (domain.FinalScore, error)

// TTLFunc maps a score kind to its cache lifetime.
type TTLFunc func(kind domain.ScoreKind) time.Duration

// Cache is the staleness state machine over a ScoreStore.
type Cache struct {
	store          domain.ScoreStore
	ttlFor         TTLFunc
	computeTimeout time.Duration

	group      singleflight.Group
	refreshing sync.Map // key -> struct{}, soft-refresh in flight
	now        func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source. Test hook.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New builds a Cache. computeTimeout bounds each computation regardless of
// the caller's context.
func New(store domain.ScoreStore, ttlFor TTLFunc, computeTimeout time.Duration, opts ...Option) *Cache {
	c := &Cache{
		store:          store,
		ttlFor:         ttlFor,
		computeTimeout: computeTimeout,
		now:            time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetOrCompute returns the score for req, computing it at most once across
// concurrent callers of the same key.
//
// Serving order: fresh entry (with a background refresh once it has passed
// half its lifetime), then a new computation, then a stale entry if the
// computation fails.
func (c *Cache) GetOrCompute(ctx domain.Context, req domain.ScoreRequest, compute ComputeFunc) (domain.FinalScore, Outcome, error) {
	key := req.Key()
	now := c.now()

	entry, getErr := c.store.Get(ctx, key)
	if getErr == nil && entry.FreshAt(now) {
		observability.CacheHitsTotal.WithLabelValues(string(OutcomeFresh)).Inc()
		if c.agingAt(entry, now) {
			c.refreshAsync(req, compute)
		}
		return entry.Payload, OutcomeFresh, nil
	}
	if getErr != nil && !errors.Is(getErr, domain.ErrNotFound) {
		slog.Warn("score cache read failed", slog.String("key", key), slog.Any("error", getErr))
	}

	staleAvailable := getErr == nil
	score, err := c.computeAndStore(ctx, req, compute, staleAvailable)
	if err != nil {
		// Stale fallback: any entry beats no answer, whatever its version.
		if getErr == nil {
			observability.CacheHitsTotal.WithLabelValues(string(OutcomeStale)).Inc()
			observability.StaleServedTotal.Inc()
			slog.Warn("serving stale score after compute failure",
				slog.String("key", key),
				slog.Time("computed_at", entry.ComputedAt),
				slog.Any("error", err))
			return entry.Payload, OutcomeStale, nil
		}
		observability.CacheHitsTotal.WithLabelValues("miss").Inc()
		return domain.FinalScore{}, "", err
	}
	observability.CacheHitsTotal.WithLabelValues(string(OutcomeComputed)).Inc()
	return score, OutcomeComputed, nil
}

// Invalidate drops the entry for req so the next read recomputes.
func (c *Cache) Invalidate(ctx domain.Context, req domain.ScoreRequest) error {
	if err := c.store.Delete(ctx, req.Key()); err != nil {
		return fmt.Errorf("op=scorecache.invalidate: %w", err)
	}
	return nil
}

// agingAt reports whether the fresh entry has passed half its lifetime.
func (c *Cache) agingAt(e domain.CacheEntry, now time.Time) bool {
	life := e.ExpiresAt.Sub(e.ComputedAt)
	if life <= 0 {
		return true
	}
	return now.Sub(e.ComputedAt) >= life/2
}

// refreshAsync recomputes in the background, at most once per key at a time.
// The caller already got a fresh answer; failures here are only logged.
func (c *Cache) refreshAsync(req domain.ScoreRequest, compute ComputeFunc) {
	key := req.Key()
	if _, busy := c.refreshing.LoadOrStore(key, struct{}{}); busy {
		return
	}
	go func() {
		defer c.refreshing.Delete(key)
		ctx, cancel := contextWithTimeout(c.computeTimeout)
		defer cancel()
		if _, err := c.computeAndStore(ctx, req, compute, true); err != nil {
			slog.Debug("background score refresh failed",
				slog.String("key", key), slog.Any("error", err))
		}
	}()
}

// Fallback results carry a short lifetime so the model path reasserts itself
// soon after an outage instead of pinning consumers to the estimate for a
// full TTL.
const fallbackTTL = 15 * time.Minute

// computeAndStore runs compute through singleflight and persists the result.
// A store failure does not discard the computed score.
func (c *Cache) computeAndStore(ctx domain.Context, req domain.ScoreRequest, compute ComputeFunc, staleAvailable bool) (domain.FinalScore, error) {
	key := req.Key()
	v, err, _ := c.group.Do(key, func() (any, error) {
		cctx, cancel := contextWithDeadline(ctx, c.computeTimeout)
		defer cancel()

		score, err := compute(cctx, staleAvailable)
		if err != nil {
			return nil, err
		}

		ttl := c.ttlFor(req.Kind)
		if score.Fallback && ttl > fallbackTTL {
			ttl = fallbackTTL
		}
		now := c.now()
		entry := domain.CacheEntry{
			Key:           key,
			Kind:          req.Kind,
			SubjectID:     req.SubjectID,
			TargetID:      req.TargetID,
			Payload:       score,
			SchemaVersion: domain.CacheSchemaVersion,
			ComputedAt:    now,
			ExpiresAt:     now.Add(ttl),
		}
		if perr := c.store.Put(cctx, entry); perr != nil {
			slog.Warn("score cache write failed", slog.String("key", key), slog.Any("error", perr))
		}
		return score, nil
	})
	if err != nil {
		return domain.FinalScore{}, fmt.Errorf("op=scorecache.compute key=%s: %w", key, err)
	}
	return v.(domain.FinalScore), nil
}
