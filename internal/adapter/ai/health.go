package ai

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

// healthCache throttles health probes to one per probe window so callers can
// check availability on every request without hammering the backend.
type healthCache struct {
	provider domain.Provider
	ttl      time.Duration

	mu        sync.Mutex
	healthy   bool
	checkedAt time.Time
	now       func() time.Time
}

func newHealthCache(p domain.Provider, ttl time.Duration) *healthCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &healthCache{provider: p, ttl: ttl, now: time.Now}
}

// Healthy returns the cached probe result, refreshing it when the window has
// elapsed. A failed probe marks the provider unavailable until the next one.
func (h *healthCache) Healthy(ctx domain.Context) bool {
	h.mu.Lock()
	if !h.checkedAt.IsZero() && h.now().Sub(h.checkedAt) < h.ttl {
		ok := h.healthy
		h.mu.Unlock()
		return ok
	}
	h.mu.Unlock()

	// Probe outside the lock; a slow backend must not serialize callers.
	ok := h.provider.Healthy(ctx)

	h.mu.Lock()
	h.healthy = ok
	h.checkedAt = h.now()
	h.mu.Unlock()

	if !ok {
		slog.Warn("provider health probe failed",
			slog.String("provider", h.provider.Name()),
			slog.Duration("probe_window", h.ttl))
	}
	return ok
}
