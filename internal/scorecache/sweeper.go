package scorecache

import (
	"log/slog"
	"time"

	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

// Expired entries are kept around this long for stale serving before the
// sweeper drops them for good.
const sweepGrace = 7 * 24 * time.Hour

// Sweeper purges long-expired cache entries on an interval.
type Sweeper struct {
	Store    domain.ScoreStore
	Interval time.Duration
}

// NewSweeper creates a sweeper over store.
func NewSweeper(store domain.ScoreStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Sweeper{Store: store, Interval: interval}
}

// SweepOnce removes entries whose expiry plus the stale-serving grace window
// is in the past.
func (s *Sweeper) SweepOnce(ctx domain.Context) error {
	cutoff := time.Now().Add(-sweepGrace)
	removed, err := s.Store.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		slog.Info("score cache sweep completed",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff))
	}
	return nil
}

// RunPeriodic sweeps until ctx is cancelled. Runs one sweep immediately.
func (s *Sweeper) RunPeriodic(ctx domain.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	if err := s.SweepOnce(ctx); err != nil {
		slog.Error("initial cache sweep failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cache sweeper stopping")
			return
		case <-ticker.C:
			if err := s.SweepOnce(ctx); err != nil {
				slog.Error("periodic cache sweep failed", slog.Any("error", err))
			}
		}
	}
}
