// Package taskqueue executes arbitrary asynchronous units of work with
// bounded parallelism, automatic retry, and circuit-breaker failure
// containment. It knows nothing about AI providers; callers inject a
// failure classifier for their own error taxonomy.
package taskqueue

import (
	"log/slog"
	"sync"
	"time"
)

// BreakerState represents the state of the circuit breaker.
type BreakerState int

const (
	// BreakerClosed indicates work is admitted normally.
	BreakerClosed BreakerState = iota
	// BreakerOpen indicates submissions are rejected until the cool-down
	// elapses. Reopening is time-based only; there is no half-open probe.
	BreakerOpen
)

// String returns a string representation of the breaker state.
func (s BreakerState) String() string {
	if s == BreakerOpen {
		return "open"
	}
	return "closed"
}

// Breaker is a shared failure counter guarding a struggling backend. Every
// relevant failure increments the counter and every success decrements it by
// at most one (never below zero). At the threshold the breaker opens, rejects
// all new work, and arms a cool-down timer; when the timer fires the breaker
// closes, the counter resets to zero, and queued work resumes.
type Breaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	threshold int
	cooldown  time.Duration
	reopenAt  time.Time
	timer     *time.Timer
	onClose   func()
	now       func() time.Time
}

// NewBreaker creates a closed breaker. onClose, when non-nil, is invoked
// after the cool-down closes the breaker so the owner can resume dispatch.
func NewBreaker(threshold int, cooldown time.Duration, onClose func()) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		state:     BreakerClosed,
		threshold: threshold,
		cooldown:  cooldown,
		onClose:   onClose,
		now:       time.Now,
	}
}

// Allow reports whether new work may be admitted.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeCloseLocked()
	return b.state == BreakerClosed
}

// RecordSuccess decrements the failure counter by at most one.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures > 0 {
		b.failures--
	}
}

// RecordFailure increments the failure counter and opens the breaker at the
// threshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == BreakerClosed && b.failures >= b.threshold {
		b.state = BreakerOpen
		b.reopenAt = b.now().Add(b.cooldown)
		if b.timer != nil {
			b.timer.Stop()
		}
		b.timer = time.AfterFunc(b.cooldown, b.closeAfterCooldown)
		slog.Warn("circuit breaker opened",
			slog.Int("failures", b.failures),
			slog.Int("threshold", b.threshold),
			slog.Duration("cooldown", b.cooldown))
	}
}

// State returns the current breaker state, applying a pending time-based
// close first.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeCloseLocked()
	return b.state
}

// Failures returns the current failure counter.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeCloseLocked()
	return b.failures
}

// Stop cancels the pending cool-down timer, if any.
func (b *Breaker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *Breaker) closeAfterCooldown() {
	b.mu.Lock()
	closed := false
	if b.state == BreakerOpen {
		b.closeLocked()
		closed = true
	}
	onClose := b.onClose
	b.mu.Unlock()
	if closed && onClose != nil {
		onClose()
	}
}

// maybeCloseLocked applies the time-based close when the cool-down has
// elapsed, so behavior does not depend on timer delivery order.
func (b *Breaker) maybeCloseLocked() {
	if b.state == BreakerOpen && !b.reopenAt.IsZero() && !b.now().Before(b.reopenAt) {
		b.closeLocked()
	}
}

func (b *Breaker) closeLocked() {
	b.state = BreakerClosed
	b.failures = 0
	b.reopenAt = time.Time{}
	slog.Info("circuit breaker closed after cool-down")
}
