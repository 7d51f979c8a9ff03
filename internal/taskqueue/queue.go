package taskqueue

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/talent-match-engine/internal/adapter/observability"
	"github.com/fairyhunter13/talent-match-engine/internal/domain"
)

// Sentinel errors surfaced by Submit and task futures.
var (
	// ErrCircuitOpen rejects a submission while the breaker is open.
	ErrCircuitOpen = errors.New("circuit open")
	// ErrQueueClosed rejects a submission after Close.
	ErrQueueClosed = errors.New("queue closed")
	// ErrRetriesExhausted wraps the last task error after the final attempt.
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// TaskFunc is one unit of asynchronous work.
type TaskFunc func(ctx context.Context) (any, error)

// Classifier decides, for a task error, whether the task should be retried
// and whether the failure is a backend-health signal that feeds the breaker.
type Classifier func(err error) (retryable, breakerRelevant bool)

func defaultClassifier(error) (bool, bool) { return true, true }

// Stats is a point-in-time snapshot for observability.
type Stats struct {
	Queued          int  `json:"queued"`
	Active          int  `json:"active"`
	BreakerOpen     bool `json:"breaker_open"`
	BreakerFailures int  `json:"breaker_failures"`
}

// Future is the pending result of a submitted task.
type Future struct {
	done   chan struct{}
	result any
	err    error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

func (f *Future) resolve(v any, err error) {
	f.result = v
	f.err = err
	close(f.done)
}

func rejected(err error) *Future {
	f := newFuture()
	f.resolve(nil, err)
	return f
}

// Done returns a channel closed when the task reaches a terminal state.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the task resolves or ctx expires.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type task struct {
	id         string
	fn         TaskFunc
	future     *Future
	ctx        context.Context
	maxRetries int
	attempts   int
	lastErr    error
}

// Config tunes a Queue.
type Config struct {
	// Concurrency is the maximum number of tasks executing at once.
	Concurrency int
	// MaxRetries is the default retry budget per task.
	MaxRetries int
	// InitialDelay seeds the exponential retry backoff:
	// delay = InitialDelay * 2^(attempt-1).
	InitialDelay time.Duration
	// MaxPending caps the waiting list; submissions beyond it are rejected.
	MaxPending int
	// BreakerThreshold opens the breaker at this many accumulated failures.
	BreakerThreshold int
	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration
	// Classify maps task errors to retry/breaker decisions.
	Classify Classifier
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxPending <= 0 {
		c.MaxPending = 1024
	}
	if c.Classify == nil {
		c.Classify = defaultClassifier
	}
	return c
}

// Queue executes submitted tasks FIFO with bounded parallelism. Retried
// tasks are re-inserted at the FRONT of the queue so a transient failure is
// retried before newer unrelated work. Construct one per process and inject
// it; it is not a package singleton.
type Queue struct {
	cfg     Config
	breaker *Breaker

	mu      sync.Mutex
	waiting *list.List // of *task
	active  int
	closed  bool
	entropy *rand.Rand
	wg      sync.WaitGroup
}

// New constructs a Queue and its breaker.
func New(cfg Config) *Queue {
	q := &Queue{
		cfg:     cfg.withDefaults(),
		waiting: list.New(),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	q.breaker = NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, q.dispatch)
	return q
}

// Breaker exposes the queue's breaker for tests and stats.
func (q *Queue) Breaker() *Breaker { return q.breaker }

// NextTaskID returns a sortable unique task id.
func (q *Queue) NextTaskID() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), q.entropy).String()
}

// Submit enqueues work with the default retry budget. The returned Future is
// already rejected when the breaker is open or the queue is closed.
func (q *Queue) Submit(ctx context.Context, taskID string, fn TaskFunc) *Future {
	return q.SubmitWithRetries(ctx, taskID, fn, q.cfg.MaxRetries)
}

// SubmitWithRetries enqueues work with an explicit retry budget.
func (q *Queue) SubmitWithRetries(ctx context.Context, taskID string, fn TaskFunc, maxRetries int) *Future {
	if !q.breaker.Allow() {
		slog.Debug("submission rejected: breaker open", slog.String("task_id", taskID))
		return rejected(fmt.Errorf("op=queue.submit task=%s: %w", taskID, ErrCircuitOpen))
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return rejected(fmt.Errorf("op=queue.submit task=%s: %w", taskID, ErrQueueClosed))
	}
	if q.waiting.Len() >= q.cfg.MaxPending {
		q.mu.Unlock()
		return rejected(fmt.Errorf("op=queue.submit task=%s: %w", taskID, domain.ErrQueueFull))
	}
	t := &task{
		id:         taskID,
		fn:         fn,
		future:     newFuture(),
		ctx:        ctx,
		maxRetries: maxRetries,
	}
	q.waiting.PushBack(t)
	observability.QueueDepth.Set(float64(q.waiting.Len()))
	q.mu.Unlock()

	q.dispatch()
	return t.future
}

// Stats returns a snapshot of queue and breaker state.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	queued := q.waiting.Len()
	active := q.active
	q.mu.Unlock()
	open := q.breaker.State() == BreakerOpen
	observability.BreakerFailures.Set(float64(q.breaker.Failures()))
	if open {
		observability.BreakerOpen.Set(1)
	} else {
		observability.BreakerOpen.Set(0)
	}
	return Stats{
		Queued:          queued,
		Active:          active,
		BreakerOpen:     open,
		BreakerFailures: q.breaker.Failures(),
	}
}

// Close stops admission and waits for in-flight tasks to finish. Waiting
// tasks are rejected.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	for e := q.waiting.Front(); e != nil; e = e.Next() {
		e.Value.(*task).future.resolve(nil, ErrQueueClosed)
	}
	q.waiting.Init()
	observability.QueueDepth.Set(0)
	q.mu.Unlock()
	q.breaker.Stop()
	q.wg.Wait()
}

// dispatch starts waiting tasks while capacity remains and the breaker
// admits work.
func (q *Queue) dispatch() {
	for {
		if q.breaker.State() == BreakerOpen {
			return
		}
		q.mu.Lock()
		if q.closed || q.active >= q.cfg.Concurrency || q.waiting.Len() == 0 {
			q.mu.Unlock()
			return
		}
		front := q.waiting.Remove(q.waiting.Front()).(*task)
		q.active++
		observability.QueueDepth.Set(float64(q.waiting.Len()))
		observability.QueueActive.Set(float64(q.active))
		q.wg.Add(1)
		q.mu.Unlock()

		go q.run(front)
	}
}

func (q *Queue) run(t *task) {
	defer q.wg.Done()

	t.attempts++
	result, err := t.fn(t.ctx)

	if err == nil {
		q.breaker.RecordSuccess()
		t.future.resolve(result, nil)
		q.finishOne()
		return
	}

	t.lastErr = err
	retryable, breakerRelevant := q.cfg.Classify(err)
	if breakerRelevant {
		q.breaker.RecordFailure()
	}

	if !retryable || t.attempts > t.maxRetries {
		slog.Warn("task failed terminally",
			slog.String("task_id", t.id),
			slog.Int("attempts", t.attempts),
			slog.Any("error", err))
		t.future.resolve(nil, fmt.Errorf("op=queue.run task=%s attempts=%d: %w: %w", t.id, t.attempts, ErrRetriesExhausted, err))
		q.finishOne()
		return
	}

	delay := q.retryDelay(t.attempts)
	slog.Debug("task scheduled for retry",
		slog.String("task_id", t.id),
		slog.Int("attempt", t.attempts),
		slog.Duration("delay", delay))
	observability.QueueTaskRetries.Inc()
	q.finishOne()
	time.AfterFunc(delay, func() { q.requeueFront(t) })
}

// retryDelay computes initialDelay * 2^(attempt-1).
func (q *Queue) retryDelay(attempt int) time.Duration {
	d := q.cfg.InitialDelay
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}

func (q *Queue) requeueFront(t *task) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		t.future.resolve(nil, ErrQueueClosed)
		return
	}
	q.waiting.PushFront(t)
	observability.QueueDepth.Set(float64(q.waiting.Len()))
	q.mu.Unlock()
	q.dispatch()
}

func (q *Queue) finishOne() {
	q.mu.Lock()
	q.active--
	observability.QueueActive.Set(float64(q.active))
	q.mu.Unlock()
	q.dispatch()
}
