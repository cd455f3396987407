// Package requestqueue serializes provider calls behind a sliding per-minute
// budget and a minimum spacing between calls.
//
// A Queue runs at most one task at a time. High priority tasks are served
// before normal ones; within a priority tasks run in the order they were
// enqueued. Tasks are never cancelled once enqueued: a caller that stops
// waiting on a Future only stops waiting.
package requestqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	obs "github.com/Eagleeye1811/insightify-sub000/internal/adapter/observability"
	"github.com/Eagleeye1811/insightify-sub000/internal/observability"
)

var (
	// ErrQueueCleared settles tasks that were pending when Clear ran.
	ErrQueueCleared = errors.New("request queue cleared")
	// ErrQueueClosed settles tasks enqueued after Close.
	ErrQueueClosed = errors.New("request queue closed")
	// ErrTaskPanicked wraps a panic recovered from a task.
	ErrTaskPanicked = errors.New("task panicked")
)

// Priority selects where a task is placed in the pending list.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "normal"
}

// Task is a unit of work run by the drain loop.
type Task func(ctx context.Context) (any, error)

// Clock abstracts time for the drain loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Gate reserves a provider call slot shared with other processes. A positive
// wait means no slot is free yet and the caller should retry after it.
type Gate interface {
	Acquire(ctx context.Context) (release func(), wait time.Duration, err error)
}

// Config tunes the queue. Zero values take the defaults (12/min, 2s, 60s).
// A negative MinDelay disables spacing between calls. Gate is optional; when
// set every call also holds a slot from it while it runs.
type Config struct {
	RequestsPerMinute int
	MinDelay          time.Duration
	Window            time.Duration
	Clock             Clock
	Gate              Gate
}

func (c Config) withDefaults() Config {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 12
	}
	if c.MinDelay < 0 {
		c.MinDelay = 0
	} else if c.MinDelay == 0 {
		c.MinDelay = 2 * time.Second
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.Clock == nil {
		c.Clock = realClock{}
	}
	return c
}

// Status is a point-in-time snapshot of the queue.
type Status struct {
	QueueLength          int       `json:"queueLength"`
	Processing           bool      `json:"processing"`
	RequestsInWindow     int       `json:"requestsInLastMinute"`
	MaxRequestsPerMinute int       `json:"maxRequestsPerMinute"`
	WindowStarted        time.Time `json:"windowStarted,omitempty"`
	LastRequest          time.Time `json:"lastRequest,omitempty"`
}

type task struct {
	id         string
	ctx        context.Context
	run        Task
	priority   Priority
	enqueuedAt time.Time
	future     *Future
}

// Queue is a single-consumer priority FIFO with a rate budget.
type Queue struct {
	cfg Config

	mu      sync.Mutex
	high    []*task
	normal  []*task
	running bool
	busy    bool
	closed  bool

	// written only by the drain goroutine, read under mu.
	// starts holds the start times of the calls inside the trailing window,
	// oldest first.
	starts   []time.Time
	lastCall time.Time

	idle chan struct{}
}

// New builds a Queue. The drain goroutine starts on the first Enqueue.
func New(cfg Config) *Queue {
	return &Queue{cfg: cfg.withDefaults()}
}

// Enqueue schedules run and returns a Future that settles after run returns.
// The context is handed to run with its cancellation removed, so request
// scoped values such as the logger survive while the caller may stop waiting.
func (q *Queue) Enqueue(ctx context.Context, run Task, p Priority) *Future {
	if ctx == nil {
		ctx = context.Background()
	}
	f := newFuture()
	t := &task{
		id:         uuid.NewString(),
		ctx:        context.WithoutCancel(ctx),
		run:        run,
		priority:   p,
		enqueuedAt: q.cfg.Clock.Now(),
		future:     f,
	}
	f.id = t.id

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		f.settle(nil, fmt.Errorf("op=requestqueue.enqueue: %w", ErrQueueClosed))
		return f
	}
	if p == PriorityHigh {
		q.high = append(q.high, t)
	} else {
		q.normal = append(q.normal, t)
	}
	depth := len(q.high) + len(q.normal)
	start := !q.running
	if start {
		q.running = true
		q.idle = make(chan struct{})
	}
	q.mu.Unlock()

	obs.SetQueueDepth(depth)
	observability.LoggerFromContext(ctx).Debug("provider task enqueued",
		slog.String("task_id", t.id),
		slog.String("priority", p.String()),
		slog.Int("queue_length", depth))
	if start {
		go q.drain()
	}
	return f
}

// Do enqueues fn and waits for its result.
func Do[T any](ctx context.Context, q *Queue, p Priority, fn func(ctx context.Context) (T, error)) (T, error) {
	f := q.Enqueue(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, p)
	var zero T
	v, err := f.Wait(ctx)
	if err != nil && ctx.Err() != nil {
		observability.LoggerFromContext(ctx).Debug("stopped waiting for provider task",
			slog.String("task_id", f.ID()), slog.Any("error", err))
	}
	if err != nil {
		if tv, ok := v.(T); ok {
			return tv, err
		}
		return zero, err
	}
	tv, ok := v.(T)
	if !ok && v != nil {
		return zero, fmt.Errorf("op=requestqueue.do: unexpected result type %T", v)
	}
	return tv, nil
}

func (q *Queue) drain() {
	clock := q.cfg.Clock
	for {
		q.mu.Lock()
		if len(q.high)+len(q.normal) == 0 {
			q.running = false
			close(q.idle)
			q.mu.Unlock()
			return
		}
		lg := observability.LoggerFromContext(q.head().ctx)
		now := clock.Now()
		q.prune(now)
		if len(q.starts) >= q.cfg.RequestsPerMinute {
			wait := q.starts[0].Add(q.cfg.Window).Sub(now)
			q.mu.Unlock()
			lg.Debug("provider budget reached; waiting for oldest call to leave the window",
				slog.Duration("wait", wait))
			<-clock.After(wait)
			continue
		}
		if !q.lastCall.IsZero() {
			if since := now.Sub(q.lastCall); since < q.cfg.MinDelay {
				q.mu.Unlock()
				<-clock.After(q.cfg.MinDelay - since)
				continue
			}
		}
		ctx := q.head().ctx
		q.mu.Unlock()

		release, ok := q.acquire(ctx, lg)
		if !ok {
			continue
		}

		q.mu.Lock()
		if len(q.high)+len(q.normal) == 0 {
			q.mu.Unlock()
			release()
			continue
		}
		var t *task
		if len(q.high) > 0 {
			t, q.high = q.high[0], q.high[1:]
		} else {
			t, q.normal = q.normal[0], q.normal[1:]
		}
		now = clock.Now()
		q.starts = append(q.starts, now)
		q.lastCall = now
		q.busy = true
		depth := len(q.high) + len(q.normal)
		q.mu.Unlock()

		obs.SetQueueDepth(depth)
		obs.ObserveQueueWait(t.priority.String(), now.Sub(t.enqueuedAt))
		v, err := q.runTask(t)
		release()
		t.future.settle(v, err)

		q.mu.Lock()
		q.busy = false
		q.mu.Unlock()
	}
}

// head returns the task that would run next. Callers hold mu and have
// checked that a task is pending.
func (q *Queue) head() *task {
	if len(q.high) > 0 {
		return q.high[0]
	}
	return q.normal[0]
}

// prune drops start times that have left the trailing window.
func (q *Queue) prune(now time.Time) {
	i := 0
	for i < len(q.starts) && !now.Before(q.starts[i].Add(q.cfg.Window)) {
		i++
	}
	if i > 0 {
		q.starts = append(q.starts[:0], q.starts[i:]...)
	}
}

// acquire takes a slot from the shared gate. ok is false when the gate asked
// the loop to wait; that wait has already elapsed on return. A failing gate
// leaves the local budget in charge.
func (q *Queue) acquire(ctx context.Context, lg *slog.Logger) (release func(), ok bool) {
	noop := func() {}
	if q.cfg.Gate == nil {
		return noop, true
	}
	rel, wait, err := q.cfg.Gate.Acquire(ctx)
	switch {
	case err != nil:
		lg.Warn("shared provider gate unavailable; using local budget only", slog.Any("error", err))
		return noop, true
	case wait > 0:
		lg.Debug("shared provider gate busy", slog.Duration("wait", wait))
		<-q.cfg.Clock.After(wait)
		return nil, false
	case rel == nil:
		return noop, true
	default:
		return rel, true
	}
}

func (q *Queue) runTask(t *task) (v any, err error) {
	lg := observability.LoggerFromContext(t.ctx)
	defer func() {
		if r := recover(); r != nil {
			lg.Error("provider task panicked", slog.String("task_id", t.id), slog.Any("panic", r))
			v, err = nil, fmt.Errorf("op=requestqueue.run: %w: %v", ErrTaskPanicked, r)
		}
	}()
	v, err = t.run(t.ctx)
	if err != nil {
		lg.Warn("provider task failed", slog.String("task_id", t.id), slog.Any("error", err))
	}
	return v, err
}

// Status returns a snapshot of the queue.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.cfg.Clock.Now()
	st := Status{
		QueueLength:          len(q.high) + len(q.normal),
		Processing:           q.busy,
		MaxRequestsPerMinute: q.cfg.RequestsPerMinute,
		LastRequest:          q.lastCall,
	}
	for _, at := range q.starts {
		if now.Before(at.Add(q.cfg.Window)) {
			if st.RequestsInWindow == 0 {
				st.WindowStarted = at
			}
			st.RequestsInWindow++
		}
	}
	return st
}

// Clear rejects every pending task with ErrQueueCleared and returns how many
// were dropped. A task already running is not affected.
func (q *Queue) Clear(ctx context.Context) int {
	q.mu.Lock()
	dropped := append(q.high, q.normal...)
	q.high, q.normal = nil, nil
	q.mu.Unlock()

	for _, t := range dropped {
		t.future.settle(nil, fmt.Errorf("op=requestqueue.clear: %w", ErrQueueCleared))
	}
	obs.SetQueueDepth(0)
	if len(dropped) > 0 {
		observability.LoggerFromContext(ctx).Info("provider queue cleared", slog.Int("dropped", len(dropped)))
	}
	return len(dropped)
}

// Close rejects further enqueues. Pending tasks still run.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
}

// Idle blocks until the drain loop has nothing left to run or ctx is done.
func (q *Queue) Idle(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return nil
	}
	idle := q.idle
	q.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
