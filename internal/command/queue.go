package command

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrQueueClosed is returned for commands submitted after, or still pending
// at, Close.
var ErrQueueClosed = errors.New("command queue closed")

// Executor runs a command against the engine.
type Executor interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// Inline runs commands on the caller's goroutine. It is only correct when the
// caller is also the goroutine that ticks the engine.
type Inline struct{}

func (Inline) Do(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

const (
	jobPending int32 = iota
	jobClaimed
	jobAbandoned
)

type job struct {
	ctx   context.Context
	fn    func(context.Context) error
	done  chan error
	state atomic.Int32
}

// Queue defers commands until the tick loop drains it between ticks, so a
// command never observes a half-finished tick.
type Queue struct {
	mu      sync.Mutex
	pending []*job
	closed  bool
}

// NewQueue constructs an empty Queue.
func NewQueue() *Queue { return &Queue{} }

// Do enqueues fn and waits for it to run. If ctx ends before the queue
// reaches fn, fn is skipped and ctx.Err() returned.
func (q *Queue) Do(ctx context.Context, fn func(context.Context) error) error {
	j := &job{ctx: ctx, fn: fn, done: make(chan error, 1)}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.pending = append(q.pending, j)
	q.mu.Unlock()

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobPending, jobAbandoned) {
			return ctx.Err()
		}
		// Already running; its result is authoritative.
		return <-j.done
	}
}

// Drain runs every pending command in submission order and reports how many
// ran.
func (q *Queue) Drain() int {
	q.mu.Lock()
	jobs := q.pending
	q.pending = nil
	q.mu.Unlock()

	n := 0
	for _, j := range jobs {
		if !j.state.CompareAndSwap(jobPending, jobClaimed) {
			continue
		}
		j.done <- j.fn(j.ctx)
		n++
	}
	return n
}

// Len reports the number of queued commands, including abandoned ones not yet
// discarded by Drain.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close fails pending and future commands with ErrQueueClosed.
func (q *Queue) Close() {
	q.mu.Lock()
	jobs := q.pending
	q.pending = nil
	q.closed = true
	q.mu.Unlock()

	for _, j := range jobs {
		if j.state.CompareAndSwap(jobPending, jobClaimed) {
			j.done <- ErrQueueClosed
		}
	}
}
