package requestqueue

import (
	"context"
	"sync"
)

// Future is the eventual result of an enqueued task.
type Future struct {
	id   string
	once sync.Once
	done chan struct{}
	val  any
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) settle(v any, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// ID identifies the underlying task in logs.
func (f *Future) ID() string { return f.id }

// Wait blocks until the task settles or ctx is done. A done ctx does not
// cancel the task.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
