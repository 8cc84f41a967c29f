// Package lazy holds a value that is created on first use and shared after.
package lazy

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cell creates its value once. Concurrent callers that arrive before the value
// exists share a single call to the init function. A failed init is not
// remembered: the next Get makes one new attempt.
//
// init runs detached from the cancellation of whichever caller started it and
// is bounded by the Cell's timeout instead. Each caller still stops waiting
// when its own context ends.
type Cell[T any] struct {
	init    func(ctx context.Context) (T, error)
	timeout time.Duration

	v  atomic.Pointer[T]
	sf singleflight.Group
	mu sync.Mutex // serializes Reset against a finishing init
}

// New returns a Cell that builds its value with init. A timeout of zero leaves
// init unbounded.
func New[T any](timeout time.Duration, init func(ctx context.Context) (T, error)) *Cell[T] {
	return &Cell[T]{init: init, timeout: timeout}
}

// Get returns the value, creating it if needed.
func (c *Cell[T]) Get(ctx context.Context) (T, error) {
	if p := c.v.Load(); p != nil {
		return *p, nil
	}
	ch := c.sf.DoChan("init", func() (any, error) {
		if p := c.v.Load(); p != nil {
			return *p, nil
		}
		ictx := context.WithoutCancel(ctx)
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ictx, cancel = context.WithTimeout(ictx, c.timeout)
			defer cancel()
		}
		v, err := c.init(ictx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.v.Store(&v)
		c.mu.Unlock()
		return v, nil
	})
	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// Peek returns the value if it has been created.
func (c *Cell[T]) Peek() (T, bool) {
	if p := c.v.Load(); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// Reset forgets the value and returns it, if any. The next Get re-runs init.
func (c *Cell[T]) Reset() (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.v.Swap(nil)
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}
