// Package asynchook runs tagcache.Hooks on a small worker pool so slow hook
// implementations never delay cache operations. Events that do not fit in the
// queue are dropped and counted.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    TouchRejectEvery: 10, // sample logs: ~every 10th rejected touch
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	b, _ := tagcache.New(ctx, tagcache.Options{
//	    Store: mongo.New(mongo.Config{}),
//	    Hooks: hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/tagcache"
)

type Hooks struct {
	inner   tagcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against concurrent sends
	closed  bool
	dropped atomic.Uint64
}

var _ tagcache.Hooks = (*Hooks)(nil)

func New(inner tagcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains the queue and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped returns how many events were discarded because the queue was full
// or the hooks were closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) ConnectFailed(op string, err error) { h.try(func() { h.inner.ConnectFailed(op, err) }) }
func (h *Hooks) IndexEnsureFailed(field string, err error) {
	h.try(func() { h.inner.IndexEnsureFailed(field, err) })
}
func (h *Hooks) TouchRejected(key string, l time.Duration) {
	h.try(func() { h.inner.TouchRejected(key, l) })
}
func (h *Hooks) Cleaned(mode tagcache.CleanMode, tags []string, removed int64) {
	h.try(func() { h.inner.Cleaned(mode, tags, removed) })
}
