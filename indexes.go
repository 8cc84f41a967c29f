package tagcache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/tagcache/store"
)

// IndexPolicy selects when the backend ensures its store indexes.
type IndexPolicy int

const (
	// IndexOnce ensures the indexes after the first successful write and
	// again after later writes until one attempt succeeds.
	IndexOnce IndexPolicy = iota
	// IndexEveryWrite ensures the indexes after every successful write.
	IndexEveryWrite
	// IndexEager ensures the indexes in New and fails construction if that
	// does not work. After a Drop it behaves like IndexOnce.
	IndexEager
)

func (p IndexPolicy) String() string {
	switch p {
	case IndexOnce:
		return "once"
	case IndexEveryWrite:
		return "every_write"
	case IndexEager:
		return "eager"
	default:
		return fmt.Sprintf("IndexPolicy(%d)", int(p))
	}
}

// ParseIndexPolicy parses the names returned by String. Empty means IndexOnce.
func ParseIndexPolicy(s string) (IndexPolicy, error) {
	switch s {
	case "", "once":
		return IndexOnce, nil
	case "every_write":
		return IndexEveryWrite, nil
	case "eager":
		return IndexEager, nil
	}
	return 0, fmt.Errorf("unknown index policy %q", s)
}

// indexedFields are the record fields queried by tag and age.
var indexedFields = []string{store.FieldTags, store.FieldCreatedAt}

// indexMaintainer keeps the tag and created_at indexes in place. Failures
// never fail the write that triggered them; they are logged and hooked.
type indexMaintainer struct {
	st     store.Store
	policy IndexPolicy
	log    Logger
	hooks  Hooks

	done atomic.Bool
	sf   singleflight.Group
}

func newIndexMaintainer(st store.Store, policy IndexPolicy, log Logger, hooks Hooks) *indexMaintainer {
	return &indexMaintainer{st: st, policy: policy, log: log, hooks: hooks}
}

// afterWrite runs once a write has been persisted.
func (m *indexMaintainer) afterWrite(ctx context.Context) {
	if m.policy != IndexEveryWrite && m.done.Load() {
		return
	}
	_ = m.ensure(ctx)
}

// ensure creates every index. Concurrent callers share one attempt.
func (m *indexMaintainer) ensure(ctx context.Context) error {
	_, err, _ := m.sf.Do("ensure", func() (any, error) {
		var errs []error
		for _, f := range indexedFields {
			if err := m.st.EnsureIndex(ctx, f); err != nil {
				m.log.Warn("tagcache: ensure index failed", Fields{"field": f, "err": err})
				m.hooks.IndexEnsureFailed(f, err)
				errs = append(errs, fmt.Errorf("index %q: %w", f, err))
			}
		}
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		m.done.Store(true)
		return nil, nil
	})
	return err
}

// reset forgets earlier successes, e.g. after the collection was dropped.
func (m *indexMaintainer) reset() { m.done.Store(false) }
