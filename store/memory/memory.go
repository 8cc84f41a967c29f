// Package memory provides an in-process store.Store.
//
// It is not durable. Use it for tests, embedded tools and as the reference
// for the query semantics the networked stores must reproduce.
package memory

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"sort"
	"sync"

	"github.com/unkn0wn-root/tagcache/store"
)

// Store keeps records in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	recs    map[string]store.Record
	indexes map[string]struct{}

	// fail, when set, is consulted before every operation; a non-nil result is
	// returned instead of running the operation. Used to inject faults.
	fail func(op string) error
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		recs:    make(map[string]store.Record),
		indexes: make(map[string]struct{}),
	}
}

// FailWith installs a fault injector. fn receives the operation name
// ("connect", "upsert", "find", "delete", "delete_many", "iterate",
// "ensure_index", "aggregate", "drop") and returns the error to report, or nil
// to let the operation run. Passing nil removes the injector.
func (s *Store) FailWith(fn func(op string) error) {
	s.mu.Lock()
	s.fail = fn
	s.mu.Unlock()
}

// Indexes returns the fields EnsureIndex has been called for, sorted.
func (s *Store) Indexes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.indexes))
	for f := range s.indexes {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}

// check must be called with s.mu held.
func (s *Store) check(op string) error {
	if s.fail != nil {
		return s.fail(op)
	}
	return nil
}

func (s *Store) Connect(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.check("connect")
}

func (s *Store) Upsert(_ context.Context, rec store.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("upsert"); err != nil {
		return err
	}
	s.recs[rec.Key] = rec.Clone()
	return nil
}

func (s *Store) FindOne(_ context.Context, key string) (store.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("find"); err != nil {
		return store.Record{}, false, err
	}
	r, ok := s.recs[key]
	if !ok {
		return store.Record{}, false, nil
	}
	return r.Clone(), true, nil
}

func (s *Store) DeleteOne(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("delete"); err != nil {
		return 0, err
	}
	if _, ok := s.recs[key]; !ok {
		return 0, nil
	}
	delete(s.recs, key)
	return 1, nil
}

func (s *Store) DeleteMany(_ context.Context, f store.Filter) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("delete_many"); err != nil {
		return 0, err
	}
	var n int64
	for k, r := range s.recs {
		if f.Matches(r) {
			delete(s.recs, k)
			n++
		}
	}
	return n, nil
}

// Iterate snapshots the matching records when ranging starts, in key order.
func (s *Store) Iterate(_ context.Context, f store.Filter) iter.Seq2[store.Record, error] {
	return func(yield func(store.Record, error) bool) {
		s.mu.RLock()
		if err := s.check("iterate"); err != nil {
			s.mu.RUnlock()
			yield(store.Record{}, err)
			return
		}
		matched := make([]store.Record, 0, len(s.recs))
		for _, r := range s.recs {
			if f.Matches(r) {
				matched = append(matched, r.Clone())
			}
		}
		s.mu.RUnlock()

		slices.SortFunc(matched, func(a, b store.Record) int { return cmp.Compare(a.Key, b.Key) })
		for _, r := range matched {
			if !yield(r, nil) {
				return
			}
		}
	}
}

func (s *Store) EnsureIndex(_ context.Context, field string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("ensure_index"); err != nil {
		return err
	}
	s.indexes[field] = struct{}{}
	return nil
}

func (s *Store) AggregateTags(context.Context) ([]store.TagCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("aggregate"); err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for _, r := range s.recs {
		for _, t := range r.Tags {
			counts[t]++
		}
	}
	out := make([]store.TagCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, store.TagCount{Tag: t, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out, nil
}

func (s *Store) DropCollection(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("drop"); err != nil {
		return err
	}
	s.recs = make(map[string]store.Record)
	s.indexes = make(map[string]struct{})
	return nil
}

// Close is a no-op; the data stays readable.
func (s *Store) Close(context.Context) error { return nil }
