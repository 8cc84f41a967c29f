// Package storetest is a conformance suite for store.Store implementations.
//
// Every implementation must pass TestSuite against a fresh, empty store:
//
//	func TestConformance(t *testing.T) {
//	    storetest.TestSuite(t, func(t *testing.T) store.Store { return newStore(t) })
//	}
package storetest

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tagcache/store"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) store.Store

// TestSuite runs every conformance test.
func TestSuite(t *testing.T, newStore Factory) {
	t.Run("UpsertFindReplace", func(t *testing.T) { testUpsertFindReplace(t, newStore(t)) })
	t.Run("FindMiss", func(t *testing.T) { testFindMiss(t, newStore(t)) })
	t.Run("DeleteOne", func(t *testing.T) { testDeleteOne(t, newStore(t)) })
	t.Run("DeleteManyTags", func(t *testing.T) { testDeleteManyTags(t, newStore) })
	t.Run("DeleteManyExpired", func(t *testing.T) { testDeleteManyExpired(t, newStore(t)) })
	t.Run("IterateRestartable", func(t *testing.T) { testIterateRestartable(t, newStore(t)) })
	t.Run("AggregateTags", func(t *testing.T) { testAggregateTags(t, newStore(t)) })
	t.Run("EnsureIndexIdempotent", func(t *testing.T) { testEnsureIndexIdempotent(t, newStore(t)) })
	t.Run("DropCollection", func(t *testing.T) { testDropCollection(t, newStore(t)) })
}

func secs(n int64) *int64 { return &n }

func rec(key string, tags ...string) store.Record {
	if tags == nil {
		tags = []string{}
	}
	return store.Record{Key: key, Payload: "v:" + key, CreatedAt: 1_000, Lifetime: secs(60), Tags: tags}
}

func mustUpsert(t *testing.T, s store.Store, recs ...store.Record) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, s.Upsert(context.Background(), r), "Upsert(%q)", r.Key)
	}
}

// Keys collects the keys yielded by Iterate, sorted.
func Keys(t *testing.T, s store.Store, f store.Filter) []string {
	t.Helper()
	out := []string{}
	for r, err := range s.Iterate(context.Background(), f) {
		require.NoError(t, err)
		out = append(out, r.Key)
	}
	sort.Strings(out)
	return out
}

func testUpsertFindReplace(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	mustUpsert(t, s, store.Record{Key: "k", Payload: "one", CreatedAt: 10, Lifetime: secs(5), Tags: []string{"a", "b"}})
	got, ok, err := s.FindOne(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "one", got.Payload)
	require.Equal(t, int64(10), got.CreatedAt)
	require.Equal(t, int64(5), *got.Lifetime)
	require.ElementsMatch(t, []string{"a", "b"}, got.Tags)

	// Full replace: lifetime becomes infinite and the old tags disappear.
	mustUpsert(t, s, store.Record{Key: "k", Payload: "two", CreatedAt: 20, Lifetime: nil, Tags: []string{"c"}})
	got, ok, err = s.FindOne(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "two", got.Payload)
	require.Equal(t, int64(20), got.CreatedAt)
	require.True(t, got.Infinite())
	require.Equal(t, []string{"c"}, got.Tags)

	require.Empty(t, Keys(t, s, store.TagsAny("a", "b")))
	require.Equal(t, []string{"k"}, Keys(t, s, store.TagsAll("c")))
}

func testFindMiss(t *testing.T, s store.Store) {
	got, ok, err := s.FindOne(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, store.Record{}, got)
}

func testDeleteOne(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustUpsert(t, s, rec("a", "x"), rec("b", "x"))

	n, err := s.DeleteOne(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = s.DeleteOne(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, int64(0), n)

	require.Equal(t, []string{"b"}, Keys(t, s, store.All()))
	require.Equal(t, []string{"b"}, Keys(t, s, store.TagsAll("x")))
}

func testDeleteManyTags(t *testing.T, newStore Factory) {
	seed := func(t *testing.T) store.Store {
		s := newStore(t)
		mustUpsert(t, s,
			rec("ab", "a", "b"),
			rec("a", "a"),
			rec("b", "b"),
			rec("ac", "a", "c"),
			rec("c", "c"),
			rec("none"),
		)
		return s
	}
	cases := []struct {
		name      string
		f         store.Filter
		removed   int64
		survivors []string
	}{
		{"all-of", store.TagsAll("a", "b"), 1, []string{"a", "ac", "b", "c", "none"}},
		{"any-of", store.TagsAny("a", "b"), 4, []string{"c", "none"}},
		{"none-of", store.TagsNone("a"), 3, []string{"a", "ab", "ac"}},
		{"all-of-empty", store.TagsAll(), 0, []string{"a", "ab", "ac", "b", "c", "none"}},
		{"any-of-empty", store.TagsAny(), 0, []string{"a", "ab", "ac", "b", "c", "none"}},
		{"everything", store.All(), 6, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := seed(t)
			n, err := s.DeleteMany(context.Background(), tc.f)
			require.NoError(t, err)
			require.Equal(t, tc.removed, n)
			require.Equal(t, tc.survivors, Keys(t, s, store.All()))
		})
	}
}

func testDeleteManyExpired(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustUpsert(t, s,
		store.Record{Key: "old", CreatedAt: 100, Lifetime: secs(10), Tags: []string{}},
		store.Record{Key: "edge", CreatedAt: 100, Lifetime: secs(100), Tags: []string{}},
		store.Record{Key: "fresh", CreatedAt: 150, Lifetime: secs(100), Tags: []string{}},
		store.Record{Key: "forever", CreatedAt: 1, Lifetime: nil, Tags: []string{}},
		store.Record{Key: "zero", CreatedAt: 1, Lifetime: secs(0), Tags: []string{}},
		store.Record{Key: "forced", CreatedAt: 199, Lifetime: secs(-1), Tags: []string{}},
	)

	require.Equal(t, []string{"forced", "old"}, Keys(t, s, store.Expired(200)))

	n, err := s.DeleteMany(ctx, store.Expired(200))
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.Equal(t, []string{"edge", "forever", "fresh", "zero"}, Keys(t, s, store.All()))
}

func testIterateRestartable(t *testing.T, s store.Store) {
	mustUpsert(t, s, rec("1", "t"), rec("2", "t"), rec("3"))
	seq := s.Iterate(context.Background(), store.TagsAll("t"))

	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	require.Equal(t, 2, count())
	require.Equal(t, 2, count())

	// Early break must not leak or fail.
	for _, err := range s.Iterate(context.Background(), store.All()) {
		require.NoError(t, err)
		break
	}
}

func testAggregateTags(t *testing.T, s store.Store) {
	mustUpsert(t, s, rec("1", "red", "blue"), rec("2", "red"), rec("3"))
	counts, err := s.AggregateTags(context.Background())
	require.NoError(t, err)

	got := map[string]int64{}
	for _, c := range counts {
		got[c.Tag] = c.Count
	}
	require.Equal(t, map[string]int64{"red": 2, "blue": 1}, got)
}

func testEnsureIndexIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustUpsert(t, s, rec("1", "a"))
	for i := 0; i < 2; i++ {
		require.NoError(t, s.EnsureIndex(ctx, store.FieldTags))
		require.NoError(t, s.EnsureIndex(ctx, store.FieldCreatedAt))
	}
}

func testDropCollection(t *testing.T, s store.Store) {
	ctx := context.Background()
	mustUpsert(t, s, rec("1", "a"), rec("2"))
	require.NoError(t, s.DropCollection(ctx))
	require.Empty(t, Keys(t, s, store.All()))

	counts, err := s.AggregateTags(ctx)
	require.NoError(t, err)
	require.Empty(t, counts)

	// The store stays usable after a drop.
	mustUpsert(t, s, rec("3"))
	require.Equal(t, []string{"3"}, Keys(t, s, store.All()))
}
