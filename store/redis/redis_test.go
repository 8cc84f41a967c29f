package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tagcache/codec"
	"github.com/unkn0wn-root/tagcache/store"
	"github.com/unkn0wn-root/tagcache/store/storetest"
)

func newTestStore(t *testing.T, mutate func(*Config)) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := Config{
		Client:      goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
		CloseClient: true,
		Namespace:   "test:cache",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, mr
}

func TestConformance(t *testing.T) {
	storetest.TestSuite(t, func(t *testing.T) store.Store {
		s, _ := newTestStore(t, nil)
		return s
	})
}

func TestConformanceCBOR(t *testing.T) {
	storetest.TestSuite(t, func(t *testing.T) store.Store {
		s, _ := newTestStore(t, func(c *Config) { c.Codec = codec.MustCBOR[store.Record](true) })
		return s
	})
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNilClient)
}

func TestConnectFailureIsUnavailable(t *testing.T) {
	s, mr := newTestStore(t, nil)
	mr.Close()

	err := s.Connect(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, store.ErrUnavailable), "got %v", err)
}

func TestIndexStructuresFollowRecord(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, nil)
	l := int64(30)

	require.NoError(t, s.Upsert(ctx, store.Record{Key: "k", Payload: "v", CreatedAt: 100, Lifetime: &l, Tags: []string{"a", "b"}}))
	require.True(t, mr.Exists("{test:cache}:t:a"))
	require.True(t, mr.Exists("{test:cache}:t:b"))
	score, err := mr.ZScore("{test:cache}:ids", "k")
	require.NoError(t, err)
	require.Equal(t, float64(130), score)

	// Retagging drops the key from the old tag set.
	require.NoError(t, s.Upsert(ctx, store.Record{Key: "k", Payload: "v", CreatedAt: 100, Lifetime: &l, Tags: []string{"b"}}))
	require.False(t, mr.Exists("{test:cache}:t:a"))
	require.True(t, mr.Exists("{test:cache}:t:b"))

	n, err := s.DeleteOne(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.False(t, mr.Exists("{test:cache}:t:b"))
	require.False(t, mr.Exists("{test:cache}:ids"))
}

func TestCorruptRecordSurfacesOnReadButIsReclaimable(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, nil)

	require.NoError(t, s.Upsert(ctx, store.Record{Key: "ok", Tags: []string{}}))
	require.NoError(t, mr.Set("{test:cache}:e:bad", "\xc1not-msgpack"))
	_, err := mr.ZAdd("{test:cache}:ids", 1, "bad")
	require.NoError(t, err)

	_, _, err = s.FindOne(ctx, "bad")
	require.ErrorIs(t, err, errCorrupt)

	n, err := s.DeleteMany(ctx, store.All())
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.False(t, mr.Exists("{test:cache}:e:bad"))
}

func TestDropLeavesOtherNamespacesAlone(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, nil)
	require.NoError(t, mr.Set("other:key", "keep"))
	require.NoError(t, s.Upsert(ctx, store.Record{Key: "k", Tags: []string{"x"}}))

	require.NoError(t, s.DropCollection(ctx))
	require.True(t, mr.Exists("other:key"))
	require.Empty(t, storetest.Keys(t, s, store.All()))
}

func TestDropLeavesNestedNamespacesAlone(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	open := func(ns string) *Store {
		s, err := New(Config{
			Client:      goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
			CloseClient: true,
			Namespace:   ns,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close(ctx) })
		return s
	}
	app, sessions, tagged := open("app"), open("app:sessions"), open("app:t")

	for _, s := range []*Store{app, sessions, tagged} {
		require.NoError(t, s.Upsert(ctx, store.Record{Key: "k", Payload: "v", Tags: []string{"x"}}))
	}
	require.NoError(t, app.DropCollection(ctx))

	_, found, err := app.FindOne(ctx, "k")
	require.NoError(t, err)
	require.False(t, found)
	for _, s := range []*Store{sessions, tagged} {
		rec, found, err := s.FindOne(ctx, "k")
		require.NoError(t, err)
		require.True(t, found)
		require.Equal(t, "v", rec.Payload)
	}
}

func TestAggregateTagsStaysInNamespace(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, nil)
	other, err := New(Config{
		Client:      goredis.NewClient(&goredis.Options{Addr: mr.Addr()}),
		CloseClient: true,
		Namespace:   "test:cache:t",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close(ctx) })

	require.NoError(t, s.Upsert(ctx, store.Record{Key: "k", Tags: []string{"a"}}))
	require.NoError(t, other.Upsert(ctx, store.Record{Key: "k", Tags: []string{"b"}}))

	tags, err := s.AggregateTags(ctx)
	require.NoError(t, err)
	require.Equal(t, []store.TagCount{{Tag: "a", Count: 1}}, tags)
}

func TestNamespaceRejectsBraces(t *testing.T) {
	_, err := New(Config{Client: goredis.NewClient(&goredis.Options{}), Namespace: "a}b"})
	require.ErrorIs(t, err, ErrNamespace)
}

func TestEnsureIndexRejectsUnknownField(t *testing.T) {
	s, _ := newTestStore(t, nil)
	require.Error(t, s.EnsureIndex(context.Background(), "d"))
}
