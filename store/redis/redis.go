// Package redis implements store.Store on Redis.
//
// Layout under the namespace <ns>:
//
//	{<ns>}:e:<key>  encoded record (Codec, msgpack by default)
//	{<ns>}:ids      sorted set of keys scored by created_at + l (+inf when infinite)
//	{<ns>}:t:<tag>  set of keys carrying tag
//
// The braces close the namespace, so a namespace that extends another one
// ("app" and "app:sessions") never shares a key prefix with it. They also make
// the namespace a cluster hash tag: every key of one store lives in one slot,
// which multi-key commands (SINTER, MULTI) need.
//
// The sorted set and the tag sets are the indexes: they are maintained inside
// the same MULTI/EXEC as the record itself, so EnsureIndex has nothing to do.
// Tag sets vanish with their last member, which is what AggregateTags relies on.
package redis

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/tagcache/codec"
	"github.com/unkn0wn-root/tagcache/internal/lazy"
	"github.com/unkn0wn-root/tagcache/internal/util"
	"github.com/unkn0wn-root/tagcache/store"
)

const (
	defaultNamespace = "tagcache"
	defaultRetries   = 8
	defaultBatch     = 256
	defaultTimeout   = 10 * time.Second
)

var (
	ErrNilClient = errors.New("redis store: nil client")
	ErrNamespace = errors.New("redis store: namespace must not contain '{' or '}'")

	errCorrupt = errors.New("redis store: corrupt record")
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this store exclusively owns the client

	Namespace  string                    // key prefix without braces; default "tagcache"
	Codec      codec.Codec[store.Record] // default codec.Msgpack
	MaxRetries int                       // optimistic transaction retries; default 8
	BatchSize  int                       // keys per MGET/SCAN page; default 256

	ConnectTimeout time.Duration // bound on the first ping; default 10s
}

type Store struct {
	rdb         goredis.UniversalClient
	closeClient bool
	ns          string // "{namespace}"
	codec       codec.Codec[store.Record]
	retries     int
	batch       int

	conn *lazy.Cell[struct{}]
}

var _ store.Store = (*Store)(nil)

// New wraps cfg.Client. No I/O happens until the first operation.
func New(cfg Config) (*Store, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = defaultNamespace
	}
	if strings.ContainsAny(ns, "{}") {
		return nil, ErrNamespace
	}
	s := &Store{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		ns:          "{" + ns + "}",
		codec:       cfg.Codec,
		retries:     cfg.MaxRetries,
		batch:       cfg.BatchSize,
	}
	if s.codec == nil {
		s.codec = codec.Msgpack[store.Record]{}
	}
	if s.retries <= 0 {
		s.retries = defaultRetries
	}
	if s.batch <= 0 {
		s.batch = defaultBatch
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	s.conn = lazy.New(timeout, func(ctx context.Context) (struct{}, error) {
		if err := s.rdb.Ping(ctx).Err(); err != nil {
			return struct{}{}, fmt.Errorf("%w: redis ping: %w", store.ErrUnavailable, err)
		}
		return struct{}{}, nil
	})
	return s, nil
}

func (s *Store) entryKey(k string) string { return util.Key(s.ns, "e", k) }
func (s *Store) tagKey(t string) string   { return util.Key(s.ns, "t", t) }
func (s *Store) idsKey() string           { return util.Key(s.ns, "ids") }

func score(r store.Record) float64 {
	if r.Infinite() {
		return math.Inf(1)
	}
	return float64(r.ExpireAt())
}

func (s *Store) Connect(ctx context.Context) error {
	_, err := s.conn.Get(ctx)
	return err
}

// get reads one record through c (a client or a WATCHed transaction).
// Undecodable values are reported as errCorrupt together with a stub record.
func (s *Store) get(ctx context.Context, c goredis.Cmdable, key string) (store.Record, bool, error) {
	b, err := c.Get(ctx, s.entryKey(key)).Bytes()
	if err == goredis.Nil {
		return store.Record{}, false, nil
	}
	if err != nil {
		return store.Record{}, false, err
	}
	rec, err := s.decode(key, b)
	if err != nil {
		return store.Record{Key: key}, true, err
	}
	return rec, true, nil
}

func (s *Store) decode(key string, b []byte) (store.Record, error) {
	rec, err := s.codec.Decode(b)
	if err != nil {
		return store.Record{}, fmt.Errorf("%w %q: %w", errCorrupt, key, err)
	}
	rec.Key = key
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	return rec, nil
}

// watch runs fn in an optimistic transaction on keys, retrying when another
// client touched them between WATCH and EXEC.
func (s *Store) watch(ctx context.Context, fn func(*goredis.Tx) error, keys ...string) error {
	var err error
	for i := 0; i < s.retries; i++ {
		err = s.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, goredis.TxFailedErr) {
			return err
		}
	}
	return err
}

// unlink queues the removal of rec and its index entries.
func (s *Store) unlink(ctx context.Context, p goredis.Pipeliner, rec store.Record) *goredis.IntCmd {
	del := p.Del(ctx, s.entryKey(rec.Key))
	p.ZRem(ctx, s.idsKey(), rec.Key)
	for _, t := range rec.Tags {
		p.SRem(ctx, s.tagKey(t), rec.Key)
	}
	return del
}

func (s *Store) Upsert(ctx context.Context, rec store.Record) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	raw, err := s.codec.Encode(rec)
	if err != nil {
		return fmt.Errorf("redis upsert: encode: %w", err)
	}
	ek := s.entryKey(rec.Key)
	err = s.watch(ctx, func(tx *goredis.Tx) error {
		old, found, err := s.get(ctx, tx, rec.Key)
		if err != nil && !errors.Is(err, errCorrupt) {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, ek, raw, 0)
			p.ZAdd(ctx, s.idsKey(), goredis.Z{Score: score(rec), Member: rec.Key})
			if found {
				for _, t := range old.Tags {
					if !slices.Contains(rec.Tags, t) {
						p.SRem(ctx, s.tagKey(t), rec.Key)
					}
				}
			}
			for _, t := range rec.Tags {
				p.SAdd(ctx, s.tagKey(t), rec.Key)
			}
			return nil
		})
		return err
	}, ek)
	if err != nil {
		return fmt.Errorf("redis upsert: %w", err)
	}
	return nil
}

func (s *Store) FindOne(ctx context.Context, key string) (store.Record, bool, error) {
	if err := s.Connect(ctx); err != nil {
		return store.Record{}, false, err
	}
	rec, found, err := s.get(ctx, s.rdb, key)
	if err != nil {
		return store.Record{}, false, fmt.Errorf("redis find: %w", err)
	}
	return rec, found, nil
}

func (s *Store) DeleteOne(ctx context.Context, key string) (int64, error) {
	if err := s.Connect(ctx); err != nil {
		return 0, err
	}
	var n int64
	ek := s.entryKey(key)
	err := s.watch(ctx, func(tx *goredis.Tx) error {
		n = 0
		old, found, err := s.get(ctx, tx, key)
		if err != nil && !errors.Is(err, errCorrupt) {
			return err
		}
		if !found {
			return nil
		}
		var del *goredis.IntCmd
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			del = s.unlink(ctx, p, old)
			return nil
		})
		if err != nil {
			return err
		}
		n = del.Val()
		return nil
	}, ek)
	if err != nil {
		return 0, fmt.Errorf("redis delete: %w", err)
	}
	return n, nil
}

// candidates narrows f down to a superset of the matching keys using the
// index structures. Callers re-check every record with f.Matches.
func (s *Store) candidates(ctx context.Context, f store.Filter) ([]string, error) {
	switch f.Op {
	case store.MatchTagsAll, store.MatchTagsAny:
		if len(f.Tags) == 0 {
			return nil, nil
		}
		keys := make([]string, len(f.Tags))
		for i, t := range f.Tags {
			keys[i] = s.tagKey(t)
		}
		if f.Op == store.MatchTagsAll {
			return s.rdb.SInter(ctx, keys...).Result()
		}
		return s.rdb.SUnion(ctx, keys...).Result()
	case store.MatchExpired:
		return s.rdb.ZRangeByScore(ctx, s.idsKey(), &goredis.ZRangeBy{
			Min: "-inf",
			Max: "(" + strconv.FormatInt(f.Now, 10),
		}).Result()
	default:
		return s.rdb.ZRange(ctx, s.idsKey(), 0, -1).Result()
	}
}

// mget loads keys in one round trip. Missing keys are skipped. With lenient
// set, undecodable values come back as untagged stubs instead of an error so
// bulk deletes can still reclaim them.
func (s *Store) mget(ctx context.Context, keys []string, lenient bool) ([]store.Record, error) {
	eks := make([]string, len(keys))
	for i, k := range keys {
		eks[i] = s.entryKey(k)
	}
	vals, err := s.rdb.MGet(ctx, eks...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]store.Record, 0, len(vals))
	for i, v := range vals {
		var b []byte
		switch vv := v.(type) {
		case nil:
			continue
		case string:
			b = []byte(vv)
		case []byte:
			b = vv
		default:
			b = []byte(fmt.Sprint(vv))
		}
		rec, err := s.decode(keys[i], b)
		if err != nil {
			if !lenient {
				return nil, err
			}
			rec = store.Record{Key: keys[i]}
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeleteMany selects candidates through the indexes and removes the records
// that still match in pipelined batches. Batches are not isolated from
// concurrent writers.
func (s *Store) DeleteMany(ctx context.Context, f store.Filter) (int64, error) {
	if err := s.Connect(ctx); err != nil {
		return 0, err
	}
	keys, err := s.candidates(ctx, f)
	if err != nil {
		return 0, fmt.Errorf("redis delete many: %w", err)
	}
	var n int64
	for batch := range slices.Chunk(keys, s.batch) {
		recs, err := s.mget(ctx, batch, true)
		if err != nil {
			return n, fmt.Errorf("redis delete many: %w", err)
		}
		dels := make([]*goredis.IntCmd, 0, len(recs))
		_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			for _, r := range recs {
				if f.Matches(r) {
					dels = append(dels, s.unlink(ctx, p, r))
				}
			}
			return nil
		})
		if err != nil {
			return n, fmt.Errorf("redis delete many: %w", err)
		}
		for _, d := range dels {
			n += d.Val()
		}
	}
	return n, nil
}

func (s *Store) Iterate(ctx context.Context, f store.Filter) iter.Seq2[store.Record, error] {
	return func(yield func(store.Record, error) bool) {
		if err := s.Connect(ctx); err != nil {
			yield(store.Record{}, err)
			return
		}
		keys, err := s.candidates(ctx, f)
		if err != nil {
			yield(store.Record{}, fmt.Errorf("redis iterate: %w", err))
			return
		}
		for batch := range slices.Chunk(keys, s.batch) {
			recs, err := s.mget(ctx, batch, false)
			if err != nil {
				yield(store.Record{}, fmt.Errorf("redis iterate: %w", err))
				return
			}
			for _, r := range recs {
				if !f.Matches(r) {
					continue
				}
				if !yield(r, nil) {
					return
				}
			}
		}
	}
}

// EnsureIndex accepts the indexed fields; the structures behind them are
// written together with every record.
func (s *Store) EnsureIndex(ctx context.Context, field string) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	switch field {
	case store.FieldTags, store.FieldCreatedAt:
		return nil
	default:
		return fmt.Errorf("redis ensure index: unsupported field %q", field)
	}
}

// scan walks every key matching pattern, handing pages to fn.
func (s *Store) scan(ctx context.Context, pattern string, fn func([]string) error) error {
	var cur uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cur, pattern, int64(s.batch)).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		cur = next
		if cur == 0 {
			return nil
		}
	}
}

func (s *Store) AggregateTags(ctx context.Context) ([]store.TagCount, error) {
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	prefix := s.tagKey("")
	counts := make(map[string]int64)
	err := s.scan(ctx, util.EscapeGlob(prefix)+"*", func(keys []string) error {
		cmds := make([]*goredis.IntCmd, len(keys))
		_, err := s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
			for i, k := range keys {
				cmds[i] = p.SCard(ctx, k)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for i, k := range keys {
			if n := cmds[i].Val(); n > 0 {
				counts[strings.TrimPrefix(k, prefix)] = n
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis aggregate tags: %w", err)
	}
	out := make([]store.TagCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, store.TagCount{Tag: t, Count: n})
	}
	slices.SortFunc(out, func(a, b store.TagCount) int { return strings.Compare(a.Tag, b.Tag) })
	return out, nil
}

// DropCollection deletes the records and index keys of this store. Other
// keys, including those of namespaces that extend this one, stay.
func (s *Store) DropCollection(ctx context.Context) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	del := func(keys []string) error { return s.rdb.Del(ctx, keys...).Err() }
	for _, prefix := range []string{s.entryKey(""), s.tagKey("")} {
		if err := s.scan(ctx, util.EscapeGlob(prefix)+"*", del); err != nil {
			return fmt.Errorf("redis drop: %w", err)
		}
	}
	if err := s.rdb.Del(ctx, s.idsKey()).Err(); err != nil {
		return fmt.Errorf("redis drop: %w", err)
	}
	return nil
}

// Close releases the underlying redis client only when this store owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (s *Store) Close(context.Context) error {
	s.conn.Reset()
	if s.closeClient {
		if err := s.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
