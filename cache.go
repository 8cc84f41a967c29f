package tagcache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/unkn0wn-root/tagcache/store"
)

type backend struct {
	st              store.Store
	defaultLifetime time.Duration
	log             Logger
	hooks           Hooks
	clock           func() time.Time
	idx             *indexMaintainer
}

var _ Backend = (*backend)(nil)

func newBackend(ctx context.Context, opts Options) (*backend, error) {
	if opts.Store == nil {
		return nil, &OpError{Op: "new", Kind: ErrInvalidConfig, Err: errors.New("store is required")}
	}
	if opts.DefaultLifetime < 0 {
		return nil, &OpError{Op: "new", Kind: ErrInvalidConfig, Err: fmt.Errorf("negative default lifetime %s", opts.DefaultLifetime)}
	}
	if opts.IndexPolicy < IndexOnce || opts.IndexPolicy > IndexEager {
		return nil, &OpError{Op: "new", Kind: ErrInvalidConfig, Err: fmt.Errorf("unknown %s", opts.IndexPolicy)}
	}

	b := &backend{
		st:              opts.Store,
		defaultLifetime: opts.DefaultLifetime,
		clock:           opts.Clock,
	}

	// defaults
	b.log = coalesce[Logger](opts.Logger, NopLogger{})
	b.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	if b.clock == nil {
		b.clock = time.Now
	}
	b.idx = newIndexMaintainer(b.st, opts.IndexPolicy, b.log, b.hooks)

	if opts.IndexPolicy == IndexEager {
		if err := b.idx.ensure(ctx); err != nil {
			return nil, b.fail("new", "", ErrQueryFailed, err)
		}
	}
	return b, nil
}

// now is the backend clock truncated to the stored precision.
func (b *backend) now() time.Time { return time.Unix(b.clock().Unix(), 0) }

// fail wraps a store error and reports connection failures.
func (b *backend) fail(op, key string, kind, err error) error {
	out := opErr(op, key, kind, err)
	if errors.Is(out, ErrConnection) {
		b.log.Error("tagcache: store unavailable", Fields{"op": op, "err": err})
		b.hooks.ConnectFailed(op, err)
	}
	return out
}

func (b *backend) Save(ctx context.Context, key, payload string, tags []string) error {
	return b.SaveWithLifetime(ctx, key, payload, tags, b.defaultLifetime)
}

func (b *backend) SaveWithLifetime(ctx context.Context, key, payload string, tags []string, lifetime time.Duration) error {
	if lifetime < 0 {
		return &OpError{Op: "save", Key: key, Kind: ErrInvalidLifetime, Err: fmt.Errorf("negative lifetime %s", lifetime)}
	}
	return b.write(ctx, "save", Entry{
		Key:       key,
		Payload:   payload,
		CreatedAt: b.now(),
		Lifetime:  lifetime,
		Tags:      tags,
	})
}

// write persists e as a full replacement and then maintains the indexes.
func (b *backend) write(ctx context.Context, op string, e Entry) error {
	if err := b.st.Upsert(ctx, EncodeEntry(e)); err != nil {
		return b.fail(op, e.Key, ErrSaveFailed, err)
	}
	b.idx.afterWrite(ctx)
	return nil
}

// find returns the decoded entry for key.
func (b *backend) find(ctx context.Context, op, key string) (Entry, bool, error) {
	rec, ok, err := b.st.FindOne(ctx, key)
	if err != nil {
		return Entry{}, false, b.fail(op, key, ErrQueryFailed, err)
	}
	if !ok {
		return Entry{}, false, nil
	}
	return DecodeEntry(rec), true, nil
}

func (b *backend) Load(ctx context.Context, key string) (string, bool, error) {
	e, ok, err := b.find(ctx, "load", key)
	if err != nil || !ok {
		return "", false, err
	}
	// Expired entries stay in the store until Clean(CleanOld) sweeps them.
	if !e.Valid(b.now()) {
		b.log.Debug("tagcache: expired entry", Fields{"key": key, "expired_at": e.ExpiresAt()})
		return "", false, nil
	}
	return e.Payload, true, nil
}

func (b *backend) LoadStale(ctx context.Context, key string) (string, bool, error) {
	e, ok, err := b.find(ctx, "load", key)
	if err != nil || !ok {
		return "", false, err
	}
	return e.Payload, true, nil
}

func (b *backend) Test(ctx context.Context, key string) (time.Time, bool, error) {
	e, ok, err := b.find(ctx, "test", key)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	return e.CreatedAt, true, nil
}

func (b *backend) Remove(ctx context.Context, key string) error {
	if _, err := b.st.DeleteOne(ctx, key); err != nil {
		return b.fail("remove", key, ErrQueryFailed, err)
	}
	return nil
}

// cleanFilter maps mode to a store filter. Tags are ignored by CleanAll and
// CleanOld.
func cleanFilter(mode CleanMode, tags []string, now time.Time) (store.Filter, error) {
	switch mode {
	case CleanAll:
		return store.All(), nil
	case CleanOld:
		return store.Expired(now.Unix()), nil
	case CleanMatchingTag:
		return store.TagsAll(tags...), nil
	case CleanNotMatchingTag:
		return store.TagsNone(tags...), nil
	case CleanMatchingAnyTag:
		return store.TagsAny(tags...), nil
	}
	return store.Filter{}, fmt.Errorf("unknown %s", mode)
}

func (b *backend) Clean(ctx context.Context, mode CleanMode, tags ...string) (int64, error) {
	f, err := cleanFilter(mode, slices.Clone(tags), b.now())
	if err != nil {
		return 0, &OpError{Op: "clean", Kind: ErrInvalidCleanMode, Err: err}
	}
	n, err := b.st.DeleteMany(ctx, f)
	if err != nil {
		return n, b.fail("clean", "", ErrQueryFailed, err)
	}
	b.log.Info("tagcache: cleaned", Fields{"mode": mode.String(), "tags": f.Tags, "removed": n})
	b.hooks.Cleaned(mode, f.Tags, n)
	return n, nil
}

// Touch is a read followed by a full re-save. Two concurrent Touch calls on
// one key may both read the same lifetime, and the later write wins.
func (b *backend) Touch(ctx context.Context, key string, extra time.Duration) (bool, error) {
	e, ok, err := b.find(ctx, "touch", key)
	if err != nil || !ok {
		return false, err
	}
	if e.Infinite() {
		return true, nil
	}

	now := b.now()
	lifetime := e.Lifetime - now.Sub(e.CreatedAt) + extra
	if lifetime <= 0 {
		b.log.Debug("tagcache: touch rejected", Fields{"key": key, "lifetime": lifetime})
		b.hooks.TouchRejected(key, lifetime)
		return false, nil
	}

	e.CreatedAt = now
	e.Lifetime = lifetime
	if err := b.write(ctx, "touch", e); err != nil {
		return false, err
	}
	return true, nil
}

// Expire rewrites key with its original creation time and a negative
// lifetime, so Load misses while LoadStale and Clean(CleanOld) still see it.
func (b *backend) Expire(ctx context.Context, key string) (bool, error) {
	e, ok, err := b.find(ctx, "expire", key)
	if err != nil || !ok {
		return false, err
	}
	e.Lifetime = -time.Second
	if err := b.write(ctx, "expire", e); err != nil {
		return false, err
	}
	return true, nil
}

func (b *backend) ids(ctx context.Context, op string, f store.Filter) ([]string, error) {
	out := []string{}
	for rec, err := range b.st.Iterate(ctx, f) {
		if err != nil {
			return nil, b.fail(op, "", ErrQueryFailed, err)
		}
		out = append(out, rec.Key)
	}
	slices.Sort(out)
	return out, nil
}

func (b *backend) IDs(ctx context.Context) ([]string, error) {
	return b.ids(ctx, "ids", store.All())
}

func (b *backend) IDsMatchingTags(ctx context.Context, tags ...string) ([]string, error) {
	return b.ids(ctx, "ids_matching_tags", store.TagsAll(tags...))
}

func (b *backend) IDsNotMatchingTags(ctx context.Context, tags ...string) ([]string, error) {
	return b.ids(ctx, "ids_not_matching_tags", store.TagsNone(tags...))
}

func (b *backend) IDsMatchingAnyTags(ctx context.Context, tags ...string) ([]string, error) {
	return b.ids(ctx, "ids_matching_any_tags", store.TagsAny(tags...))
}

func (b *backend) Tags(ctx context.Context) ([]string, error) {
	counts, err := b.st.AggregateTags(ctx)
	if err != nil {
		return nil, b.fail("tags", "", ErrQueryFailed, err)
	}
	out := make([]string, 0, len(counts))
	for _, c := range counts {
		out = append(out, c.Tag)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

func (b *backend) Metadata(ctx context.Context, key string) (Metadata, bool, error) {
	e, ok, err := b.find(ctx, "metadata", key)
	if err != nil || !ok {
		return Metadata{}, false, err
	}
	return Metadata{
		Expire:   e.ExpiresAt(),
		Tags:     e.Tags,
		MTime:    e.CreatedAt,
		Lifetime: e.Lifetime,
	}, true, nil
}

func (b *backend) Drop(ctx context.Context) error {
	if err := b.st.DropCollection(ctx); err != nil {
		return b.fail("drop", "", ErrQueryFailed, err)
	}
	b.idx.reset()
	b.log.Info("tagcache: collection dropped", nil)
	return nil
}

func (b *backend) Capabilities() Capabilities { return capabilities }

func (b *backend) FillingPercentage() int { return 1 }

func (b *backend) Close(ctx context.Context) error {
	return b.st.Close(ctx)
}
