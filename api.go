package tagcache

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/tagcache/store"
)

// CleanMode selects which entries Clean removes.
type CleanMode int

const (
	CleanAll            CleanMode = iota // every entry
	CleanOld                             // expired entries; infinite ones are kept
	CleanMatchingTag                     // entries carrying all given tags
	CleanNotMatchingTag                  // entries carrying none of the given tags
	CleanMatchingAnyTag                  // entries carrying at least one given tag
)

func (m CleanMode) String() string {
	switch m {
	case CleanAll:
		return "all"
	case CleanOld:
		return "old"
	case CleanMatchingTag:
		return "matching_tag"
	case CleanNotMatchingTag:
		return "not_matching_tag"
	case CleanMatchingAnyTag:
		return "matching_any_tag"
	default:
		return fmt.Sprintf("CleanMode(%d)", int(m))
	}
}

// Metadata describes a stored entry.
type Metadata struct {
	Expire   time.Time // zero when the entry never expires
	Tags     []string
	MTime    time.Time // creation time of the stored version
	Lifetime time.Duration
}

// Backend is a durable cache backend with tag-based invalidation.
// Payloads are opaque; serialization is the caller's concern.
//
// A miss is never an error: lookups report it with ok == false.
// Errors are *OpError values wrapping one of the Err* kinds.
type Backend interface {
	// Save stores payload under key with the default lifetime, replacing any
	// previous payload, lifetime and tags.
	Save(ctx context.Context, key, payload string, tags []string) error
	// SaveWithLifetime is Save with an explicit lifetime. 0 means infinite.
	SaveWithLifetime(ctx context.Context, key, payload string, tags []string, lifetime time.Duration) error

	// Load returns the payload if key is present and not expired.
	Load(ctx context.Context, key string) (string, bool, error)
	// LoadStale returns the payload if key is present, expired or not.
	LoadStale(ctx context.Context, key string) (string, bool, error)
	// Test returns the creation time of a present entry without checking expiry.
	Test(ctx context.Context, key string) (time.Time, bool, error)

	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Clean removes entries selected by mode and returns how many were removed.
	Clean(ctx context.Context, mode CleanMode, tags ...string) (int64, error)

	// Touch extends the remaining lifetime of key by extra. It reports false
	// if key is absent or the new lifetime would not be positive. An entry
	// that never expires is left as it is and reports true: touching never
	// makes it finite.
	Touch(ctx context.Context, key string, extra time.Duration) (bool, error)
	// Expire marks key as expired without removing it.
	Expire(ctx context.Context, key string) (bool, error)

	// IDs lists every stored key, expired ones included.
	IDs(ctx context.Context) ([]string, error)
	IDsMatchingTags(ctx context.Context, tags ...string) ([]string, error)
	IDsNotMatchingTags(ctx context.Context, tags ...string) ([]string, error)
	IDsMatchingAnyTags(ctx context.Context, tags ...string) ([]string, error)
	// Tags lists the distinct tags in use, sorted.
	Tags(ctx context.Context) ([]string, error)
	Metadata(ctx context.Context, key string) (Metadata, bool, error)

	// Drop removes the whole collection, indexes included.
	Drop(ctx context.Context) error

	Capabilities() Capabilities
	// FillingPercentage is always 1: the store is not capacity bound.
	FillingPercentage() int

	Close(ctx context.Context) error
}

// Options configure a Backend. Only Store is required.
type Options struct {
	Store store.Store

	DefaultLifetime time.Duration    // 0 => entries never expire
	IndexPolicy     IndexPolicy      // default IndexOnce
	Logger          Logger           // if nil, NopLogger is used
	Hooks           Hooks            // if nil, NopHooks is used
	Clock           func() time.Time // if nil, time.Now
}

// New returns a Backend over opts.Store. With IndexEager it connects and
// ensures the indexes before returning.
func New(ctx context.Context, opts Options) (Backend, error) {
	return newBackend(ctx, opts)
}
