// Package store defines the storage abstraction used by tagcache.
//
// A Store persists records in the shape
//
//	{_id: key, d: payload, created_at: seconds, l: lifetime seconds | null, t: [tags]}
//
// and answers the handful of queries the backend needs: point lookups, bulk
// deletes and scans by Filter, tag aggregation and index management.
//
// Implementations own their connection. It must be created lazily on first
// use and shared by all callers of the same Store; concurrent first use must
// result in a single connection attempt. Connection failures are reported
// wrapped with ErrUnavailable so callers can tell them apart from failures of
// an individual operation.
package store

import (
	"context"
	"errors"
	"iter"
)

// Field names of the persisted record.
const (
	FieldKey       = "_id"
	FieldPayload   = "d"
	FieldCreatedAt = "created_at"
	FieldLifetime  = "l"
	FieldTags      = "t"
)

// ErrUnavailable marks errors caused by an unreachable or misconfigured store.
var ErrUnavailable = errors.New("store unavailable")

// Record is the persisted form of a cache entry.
// Lifetime == nil (or 0) means the entry never expires.
// Tags is never nil for records written through tagcache.
type Record struct {
	Key       string   `bson:"_id" msgpack:"_id" json:"_id" cbor:"_id"`
	Payload   string   `bson:"d" msgpack:"d" json:"d" cbor:"d"`
	CreatedAt int64    `bson:"created_at" msgpack:"created_at" json:"created_at" cbor:"created_at"`
	Lifetime  *int64   `bson:"l" msgpack:"l" json:"l" cbor:"l"`
	Tags      []string `bson:"t" msgpack:"t" json:"t" cbor:"t"`
}

// Infinite reports whether the record never expires.
func (r Record) Infinite() bool {
	return r.Lifetime == nil || *r.Lifetime == 0
}

// ExpireAt returns created_at + l in seconds. Only meaningful when !Infinite().
func (r Record) ExpireAt() int64 {
	if r.Lifetime == nil {
		return r.CreatedAt
	}
	return r.CreatedAt + *r.Lifetime
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	if r.Lifetime != nil {
		l := *r.Lifetime
		out.Lifetime = &l
	}
	if r.Tags != nil {
		out.Tags = append(make([]string, 0, len(r.Tags)), r.Tags...)
	}
	return out
}

// TagCount is one row of a tag aggregation.
type TagCount struct {
	Tag   string `bson:"_id"`
	Count int64  `bson:"count"`
}

// Store is the capability set tagcache consumes.
// Must be safe for concurrent use.
type Store interface {
	// Connect establishes the connection if none exists yet. Idempotent.
	Connect(ctx context.Context) error

	// Upsert inserts rec or fully replaces the record stored under rec.Key.
	// The replacement is atomic from the caller's point of view.
	Upsert(ctx context.Context, rec Record) error

	// FindOne returns (rec, true, nil) on hit and (Record{}, false, nil) on miss.
	FindOne(ctx context.Context, key string) (Record, bool, error)

	// DeleteOne removes the record stored under key and reports how many
	// records were removed (0 or 1). Removing nothing is not an error.
	DeleteOne(ctx context.Context, key string) (int64, error)

	// DeleteMany removes every record matching f and reports the count.
	DeleteMany(ctx context.Context, f Filter) (int64, error)

	// Iterate yields records matching f. The sequence is lazy, finite and can
	// be ranged over again to re-run the query. Iteration stops at the first
	// error, which is yielded with a zero Record.
	Iterate(ctx context.Context, f Filter) iter.Seq2[Record, error]

	// EnsureIndex creates an ascending index on field unless it exists.
	EnsureIndex(ctx context.Context, field string) error

	// AggregateTags counts records per tag. Records without tags contribute
	// nothing.
	AggregateTags(ctx context.Context) ([]TagCount, error)

	// DropCollection removes the whole collection, indexes included.
	DropCollection(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}
