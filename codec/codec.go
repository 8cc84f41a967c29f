// Package codec turns values into bytes for stores that keep opaque blobs.
//
// tagcache itself never serializes payloads; the Redis store uses a
// Codec[store.Record] to persist the record envelope (key, payload,
// created_at, lifetime, tags) as a single value.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
