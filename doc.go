// Package tagcache implements a durable cache backend with tag-based
// invalidation. Entries are opaque string payloads stored under string keys
// with a lifetime and zero or more tags; callers invalidate by tag-set logic
// (all of, any of, none of) or sweep expired entries by age.
//
// Components:
//   - store.Store: the persistence capability set. Implementations for
//     MongoDB (store/mongo), Redis (store/redis) and an in-process map
//     (store/memory). Each creates its connection lazily, once.
//   - EncodeEntry/DecodeEntry: Entry <-> store.Record mapping.
//   - Backend: save/load/touch/clean orchestration over a store.
//   - Index maintenance on the tag and created_at fields per IndexPolicy.
//
// Persisted record:
//
//	{_id: key, d: payload, created_at: unix seconds, l: seconds | null, t: [tags]}
//
// An entry is valid while now < created_at + l, or forever when l is null or 0.
// Expired entries are not deleted by reads; Clean(ctx, CleanOld) removes them.
//
// Usage:
//
//	cfg, _ := tagcache.LoadConfig("cache.yaml")
//	b, err := tagcache.Open(ctx, cfg, tagcache.Options{Logger: zaplog.New(l)})
//	_ = b.Save(ctx, "user:1", payload, []string{"users"})
//	_, _ = b.Clean(ctx, tagcache.CleanMatchingTag, "users")
package tagcache
