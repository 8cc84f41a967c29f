package tagcache

import (
	"slices"
	"time"

	"github.com/unkn0wn-root/tagcache/store"
)

// Entry is one cached payload.
type Entry struct {
	Key       string
	Payload   string
	CreatedAt time.Time     // second precision
	Lifetime  time.Duration // 0 = never expires, < 0 = already expired
	Tags      []string
}

// Infinite reports whether e never expires.
func (e Entry) Infinite() bool { return e.Lifetime == 0 }

// ExpiresAt returns CreatedAt+Lifetime, or the zero time if e never expires.
func (e Entry) ExpiresAt() time.Time {
	if e.Infinite() {
		return time.Time{}
	}
	return e.CreatedAt.Add(e.Lifetime)
}

// Valid reports whether e is still live at now.
func (e Entry) Valid(now time.Time) bool {
	return e.Infinite() || now.Before(e.ExpiresAt())
}

// EncodeEntry maps e to its persisted record. Tags are deduplicated and
// sorted; a nil tag list is stored as an empty one.
func EncodeEntry(e Entry) store.Record {
	rec := store.Record{
		Key:       e.Key,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt.Unix(),
		Tags:      normalizeTags(e.Tags),
	}
	if l := lifetimeSeconds(e.Lifetime); l != 0 {
		rec.Lifetime = &l
	}
	return rec
}

// lifetimeSeconds rounds d away from zero to whole seconds, so a sub-second
// lifetime never turns into an infinite one.
func lifetimeSeconds(d time.Duration) int64 {
	s := int64(d / time.Second)
	switch rem := d % time.Second; {
	case rem > 0:
		s++
	case rem < 0:
		s--
	}
	return s
}

// DecodeEntry maps a persisted record back to an Entry. A null or zero l
// decodes as an infinite lifetime.
func DecodeEntry(rec store.Record) Entry {
	e := Entry{
		Key:       rec.Key,
		Payload:   rec.Payload,
		CreatedAt: time.Unix(rec.CreatedAt, 0),
		Tags:      slices.Clone(rec.Tags),
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if !rec.Infinite() {
		e.Lifetime = time.Duration(*rec.Lifetime) * time.Second
	}
	return e
}

func normalizeTags(tags []string) []string {
	out := slices.Clone(tags)
	if out == nil {
		return []string{}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
