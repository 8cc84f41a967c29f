package store

import (
	"fmt"
	"slices"
)

// Op selects which records a Filter matches.
type Op int

const (
	// MatchAll matches every record.
	MatchAll Op = iota
	// MatchExpired matches records with a finite lifetime whose
	// created_at + l is strictly before Now.
	MatchExpired
	// MatchTagsAll matches records carrying every tag in Tags.
	MatchTagsAll
	// MatchTagsNone matches records carrying none of the tags in Tags.
	MatchTagsNone
	// MatchTagsAny matches records carrying at least one tag in Tags.
	MatchTagsAny
)

func (o Op) String() string {
	switch o {
	case MatchAll:
		return "all"
	case MatchExpired:
		return "expired"
	case MatchTagsAll:
		return "tags_all"
	case MatchTagsNone:
		return "tags_none"
	case MatchTagsAny:
		return "tags_any"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Filter describes a bulk query.
//
// An empty Tags list follows MongoDB's operators: MatchTagsAll ($all: []) and
// MatchTagsAny ($in: []) match nothing, MatchTagsNone ($nin: []) matches
// everything. Every Store implementation must behave the same way.
type Filter struct {
	Op   Op
	Tags []string
	Now  int64 // unix seconds, used by MatchExpired
}

// All returns a filter matching every record.
func All() Filter { return Filter{Op: MatchAll} }

// Expired returns a filter matching records expired at now.
func Expired(now int64) Filter { return Filter{Op: MatchExpired, Now: now} }

// TagsAll returns a filter matching records carrying every tag.
func TagsAll(tags ...string) Filter { return Filter{Op: MatchTagsAll, Tags: tags} }

// TagsNone returns a filter matching records carrying none of the tags.
func TagsNone(tags ...string) Filter { return Filter{Op: MatchTagsNone, Tags: tags} }

// TagsAny returns a filter matching records carrying any of the tags.
func TagsAny(tags ...string) Filter { return Filter{Op: MatchTagsAny, Tags: tags} }

// Matches reports whether r satisfies f. Stores that cannot push a filter down
// to the server use this as the source of truth.
func (f Filter) Matches(r Record) bool {
	switch f.Op {
	case MatchAll:
		return true
	case MatchExpired:
		return !r.Infinite() && r.ExpireAt() < f.Now
	case MatchTagsAll:
		if len(f.Tags) == 0 {
			return false
		}
		for _, t := range f.Tags {
			if !slices.Contains(r.Tags, t) {
				return false
			}
		}
		return true
	case MatchTagsNone:
		for _, t := range f.Tags {
			if slices.Contains(r.Tags, t) {
				return false
			}
		}
		return true
	case MatchTagsAny:
		for _, t := range f.Tags {
			if slices.Contains(r.Tags, t) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
