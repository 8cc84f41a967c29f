package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func lifetime(s int64) *int64 { return &s }

func TestFilterMatchesTags(t *testing.T) {
	ab := Record{Key: "ab", Tags: []string{"a", "b"}}
	a := Record{Key: "a", Tags: []string{"a"}}
	ac := Record{Key: "ac", Tags: []string{"a", "c"}}
	c := Record{Key: "c", Tags: []string{"c"}}
	none := Record{Key: "none", Tags: []string{}}

	cases := []struct {
		name string
		f    Filter
		want map[string]bool
	}{
		{"all of a,b", TagsAll("a", "b"), map[string]bool{"ab": true}},
		{"any of a,b", TagsAny("a", "b"), map[string]bool{"ab": true, "a": true, "ac": true}},
		{"none of a", TagsNone("a"), map[string]bool{"c": true, "none": true}},
		{"all of nothing", TagsAll(), map[string]bool{}},
		{"any of nothing", TagsAny(), map[string]bool{}},
		{"none of nothing", TagsNone(), map[string]bool{"ab": true, "a": true, "ac": true, "c": true, "none": true}},
		{"everything", All(), map[string]bool{"ab": true, "a": true, "ac": true, "c": true, "none": true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, r := range []Record{ab, a, ac, c, none} {
				require.Equal(t, tc.want[r.Key], tc.f.Matches(r), "record %q", r.Key)
			}
		})
	}
}

func TestFilterMatchesExpired(t *testing.T) {
	now := int64(1_000)
	f := Expired(now)

	require.False(t, f.Matches(Record{CreatedAt: 10}), "nil lifetime never expires")
	require.False(t, f.Matches(Record{CreatedAt: 10, Lifetime: lifetime(0)}), "zero lifetime never expires")
	require.True(t, f.Matches(Record{CreatedAt: 900, Lifetime: lifetime(99)}))
	require.False(t, f.Matches(Record{CreatedAt: 900, Lifetime: lifetime(100)}), "expire_at == now is not yet swept")
	require.False(t, f.Matches(Record{CreatedAt: 900, Lifetime: lifetime(500)}))
	require.True(t, f.Matches(Record{CreatedAt: 999, Lifetime: lifetime(-1)}), "negative lifetime is expired")
}

func TestRecordCloneIsDeep(t *testing.T) {
	r := Record{Key: "k", Lifetime: lifetime(5), Tags: []string{"x"}}
	cp := r.Clone()
	*cp.Lifetime = 7
	cp.Tags[0] = "y"
	require.Equal(t, int64(5), *r.Lifetime)
	require.Equal(t, "x", r.Tags[0])
}
