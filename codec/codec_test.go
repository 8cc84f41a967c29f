package codec_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tagcache/codec"
	"github.com/unkn0wn-root/tagcache/store"
)

func codecs() map[string]codec.Codec[store.Record] {
	return map[string]codec.Codec[store.Record]{
		"msgpack":   codec.Msgpack[store.Record]{},
		"cbor":      codec.MustCBOR[store.Record](true),
		"cbor-fast": codec.MustCBOR[store.Record](false),
		"json":      codec.JSON[store.Record]{},
		"limit":     codec.Limit[store.Record]{Inner: codec.Msgpack[store.Record]{}, MaxDecode: 1 << 10},
	}
}

// Records with a null lifetime and no tags are the edge cases the stores rely on.
func TestRecordEnvelopeEdgeCases(t *testing.T) {
	l := int64(60)
	recs := []store.Record{
		{Key: "inf", Payload: "p", CreatedAt: 1700000000, Lifetime: nil, Tags: []string{}},
		{Key: "tagged", Payload: "", CreatedAt: 1700000001, Lifetime: &l, Tags: []string{"a", "b"}},
	}
	for name, c := range codecs() {
		t.Run(name, func(t *testing.T) {
			for _, rec := range recs {
				b, err := c.Encode(rec)
				require.NoError(t, err)
				got, err := c.Decode(b)
				require.NoError(t, err)

				require.Equal(t, rec.Key, got.Key)
				require.Equal(t, rec.Payload, got.Payload)
				require.Equal(t, rec.CreatedAt, got.CreatedAt)
				require.Equal(t, rec.Infinite(), got.Infinite())
				if rec.Lifetime != nil {
					require.NotNil(t, got.Lifetime)
					require.Equal(t, *rec.Lifetime, *got.Lifetime)
				}
				require.ElementsMatch(t, rec.Tags, got.Tags)
			}
		})
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c := codec.Limit[store.Record]{Inner: codec.Msgpack[store.Record]{}, MaxDecode: 8}
	b, err := c.Encode(store.Record{Key: "a-rather-long-key", Payload: "payload"})
	require.NoError(t, err)
	_, err = c.Decode(b)
	require.Error(t, err)
	require.Contains(t, err.Error(), "too large")
}
