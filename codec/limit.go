package codec

import "fmt"

// Limit wraps another codec and refuses to decode blobs larger than MaxDecode
// bytes. Encode is forwarded unchanged. MaxDecode <= 0 disables the check.
//
// Useful when the backing Redis is shared and foreign writers could plant
// oversized values under the cache namespace.
type Limit[V any] struct {
	Inner     Codec[V]
	MaxDecode int
}

var _ Codec[struct{}] = Limit[struct{}]{}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("codec: value too large: %d > %d bytes", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
