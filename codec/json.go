package codec

import "encoding/json"

// JSON encodes with encoding/json. Human-readable, larger than Msgpack or CBOR.
// Handy when records must be inspected with redis-cli.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
