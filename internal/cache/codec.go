package cache

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes values of type V for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Msgpack is a Codec using vmihailenco/msgpack. The zero value is ready
// to use.
type Msgpack[V any] struct{}

// Encode implements Codec.
func (Msgpack[V]) Encode(v V) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Decode implements Codec.
func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}

// envelope is the stored form of every entry. ExpiresAt is in Unix
// nanoseconds on the Store's clock.
type envelope struct {
	ExpiresAt int64  `msgpack:"e"`
	Value     []byte `msgpack:"v"`
}

func encodeEnvelope(env envelope) ([]byte, error) {
	return msgpack.Marshal(&env)
}

func decodeEnvelope(b []byte) (envelope, error) {
	var env envelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %w", ErrCorruptEntry, err)
	}
	if env.ExpiresAt == 0 {
		return envelope{}, ErrCorruptEntry
	}
	return env, nil
}
