package eventcore

import (
	"encoding/json"
	"fmt"
)

// JSONCodec is a small helper for domains that want a closed
// type-name-to-decoder dispatch table instead of a hand-written type
// switch. It builds a Decoder that rejects any event type not present
// in its registry — the "strict decode" discipline spec §9 requires
// ("reject unknown type names as a DecodeError").
//
// Register typed decode functions once at setup, then use Decode as the
// Handler's Decoder[E].
type JSONCodec[E any] struct {
	decoders map[string]func(payload []byte) (E, error)
}

// NewJSONCodec creates an empty codec. Use Register to add per-type
// decode functions before building a Decoder.
func NewJSONCodec[E any]() *JSONCodec[E] {
	return &JSONCodec[E]{decoders: make(map[string]func([]byte) (E, error))}
}

// Register adds a decode function for the given wire type name.
// Registering the same type name twice overwrites the prior entry —
// the last registration wins, as with repeated assignment to the same
// map key.
func (c *JSONCodec[E]) Register(eventType string, decode func(payload []byte) (E, error)) {
	c.decoders[eventType] = decode
}

// RegisterJSON registers a decoder that just json.Unmarshals payload
// into a fresh zero value of T and converts it to E via toEvent — the
// common case where each event type has its own concrete Go struct.
func RegisterJSON[E any, T any](c *JSONCodec[E], eventType string, toEvent func(T) E) {
	c.Register(eventType, func(payload []byte) (E, error) {
		var v T
		if err := json.Unmarshal(payload, &v); err != nil {
			var zero E
			return zero, fmt.Errorf("unmarshal %s: %w", eventType, err)
		}
		return toEvent(v), nil
	})
}

// Decode implements Decoder[E]: it looks up eventType in the registry
// and returns a DecodeError if the type is unrecognised.
func (c *JSONCodec[E]) Decode(eventType string, payload []byte) (E, error) {
	decode, ok := c.decoders[eventType]
	if !ok {
		var zero E
		return zero, newDecodeError("decode", eventType, fmt.Errorf("unrecognised event type %q", eventType))
	}
	return decode(payload)
}
