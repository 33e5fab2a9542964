// Package codec converts entities to and from their wire form. Decoding
// is tolerant: a malformed document yields (zero, false) rather than an
// error, so a bad payload from another process can never take down a
// receiver mid-dispatch.
package codec

import (
	"encoding/json"
	"log/slog"
)

// Codec encodes values of a single type to strings and back. Decode
// reports false for payloads it cannot understand.
type Codec[V any] interface {
	Encode(v V) (string, error)
	Decode(s string) (V, bool)
}

// JSON is a Codec backed by encoding/json. The zero logger is allowed;
// decode failures are then dropped silently.
type JSON[V any] struct {
	Logger *slog.Logger
}

func (j JSON[V]) Encode(v V) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (j JSON[V]) Decode(s string) (V, bool) {
	var v V
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		if j.Logger != nil {
			j.Logger.Warn("dropping malformed payload", "error", err)
		}
		var zero V
		return zero, false
	}
	return v, true
}
