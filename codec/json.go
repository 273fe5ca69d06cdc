package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
)

type jsonCodec[T any] struct{}

// JSON stores any JSON-safe value: nil, bool, float64, string, []any and
// map[string]any trees. Other Go types decode differently (an int comes back
// as float64), so Test rejects them; use JSONOf for typed values.
func JSON() Codec[any] {
	return jsonCodec[any]{}
}

// JSONOf stores values of a concrete type through encoding/json.
func JSONOf[T any]() Codec[T] {
	return jsonCodec[T]{}
}

func (jsonCodec[T]) Name() string { return "json" }

// Test fails with the encoder's own error text when v cannot be encoded, and
// rejects values that do not decode back to v.
func (c jsonCodec[T]) Test(v T) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	got, err := c.FromBuffer(b)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(v, got) {
		return fmt.Errorf("json: %T value does not survive a JSON round trip", v)
	}
	return nil
}

func (jsonCodec[T]) ToBuffer(v T) ([]byte, error) {
	return json.Marshal(v)
}

func (c jsonCodec[T]) FromBuffer(b []byte) (T, error) {
	return c.FromReader(bytes.NewReader(b))
}

func (jsonCodec[T]) FromReader(r io.Reader) (T, error) {
	var v T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&v); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: json: %v", ErrDecode, err)
	}
	if dec.More() {
		var zero T
		return zero, fmt.Errorf("%w: json: trailing data", ErrDecode)
	}
	return v, nil
}
