// Package codec defines how cached values are validated and turned into
// bytes. A Codec is consulted by the cache before every mutation: Test must
// pass before ToBuffer is ever called, and a failing Test leaves cache and
// store untouched.
//
// Built-in codecs:
//
//	codec.String()                  // UTF-8 text
//	codec.JSON()                    // JSON-safe values
//	codec.Gob[T](schema)            // schema-validated Go values
//	codec.Proto(newMsg)             // protobuf messages
//
// User-supplied codecs only need to implement Codec.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrDecode wraps every failure to turn bytes back into a value.
var ErrDecode = errors.New("decode failed")

// Codec validates and (de)serializes values of type T.
type Codec[T any] interface {
	// Name identifies the codec in logs and harness output.
	Name() string
	// Test reports why v cannot be stored, or nil. It performs no I/O.
	Test(v T) error
	// ToBuffer encodes v. It must be deterministic.
	ToBuffer(v T) ([]byte, error)
	// FromBuffer decodes bytes produced by ToBuffer.
	FromBuffer(b []byte) (T, error)
}

// ReaderDecoder is implemented by codecs that can decode straight from a
// stream, avoiding a full read of the store file before decoding starts.
type ReaderDecoder[T any] interface {
	FromReader(r io.Reader) (T, error)
}

// Decode reads a value from r, streaming when c supports it.
func Decode[T any](c Codec[T], r io.Reader) (T, error) {
	if rd, ok := c.(ReaderDecoder[T]); ok {
		return rd.FromReader(r)
	}

	b, err := io.ReadAll(r)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return c.FromBuffer(b)
}

// RoundTrip encodes v and decodes the result, for codec conformance checks.
func RoundTrip[T any](c Codec[T], v T) (T, error) {
	var zero T
	if err := c.Test(v); err != nil {
		return zero, err
	}
	b, err := c.ToBuffer(v)
	if err != nil {
		return zero, err
	}
	return Decode(c, bytes.NewReader(b))
}
