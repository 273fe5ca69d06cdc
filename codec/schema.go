package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"reflect"
)

// Schema validates the structure of a value before it is stored.
type Schema[T any] interface {
	Validate(v T) error
}

// SchemaFunc adapts a function to Schema.
type SchemaFunc[T any] func(v T) error

func (f SchemaFunc[T]) Validate(v T) error { return f(v) }

type schemaCodec[T any] struct {
	schema Schema[T]
}

// Gob returns a Codec that validates with schema and serializes with gob,
// which keeps Go types intact: integers stay integers and *big.Int values
// survive. Interface-typed fields need gob.Register. A nil schema accepts
// every value.
//
// gob flattens some values: a pointer to a zero value, an empty slice and an
// empty map all decode as nil. It also writes map entries in iteration order.
// Test rejects both, so a value that passes decodes back equal to itself and
// always encodes to the same bytes.
func Gob[T any](schema Schema[T]) Codec[T] {
	return schemaCodec[T]{schema: schema}
}

func (schemaCodec[T]) Name() string { return "gob" }

func (c schemaCodec[T]) Test(v T) error {
	if c.schema != nil {
		if err := c.schema.Validate(v); err != nil {
			return err
		}
	}
	if err := stableMaps(reflect.ValueOf(v), make(map[uintptr]bool)); err != nil {
		return err
	}

	b, err := c.ToBuffer(v)
	if err != nil {
		return err
	}
	got, err := c.FromBuffer(b)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(v, got) {
		return fmt.Errorf("gob: %T value does not survive a gob round trip", v)
	}
	return nil
}

func (schemaCodec[T]) ToBuffer(v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (c schemaCodec[T]) FromBuffer(b []byte) (T, error) {
	return c.FromReader(bytes.NewReader(b))
}

func (schemaCodec[T]) FromReader(r io.Reader) (T, error) {
	var v T
	if err := gob.NewDecoder(r).Decode(&v); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: gob: %v", ErrDecode, err)
	}
	return v, nil
}

// stableMaps fails on any map holding more than one entry.
func stableMaps(v reflect.Value, seen map[uintptr]bool) error {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || seen[v.Pointer()] {
			return nil
		}
		seen[v.Pointer()] = true
		return stableMaps(v.Elem(), seen)
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return stableMaps(v.Elem(), seen)
	case reflect.Struct:
		for i := range v.NumField() {
			if err := stableMaps(v.Field(i), seen); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		if scalar(v.Type().Elem().Kind()) {
			return nil
		}
		for i := range v.Len() {
			if err := stableMaps(v.Index(i), seen); err != nil {
				return err
			}
		}
	case reflect.Map:
		if v.Len() > 1 {
			return fmt.Errorf("gob: %s with %d entries has no stable encoding", v.Type(), v.Len())
		}
		it := v.MapRange()
		for it.Next() {
			if err := stableMaps(it.Key(), seen); err != nil {
				return err
			}
			if err := stableMaps(it.Value(), seen); err != nil {
				return err
			}
		}
	}
	return nil
}

func scalar(k reflect.Kind) bool {
	return (k >= reflect.Bool && k <= reflect.Complex128) || k == reflect.String
}
