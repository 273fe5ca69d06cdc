package cache

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidKey   = errors.New("invalid cache key")
	ErrInvalidValue = errors.New("invalid cache value")
)

// ValidationError carries the codec's reason for rejecting a value. It
// matches ErrInvalidValue under errors.Is.
type ValidationError struct {
	Codec  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Codec, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidValue
}
