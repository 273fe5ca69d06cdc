package store

import "errors"

// Sentinel errors for store operations.
var (
	ErrNotSetup        = errors.New("store is not set up")
	ErrCorruptMetadata = errors.New("corrupt metadata")
	ErrNilIdentity     = errors.New("nil identity")
)
