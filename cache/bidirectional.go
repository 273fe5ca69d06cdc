package cache

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/tailored-agentic-units/filecache/codec"
	"github.com/tailored-agentic-units/filecache/identity"
	"github.com/tailored-agentic-units/filecache/store"
)

const (
	keysDir   = ".keys"
	valuesDir = ".values"
)

// Bidirectional maps string keys to string values and back. It composes two
// string caches rooted at <root>/.keys and <root>/.values; entries are
// addressed by identity.Named, so a given string always lands on the same
// store files.
type Bidirectional struct {
	root   string
	keys   *Cache[string]
	values *Cache[string]
}

// NewBidirectional sets up both stores under root and returns the wrapper.
func NewBidirectional(ctx context.Context, root string, maxSize int, clean bool, opts ...Option) (*Bidirectional, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("bidirectional: %w", err)
	}

	o := newOptions(opts)

	keyStore, err := store.Start(ctx, filepath.Join(abs, keysDir), clean, store.WithObserver(o.observer))
	if err != nil {
		return nil, fmt.Errorf("bidirectional keys: %w", err)
	}
	valueStore, err := store.Start(ctx, filepath.Join(abs, valuesDir), clean, store.WithObserver(o.observer))
	if err != nil {
		return nil, fmt.Errorf("bidirectional values: %w", err)
	}

	return &Bidirectional{
		root:   abs,
		keys:   New(keyStore, codec.String(), maxSize, opts...),
		values: New(valueStore, codec.String(), maxSize, opts...),
	}, nil
}

// Root returns the absolute root directory.
func (b *Bidirectional) Root() string {
	return b.root
}

func (b *Bidirectional) Ready() bool {
	return b.keys.Ready() && b.values.Ready()
}

func (b *Bidirectional) MaxSize() int {
	return b.keys.MaxSize()
}

// SetMaxSize applies n to both directions.
func (b *Bidirectional) SetMaxSize(n int) {
	b.keys.SetMaxSize(n)
	b.values.SetMaxSize(n)
}

// Len returns the number of resident keys.
func (b *Bidirectional) Len() int {
	return b.keys.Len()
}

// Set records key -> value and value -> key.
func (b *Bidirectional) Set(ctx context.Context, key, value string) error {
	if _, err := b.keys.Set(ctx, identity.Named(key), value); err != nil {
		return err
	}
	if _, err := b.values.Set(ctx, identity.Named(value), key); err != nil {
		return err
	}
	return nil
}

// GetByKey returns the value recorded for key, consulting the store on a miss.
func (b *Bidirectional) GetByKey(ctx context.Context, key string) (string, bool, error) {
	return b.keys.Get(ctx, identity.Named(key), true)
}

// GetByValue returns the key recorded for value, consulting the store on a
// miss.
func (b *Bidirectional) GetByValue(ctx context.Context, value string) (string, bool, error) {
	return b.values.Get(ctx, identity.Named(value), true)
}

// Get resolves s as a key first and as a value second.
func (b *Bidirectional) Get(ctx context.Context, s string) (string, bool, error) {
	v, ok, err := b.GetByKey(ctx, s)
	if err != nil || ok {
		return v, ok, err
	}
	return b.GetByValue(ctx, s)
}

func (b *Bidirectional) HasKey(ctx context.Context, key string, includeStore bool) (bool, error) {
	return b.keys.Has(ctx, identity.Named(key), includeStore)
}

func (b *Bidirectional) HasValue(ctx context.Context, value string, includeStore bool) (bool, error) {
	return b.values.Has(ctx, identity.Named(value), includeStore)
}

// Has reports whether s is known as either a key or a value.
func (b *Bidirectional) Has(ctx context.Context, s string, includeStore bool) (bool, error) {
	ok, err := b.HasKey(ctx, s, includeStore)
	if err != nil || ok {
		return ok, err
	}
	return b.HasValue(ctx, s, includeStore)
}

// Update points key at newValue and drops the reverse mapping of the old
// value. It reports false when key is unknown.
func (b *Bidirectional) Update(ctx context.Context, key, newValue string, syncStore bool) (bool, error) {
	old, hadOld, err := b.GetByKey(ctx, key)
	if err != nil {
		return false, err
	}

	ok, err := b.keys.Update(ctx, identity.Named(key), newValue, syncStore)
	if err != nil || !ok {
		return false, err
	}

	if hadOld {
		if _, err := b.values.Delete(ctx, identity.Named(old), syncStore); err != nil {
			return false, err
		}
	}
	if _, err := b.values.Set(ctx, identity.Named(newValue), key); err != nil {
		return false, err
	}
	return true, nil
}

// Delete removes key and its reverse mapping. It reports true only when
// both directions were removed.
func (b *Bidirectional) Delete(ctx context.Context, key string, includeStore bool) (bool, error) {
	current, ok, err := b.GetByKey(ctx, key)
	if err != nil {
		return false, err
	}

	valueDeleted := false
	if ok {
		if valueDeleted, err = b.values.Delete(ctx, identity.Named(current), includeStore); err != nil {
			return false, err
		}
	}

	keyDeleted, err := b.keys.Delete(ctx, identity.Named(key), includeStore)
	if err != nil {
		return false, err
	}
	return keyDeleted && valueDeleted, nil
}

func (b *Bidirectional) LoadFromStore(ctx context.Context) error {
	if err := b.keys.LoadFromStore(ctx); err != nil {
		return err
	}
	return b.values.LoadFromStore(ctx)
}

func (b *Bidirectional) FlushToStore(ctx context.Context) error {
	if err := b.keys.FlushToStore(ctx); err != nil {
		return err
	}
	return b.values.FlushToStore(ctx)
}

func (b *Bidirectional) SaveAll(ctx context.Context) error {
	if err := b.keys.SaveAll(ctx); err != nil {
		return err
	}
	return b.values.SaveAll(ctx)
}

// Save persists the given keys and their reverse mappings without evicting
// them. Keys that are not resident are skipped.
func (b *Bidirectional) Save(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		id := identity.Named(key)

		value, ok, err := b.keys.Get(ctx, id, false)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := b.values.Save(ctx, identity.Named(value)); err != nil {
			return err
		}
		if err := b.keys.Save(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// All returns the resident keys and values, oldest first.
func (b *Bidirectional) All() (keys, values []string) {
	for _, id := range b.keys.Keys() {
		keys = append(keys, id.Name())
	}
	for _, id := range b.values.Keys() {
		values = append(values, id.Name())
	}
	return keys, values
}
