// Package cache keeps a bounded working set of values in memory and spills
// the overflow to a directory-backed store.
//
// Entries leave memory in insertion order: when a Set finds the cache full,
// the oldest resident entry is written to the store before the new entry is
// appended. Get can fall back to the store and pull an evicted entry back in,
// which may in turn evict another.
//
// Every public method holds the cache's mutex for its full duration,
// including store I/O, so the read-evict-write-insert sequence of Set is
// never interleaved with another call on the same Cache.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/filecache/codec"
	"github.com/tailored-agentic-units/filecache/identity"
	"github.com/tailored-agentic-units/filecache/observability"
	"github.com/tailored-agentic-units/filecache/store"
)

// Entry pairs a resident identity with its value.
type Entry[T any] struct {
	Identity *identity.Identity
	Value    T
}

type options struct {
	observer observability.Observer
}

// Option configures a Cache.
type Option func(*options)

// WithObserver sets the observer that receives cache events. Start also
// attaches it to the Store it creates.
func WithObserver(o observability.Observer) Option {
	return func(opts *options) { opts.observer = o }
}

func newOptions(opts []Option) options {
	o := options{observer: observability.NoOpObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Cache is a bounded FIFO cache of T values backed by a Store.
type Cache[T any] struct {
	store    *store.Store
	codec    codec.Codec[T]
	maxSize  int
	order    *list.List
	index    map[uuid.UUID]*list.Element
	observer observability.Observer
	mu       sync.Mutex
}

// New creates a Cache over st. A maxSize of zero makes the cache
// write-through: values go straight to the store and memory stays empty.
func New[T any](st *store.Store, c codec.Codec[T], maxSize int, opts ...Option) *Cache[T] {
	o := newOptions(opts)

	return &Cache[T]{
		store:    st,
		codec:    c,
		maxSize:  max(maxSize, 0),
		order:    list.New(),
		index:    make(map[uuid.UUID]*list.Element),
		observer: o.observer,
	}
}

// Start sets up a Store from cfg.Store and returns a Cache bound to it.
func Start[T any](ctx context.Context, cfg *Config, c codec.Codec[T], opts ...Option) (*Cache[T], error) {
	o := newOptions(opts)

	st, err := store.FromConfig(ctx, &cfg.Store, store.WithObserver(o.observer))
	if err != nil {
		return nil, fmt.Errorf("start cache: %w", err)
	}
	return New(st, c, cfg.MaxSize, opts...), nil
}

// Store returns the backing store.
func (c *Cache[T]) Store() *store.Store {
	return c.store
}

func (c *Cache[T]) Codec() codec.Codec[T] {
	return c.codec
}

// Ready reports whether the backing store has been set up.
func (c *Cache[T]) Ready() bool {
	return c.store.Ready()
}

func (c *Cache[T]) MaxSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSize
}

// SetMaxSize changes the capacity. Shrinking does not evict immediately; the
// next Set evicts as many entries as needed. Negative values are treated as
// zero.
func (c *Cache[T]) SetMaxSize(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSize = max(n, 0)
}

// Set stores v under id. A resident id has its value replaced in place and
// keeps its position in eviction order. Otherwise, when the cache is full,
// the oldest entries are persisted and dropped before v is appended. A value
// rejected by the codec leaves cache and store untouched.
func (c *Cache[T]) Set(ctx context.Context, id *identity.Identity, v T) (*identity.Identity, error) {
	if id == nil {
		return nil, fmt.Errorf("set: %w: nil identity", ErrInvalidKey)
	}
	if err := c.validate(v); err != nil {
		return nil, fmt.Errorf("set %s: %w", id.ID(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.set(ctx, id, v); err != nil {
		return nil, err
	}
	return id, nil
}

// SetName stores v under a freshly minted identity labeled name. Names are
// not unique: two calls with the same name create two entries.
func (c *Cache[T]) SetName(ctx context.Context, name string, v T) (*identity.Identity, error) {
	return c.Set(ctx, identity.New(name), v)
}

// Update replaces the value of an existing entry and reports whether one
// existed. With syncStore, an entry present only in the store also counts,
// and the new value is written through to the store.
func (c *Cache[T]) Update(ctx context.Context, id *identity.Identity, v T, syncStore bool) (bool, error) {
	if id == nil {
		return false, fmt.Errorf("update: %w: nil identity", ErrInvalidKey)
	}
	if err := c.validate(v); err != nil {
		return false, fmt.Errorf("update %s: %w", id.ID(), err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	present, err := c.has(id, syncStore)
	if err != nil || !present {
		return false, err
	}

	if err := c.set(ctx, id, v); err != nil {
		return false, err
	}
	// Write-through caches already persisted in set.
	if syncStore && c.maxSize > 0 {
		if err := c.persist(ctx, Entry[T]{Identity: id, Value: v}); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Get returns the resident value for id. With includeStore, a miss falls
// back to the store; a value found there is decoded and brought back into
// memory, which may evict the oldest entry.
func (c *Cache[T]) Get(ctx context.Context, id *identity.Identity, includeStore bool) (T, bool, error) {
	var zero T
	if id == nil {
		return zero, false, fmt.Errorf("get: %w: nil identity", ErrInvalidKey)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[id.ID()]; ok {
		return elem.Value.(*Entry[T]).Value, true, nil
	}
	if !includeStore {
		return zero, false, nil
	}

	v, ok, err := c.fetch(id)
	if err != nil || !ok {
		return zero, false, err
	}
	if err := c.validate(v); err != nil {
		return zero, false, fmt.Errorf("get %s: %w", id.ID(), err)
	}

	// A write-through cache keeps nothing resident, so re-setting would only
	// rewrite the same bytes.
	if c.maxSize > 0 {
		if err := c.set(ctx, id, v); err != nil {
			return zero, false, err
		}
	}
	return v, true, nil
}

// Has reports memory membership, or with includeStore, presence of a value
// file in the store. It never decodes.
func (c *Cache[T]) Has(_ context.Context, id *identity.Identity, includeStore bool) (bool, error) {
	if id == nil {
		return false, fmt.Errorf("has: %w: nil identity", ErrInvalidKey)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.has(id, includeStore)
}

// Delete removes id from memory and, with includeStore, from the store. It
// reports whether either removal happened.
func (c *Cache[T]) Delete(ctx context.Context, id *identity.Identity, includeStore bool) (bool, error) {
	if id == nil {
		return false, fmt.Errorf("delete: %w: nil identity", ErrInvalidKey)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	inMemory := c.remove(id.ID())

	inStore := false
	if includeStore {
		var err error
		if inStore, err = c.store.Delete(ctx, id); err != nil {
			return inMemory, err
		}
	}

	deleted := inMemory || inStore
	if deleted {
		c.emit(ctx, observability.EventCacheDelete, observability.LevelVerbose, "cache.Delete", map[string]any{
			"id":       id.ID().String(),
			"memory":   inMemory,
			"store":    inStore,
			"resident": c.order.Len(),
		})
	}
	return deleted, nil
}

// GetMeta reads id's metadata record from the store. Resident entries that
// were never persisted have none.
func (c *Cache[T]) GetMeta(ctx context.Context, id *identity.Identity) (*store.Metadata, bool, error) {
	if id == nil {
		return nil, false, fmt.Errorf("get meta: %w: nil identity", ErrInvalidKey)
	}
	return c.store.RetrieveMeta(ctx, id)
}

// LoadFromStore brings up to MaxSize entries into memory, most recently
// modified first.
func (c *Cache[T]) LoadFromStore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxSize == 0 {
		return nil
	}

	pairs, err := c.store.Load(ctx, c.maxSize)
	if err != nil {
		return fmt.Errorf("load from store: %w", err)
	}

	for _, p := range pairs {
		v, err := c.codec.FromBuffer(p.Value)
		if err != nil {
			return fmt.Errorf("load from store %s: %w", p.Identity.ID(), err)
		}
		if err := c.validate(v); err != nil {
			return fmt.Errorf("load from store %s: %w", p.Identity.ID(), err)
		}
		if err := c.set(ctx, p.Identity, v); err != nil {
			return err
		}
	}

	c.emit(ctx, observability.EventCacheLoad, observability.LevelInfo, "cache.LoadFromStore", map[string]any{
		"loaded":   len(pairs),
		"resident": c.order.Len(),
	})
	return nil
}

// FlushToStore writes every resident entry to the store, oldest first, and
// empties memory. Each entry leaves memory only once its write succeeded, so
// a failure keeps the unwritten entries resident.
func (c *Cache[T]) FlushToStore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	flushed := 0
	for c.order.Len() > 0 {
		e := c.order.Front().Value.(*Entry[T])
		if err := c.persist(ctx, *e); err != nil {
			return fmt.Errorf("flush to store: %w", err)
		}
		c.remove(e.Identity.ID())
		flushed++
	}

	c.emit(ctx, observability.EventCacheFlush, observability.LevelInfo, "cache.FlushToStore", map[string]any{
		"flushed": flushed,
	})
	return nil
}

// Save persists the given resident entries without removing them from
// memory. Identities that are not resident are skipped.
func (c *Cache[T]) Save(ctx context.Context, ids ...*identity.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var entries []Entry[T]
	for _, id := range ids {
		if id == nil {
			continue
		}
		if elem, ok := c.index[id.ID()]; ok {
			entries = append(entries, *elem.Value.(*Entry[T]))
		}
	}
	return c.save(ctx, entries)
}

// SaveAll persists every resident entry without removing it from memory.
func (c *Cache[T]) SaveAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.save(ctx, c.entries())
}

// Len returns the number of resident entries.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Keys returns the resident identities, oldest first.
func (c *Cache[T]) Keys() []*identity.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]*identity.Identity, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*Entry[T]).Identity)
	}
	return keys
}

// Entries returns a snapshot of the resident entries, oldest first.
func (c *Cache[T]) Entries() []Entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries()
}

// Range calls fn for each resident entry, oldest first, until fn returns
// false. It iterates a snapshot, so fn may call back into the cache.
func (c *Cache[T]) Range(fn func(id *identity.Identity, v T) bool) {
	for _, e := range c.Entries() {
		if !fn(e.Identity, e.Value) {
			return
		}
	}
}

// Clear drops every resident entry without touching the store.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	clear(c.index)
}

func (c *Cache[T]) validate(v T) error {
	if err := c.codec.Test(v); err != nil {
		return &ValidationError{Codec: c.codec.Name(), Reason: err.Error()}
	}
	return nil
}

// set inserts or replaces under mu, evicting as needed.
func (c *Cache[T]) set(ctx context.Context, id *identity.Identity, v T) error {
	if elem, ok := c.index[id.ID()]; ok {
		elem.Value = &Entry[T]{Identity: id, Value: v}
		c.emit(ctx, observability.EventCacheSet, observability.LevelVerbose, "cache.Set", map[string]any{
			"id":      id.ID().String(),
			"replace": true,
		})
		return nil
	}

	for c.order.Len() > 0 && c.order.Len() >= c.maxSize {
		if err := c.evictOldest(ctx); err != nil {
			return err
		}
	}

	if c.maxSize == 0 {
		if err := c.persist(ctx, Entry[T]{Identity: id, Value: v}); err != nil {
			return fmt.Errorf("set %s: %w", id.ID(), err)
		}
	} else {
		c.index[id.ID()] = c.order.PushBack(&Entry[T]{Identity: id, Value: v})
	}

	c.emit(ctx, observability.EventCacheSet, observability.LevelVerbose, "cache.Set", map[string]any{
		"id":       id.ID().String(),
		"name":     id.Name(),
		"resident": c.order.Len(),
	})
	return nil
}

// evictOldest persists the front entry and then drops it. A failed write
// leaves the entry resident.
func (c *Cache[T]) evictOldest(ctx context.Context) error {
	e := c.order.Front().Value.(*Entry[T])
	if err := c.persist(ctx, *e); err != nil {
		return fmt.Errorf("evict %s: %w", e.Identity.ID(), err)
	}
	c.remove(e.Identity.ID())

	c.emit(ctx, observability.EventCacheEvict, observability.LevelVerbose, "cache.evict", map[string]any{
		"id":   e.Identity.ID().String(),
		"name": e.Identity.Name(),
	})
	return nil
}

func (c *Cache[T]) persist(ctx context.Context, e Entry[T]) error {
	b, err := c.codec.ToBuffer(e.Value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Identity.ID(), err)
	}
	return c.store.Insert(ctx, store.Pair{Identity: e.Identity, Value: b})
}

func (c *Cache[T]) save(ctx context.Context, entries []Entry[T]) error {
	if len(entries) == 0 {
		return nil
	}

	pairs := make([]store.Pair, 0, len(entries))
	for _, e := range entries {
		b, err := c.codec.ToBuffer(e.Value)
		if err != nil {
			return fmt.Errorf("save: encode %s: %w", e.Identity.ID(), err)
		}
		pairs = append(pairs, store.Pair{Identity: e.Identity, Value: b})
	}
	if err := c.store.Insert(ctx, pairs...); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	c.emit(ctx, observability.EventCacheSave, observability.LevelVerbose, "cache.Save", map[string]any{
		"saved": len(pairs),
	})
	return nil
}

func (c *Cache[T]) has(id *identity.Identity, includeStore bool) (bool, error) {
	if _, ok := c.index[id.ID()]; ok {
		return true, nil
	}
	if !includeStore {
		return false, nil
	}
	_, ok, err := c.store.Check(id)
	return ok, err
}

// fetch decodes id's value straight from its store file.
func (c *Cache[T]) fetch(id *identity.Identity) (T, bool, error) {
	var zero T

	r, ok, err := c.store.Open(id)
	if err != nil || !ok {
		return zero, false, err
	}
	defer r.Close()

	v, err := codec.Decode(c.codec, r)
	if err != nil {
		return zero, false, fmt.Errorf("get %s: %w", id.ID(), err)
	}
	return v, true, nil
}

func (c *Cache[T]) remove(id uuid.UUID) bool {
	elem, ok := c.index[id]
	if !ok {
		return false
	}
	c.order.Remove(elem)
	delete(c.index, id)
	return true
}

func (c *Cache[T]) entries() []Entry[T] {
	entries := make([]Entry[T], 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		entries = append(entries, *elem.Value.(*Entry[T]))
	}
	return entries
}

func (c *Cache[T]) emit(ctx context.Context, typ observability.EventType, level observability.Level, source string, data map[string]any) {
	c.observer.OnEvent(ctx, observability.NewEvent(typ, level, source, data))
}
