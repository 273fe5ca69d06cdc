package cache

import (
	"context"
	"fmt"
	"iter"

	"github.com/tailored-agentic-units/filecache/codec"
	"github.com/tailored-agentic-units/filecache/query"
	"github.com/tailored-agentic-units/filecache/store"
)

// Query searches resident entries in insertion order. Each search works on a
// snapshot taken when it starts.
//
//	e, ok, err := c.Query().FindFirstBy(ctx, "identity.name", func(v any) bool { return v == "a" })
func (c *Cache[T]) Query() *query.Binding[Entry[T], Entry[T]] {
	return query.New(func(ctx context.Context) iter.Seq2[Entry[T], error] {
		return query.Slice(c.Entries())(ctx)
	})
}

// StoreQuery searches persisted entries, most recently modified first.
// Predicates see metadata; matches are decoded from the store. Memory is
// neither read nor changed.
func (c *Cache[T]) StoreQuery() *query.Binding[*store.Metadata, Entry[T]] {
	return query.Map(c.store.Recent, func(ctx context.Context, m *store.Metadata) (Entry[T], error) {
		id := m.Identity()

		r, ok, err := c.store.Open(id)
		if err != nil {
			return Entry[T]{}, err
		}
		if !ok {
			return Entry[T]{}, fmt.Errorf("store query %s: value missing", id.ID())
		}
		defer r.Close()

		v, err := codec.Decode(c.codec, r)
		if err != nil {
			return Entry[T]{}, fmt.Errorf("store query %s: %w", id.ID(), err)
		}
		return Entry[T]{Identity: id, Value: v}, nil
	})
}
