// Package query binds predicate search to a lazy source. A Binding pairs one
// source with an optional transform applied to matches; FindFirst stops at
// the first match while FindMany drains the source. Results follow the
// source's natural iteration order.
//
//	b := query.Map(src, func(ctx context.Context, k *identity.Identity) (Entry, error) { ... })
//	e, ok, err := b.FindFirstBy(ctx, "name", func(v any) bool { return v == "a" })
package query

import (
	"context"
	"iter"
	"slices"
)

// Source produces a fresh single-pass sequence on every call.
type Source[T any] func(ctx context.Context) iter.Seq2[T, error]

// Transform converts a matched input into the binding's output type.
type Transform[In, Out any] func(ctx context.Context, in In) (Out, error)

// Binding is a predicate search bound to a Source.
type Binding[In, Out any] struct {
	source    Source[In]
	transform Transform[In, Out]
}

// New binds src with no transform.
func New[T any](src Source[T]) *Binding[T, T] {
	return &Binding[T, T]{
		source: src,
		transform: func(_ context.Context, in T) (T, error) {
			return in, nil
		},
	}
}

// Map binds src and converts every match with transform.
func Map[In, Out any](src Source[In], transform Transform[In, Out]) *Binding[In, Out] {
	return &Binding[In, Out]{source: src, transform: transform}
}

// FindFirst returns the first item matching pred.
func (b *Binding[In, Out]) FindFirst(ctx context.Context, pred func(In) bool) (Out, bool, error) {
	var zero Out

	in, ok, err := FindFirst(b.source(ctx), pred)
	if err != nil || !ok {
		return zero, false, err
	}

	out, err := b.transform(ctx, in)
	if err != nil {
		return zero, false, err
	}
	return out, true, nil
}

// FindMany returns every item matching pred.
func (b *Binding[In, Out]) FindMany(ctx context.Context, pred func(In) bool) ([]Out, error) {
	ins, err := FindMany(b.source(ctx), pred)
	if err != nil {
		return nil, err
	}

	outs := make([]Out, 0, len(ins))
	for _, in := range ins {
		out, err := b.transform(ctx, in)
		if err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	return outs, nil
}

// FindFirstBy resolves path on each candidate and applies pred to the result.
func (b *Binding[In, Out]) FindFirstBy(ctx context.Context, path string, pred func(any) bool) (Out, bool, error) {
	return b.FindFirst(ctx, By[In](path, pred))
}

// FindManyBy resolves path on each candidate and applies pred to the result.
func (b *Binding[In, Out]) FindManyBy(ctx context.Context, path string, pred func(any) bool) ([]Out, error) {
	return b.FindMany(ctx, By[In](path, pred))
}

// By adapts a predicate over a nested field into a predicate over T.
func By[T any](path string, pred func(any) bool) func(T) bool {
	return func(item T) bool {
		return pred(Resolve(item, path))
	}
}

// FindFirst scans seq and returns the first item matching pred. A source
// error stops the scan.
func FindFirst[T any](seq iter.Seq2[T, error], pred func(T) bool) (T, bool, error) {
	var zero T
	for item, err := range seq {
		if err != nil {
			return zero, false, err
		}
		if pred(item) {
			return item, true, nil
		}
	}
	return zero, false, nil
}

// FindMany drains seq and returns every item matching pred.
func FindMany[T any](seq iter.Seq2[T, error], pred func(T) bool) ([]T, error) {
	var result []T
	for item, err := range seq {
		if err != nil {
			return nil, err
		}
		if pred(item) {
			result = append(result, item)
		}
	}
	return result, nil
}

// Slice adapts a snapshot slice into a Source. The slice is copied so later
// mutation by the caller does not affect running scans.
func Slice[T any](items []T) Source[T] {
	items = slices.Clone(items)
	return func(ctx context.Context) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			for _, item := range items {
				if err := ctx.Err(); err != nil {
					var zero T
					yield(zero, err)
					return
				}
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}

// Seq adapts an infallible sequence factory into a Source.
func Seq[T any](fn func() iter.Seq[T]) Source[T] {
	return func(context.Context) iter.Seq2[T, error] {
		return func(yield func(T, error) bool) {
			for item := range fn() {
				if !yield(item, nil) {
					return
				}
			}
		}
	}
}
