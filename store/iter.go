package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailored-agentic-units/filecache/query"
)

// dirBatch bounds how many directory entries are read per syscall.
const dirBatch = 64

// All lazily enumerates the metadata records on disk in directory order.
// Each call starts a fresh scan; nothing is cached between calls. Records
// removed between listing and reading are skipped.
func (s *Store) All(ctx context.Context) iter.Seq2[*Metadata, error] {
	return func(yield func(*Metadata, error) bool) {
		s.mu.RLock()
		dest, ready := s.dest, s.ready
		s.mu.RUnlock()

		if !ready {
			yield(nil, fmt.Errorf("iterate: %w", ErrNotSetup))
			return
		}

		dir, err := os.Open(dest)
		if err != nil {
			yield(nil, fmt.Errorf("iterate: %w", err))
			return
		}
		defer dir.Close()

		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			entries, readErr := dir.ReadDir(dirBatch)
			for _, e := range entries {
				if e.IsDir() || !strings.HasSuffix(e.Name(), metaSuffix) {
					continue
				}

				s.mu.RLock()
				m, err := readMeta(filepath.Join(dest, e.Name()))
				s.mu.RUnlock()

				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				if !yield(m, err) {
					return
				}
			}

			if errors.Is(readErr, io.EOF) {
				return
			}
			if readErr != nil {
				yield(nil, fmt.Errorf("iterate: %w", readErr))
				return
			}
		}
	}
}

// Recent enumerates metadata records most recently modified first. Ordering
// needs the full listing, so the scan completes before the first yield.
func (s *Store) Recent(ctx context.Context) iter.Seq2[*Metadata, error] {
	return func(yield func(*Metadata, error) bool) {
		list, err := s.LoadMeta(ctx, 0)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, m := range list {
			if !yield(m, nil) {
				return
			}
		}
	}
}

// Query searches stored metadata, most recently modified first.
func (s *Store) Query() *query.Binding[*Metadata, *Metadata] {
	return query.New(s.Recent)
}
