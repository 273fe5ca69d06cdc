// Package store persists cache entries under a single directory. Each entry
// is two files named after the identity id: the raw value bytes and a
// "<id>.meta" metadata record. A Store is unusable until Setup succeeds.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"

	"github.com/tailored-agentic-units/filecache/identity"
	"github.com/tailored-agentic-units/filecache/observability"
)

const metaSuffix = ".meta"

// Pair is a raw store entry.
type Pair struct {
	Identity *identity.Identity
	Value    []byte
}

// Option configures a Store.
type Option func(*Store)

// WithObserver sets the observer that receives store events.
func WithObserver(o observability.Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithClock overrides the time source used for metadata timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.clock = now }
}

// Store is a directory-backed persistence layer keyed by identity id.
// Mutations are serialized; reads may run concurrently with each other.
type Store struct {
	dest     string
	ready    bool
	clock    func() time.Time
	last     time.Time
	observer observability.Observer
	mu       sync.RWMutex
}

// New creates a Store that is not yet set up.
func New(opts ...Option) *Store {
	s := &Store{
		clock:    time.Now,
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start creates a Store and sets it up at dest.
func Start(ctx context.Context, dest string, clean bool, opts ...Option) (*Store, error) {
	s := New(opts...)
	if err := s.Setup(ctx, dest, clean); err != nil {
		return nil, err
	}
	return s, nil
}

// FromConfig creates a ready Store from configuration.
func FromConfig(ctx context.Context, cfg *Config, opts ...Option) (*Store, error) {
	if cfg.Dest == "" {
		return nil, fmt.Errorf("store config: empty dest")
	}
	return Start(ctx, cfg.Dest, cfg.Clean, opts...)
}

// Setup resolves dest to an absolute path and creates it. With clean, any
// existing contents are removed first.
func (s *Store) Setup(ctx context.Context, dest string, clean bool) error {
	abs, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if clean {
		if err := os.RemoveAll(abs); err != nil {
			return fmt.Errorf("setup: clean %s: %w", abs, err)
		}
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("setup: %w", err)
	}

	s.dest = abs
	s.ready = true

	s.emit(ctx, observability.EventStoreSetup, observability.LevelInfo, "store.Setup", map[string]any{
		"dest":  abs,
		"clean": clean,
	})
	return nil
}

func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Dest returns the root directory, or "" before Setup.
func (s *Store) Dest() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dest
}

// Check reports the path of id's value file if it exists.
func (s *Store) Check(id *identity.Identity) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return "", false, fmt.Errorf("check: %w", ErrNotSetup)
	}
	if id == nil {
		return "", false, fmt.Errorf("check: %w", ErrNilIdentity)
	}
	return s.check(s.valuePath(id.ID()))
}

// Open returns a reader over id's value file, or false if absent.
func (s *Store) Open(id *identity.Identity) (io.ReadCloser, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return nil, false, fmt.Errorf("open: %w", ErrNotSetup)
	}
	if id == nil {
		return nil, false, fmt.Errorf("open: %w", ErrNilIdentity)
	}

	f, err := os.Open(s.valuePath(id.ID()))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("open %s: %w", id.ID(), err)
	}
	return f, true, nil
}

// Retrieve reads id's value bytes.
func (s *Store) Retrieve(_ context.Context, id *identity.Identity) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return nil, false, fmt.Errorf("retrieve: %w", ErrNotSetup)
	}
	if id == nil {
		return nil, false, fmt.Errorf("retrieve: %w", ErrNilIdentity)
	}
	return s.retrieve(id.ID())
}

// RetrieveMeta reads id's metadata record.
func (s *Store) RetrieveMeta(_ context.Context, id *identity.Identity) (*Metadata, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return nil, false, fmt.Errorf("retrieve meta: %w", ErrNotSetup)
	}
	if id == nil {
		return nil, false, fmt.Errorf("retrieve meta: %w", ErrNilIdentity)
	}
	return s.retrieveMeta(id.ID())
}

// Lookup reads a metadata record by raw id, for callers that only hold the
// id (such as remote inspection).
func (s *Store) Lookup(_ context.Context, id uuid.UUID) (*Metadata, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		return nil, false, fmt.Errorf("lookup: %w", ErrNotSetup)
	}
	return s.retrieveMeta(id)
}

// Insert writes each pair in order. For every pair the existing metadata is
// loaded (or created), touched, and written after the value file.
func (s *Store) Insert(ctx context.Context, pairs ...Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return fmt.Errorf("insert: %w", ErrNotSetup)
	}
	for i, p := range pairs {
		if p.Identity == nil {
			return fmt.Errorf("insert: pair %d: %w", i, ErrNilIdentity)
		}
	}

	for _, p := range pairs {
		now := s.now()

		meta, ok, err := s.retrieveMeta(p.Identity.ID())
		if err != nil {
			return fmt.Errorf("insert %s: %w", p.Identity.ID(), err)
		}
		if ok {
			// Keep the original CreatedAt but persist the caller's current label.
			meta.identity = p.Identity
			meta.Touch(now)
		} else {
			meta = NewMetadata(p.Identity, now)
		}

		if err := atomic.WriteFile(s.valuePath(p.Identity.ID()), bytes.NewReader(p.Value)); err != nil {
			return fmt.Errorf("insert %s: write value: %w", p.Identity.ID(), err)
		}

		encoded, err := meta.MarshalBinary()
		if err != nil {
			return fmt.Errorf("insert %s: %w", p.Identity.ID(), err)
		}
		if err := atomic.WriteFile(s.metaPath(p.Identity.ID()), bytes.NewReader(encoded)); err != nil {
			return fmt.Errorf("insert %s: write metadata: %w", p.Identity.ID(), err)
		}
	}

	if len(pairs) > 0 {
		s.emit(ctx, observability.EventStoreInsert, observability.LevelVerbose, "store.Insert", map[string]any{
			"pairs": len(pairs),
		})
	}
	return nil
}

// Delete removes id's value and metadata files. It reports false when no
// value file existed.
func (s *Store) Delete(ctx context.Context, id *identity.Identity) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return false, fmt.Errorf("delete: %w", ErrNotSetup)
	}
	if id == nil {
		return false, fmt.Errorf("delete: %w", ErrNilIdentity)
	}

	if err := os.Remove(s.valuePath(id.ID())); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("delete %s: %w", id.ID(), err)
	}
	metaPath, ok, err := s.checkMeta(id.ID())
	if err != nil {
		return true, fmt.Errorf("delete %s: %w", id.ID(), err)
	}
	if ok {
		if err := os.Remove(metaPath); err != nil {
			return true, fmt.Errorf("delete %s: metadata: %w", id.ID(), err)
		}
	}

	s.emit(ctx, observability.EventStoreDelete, observability.LevelVerbose, "store.Delete", map[string]any{
		"id": id.ID().String(),
	})
	return true, nil
}

// LoadMeta returns metadata records ordered most recently modified first,
// limited to size entries. size <= 0 returns every record.
func (s *Store) LoadMeta(ctx context.Context, size int) ([]*Metadata, error) {
	if !s.Ready() {
		return nil, fmt.Errorf("load meta: %w", ErrNotSetup)
	}

	var list []*Metadata
	for m, err := range s.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("load meta: %w", err)
		}
		list = append(list, m)
	}

	sort.Slice(list, func(i, j int) bool {
		a, b := list[i].ModifiedAt(), list[j].ModifiedAt()
		if !a.Equal(b) {
			return a.After(b)
		}
		return list[i].identity.ID().String() > list[j].identity.ID().String()
	})

	if size > 0 && len(list) > size {
		list = list[:size]
	}
	return list, nil
}

// Load returns up to size entries, most recently modified first. Entries
// whose value file vanished after the metadata scan are skipped.
func (s *Store) Load(ctx context.Context, size int) ([]Pair, error) {
	metas, err := s.LoadMeta(ctx, size)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	pairs := make([]Pair, 0, len(metas))
	for _, m := range metas {
		value, ok, err := s.retrieve(m.identity.ID())
		if err != nil {
			return nil, fmt.Errorf("load: %w", err)
		}
		if !ok {
			continue
		}
		pairs = append(pairs, Pair{Identity: m.identity, Value: value})
	}
	return pairs, nil
}

// Len counts the metadata records on disk.
func (s *Store) Len(ctx context.Context) (int, error) {
	if !s.Ready() {
		return 0, fmt.Errorf("len: %w", ErrNotSetup)
	}

	n := 0
	for _, err := range s.All(ctx) {
		if err != nil {
			return 0, fmt.Errorf("len: %w", err)
		}
		n++
	}
	return n, nil
}

// Reset wipes and recreates the root directory.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.ready {
		return fmt.Errorf("reset: %w", ErrNotSetup)
	}
	if err := os.RemoveAll(s.dest); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := os.MkdirAll(s.dest, 0o755); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	s.emit(ctx, observability.EventStoreReset, observability.LevelInfo, "store.Reset", map[string]any{
		"dest": s.dest,
	})
	return nil
}

func (s *Store) valuePath(id uuid.UUID) string {
	return filepath.Join(s.dest, id.String())
}

func (s *Store) metaPath(id uuid.UUID) string {
	return filepath.Join(s.dest, id.String()+metaSuffix)
}

func (s *Store) check(path string) (string, bool, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("check: %w", err)
	}
	return path, true, nil
}

// checkMeta reports whether id's metadata file exists. Callers hold mu.
func (s *Store) checkMeta(id uuid.UUID) (string, bool, error) {
	return s.check(s.metaPath(id))
}

func (s *Store) retrieve(id uuid.UUID) ([]byte, bool, error) {
	data, err := os.ReadFile(s.valuePath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("retrieve %s: %w", id, err)
	}
	return data, true, nil
}

func (s *Store) retrieveMeta(id uuid.UUID) (*Metadata, bool, error) {
	m, err := readMeta(s.metaPath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return m, true, nil
}

func readMeta(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := new(Metadata)
	if err := m.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return m, nil
}

// now returns a timestamp strictly later than any previously issued by this
// Store so that writes are totally ordered by ModifiedAt. Callers hold mu.
func (s *Store) now() time.Time {
	t := s.clock().Round(0)
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

func (s *Store) emit(ctx context.Context, typ observability.EventType, level observability.Level, source string, data map[string]any) {
	s.observer.OnEvent(ctx, observability.NewEvent(typ, level, source, data))
}
