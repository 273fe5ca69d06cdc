// Package identity provides the keys used by the cache and its store.
// An Identity pairs an immutable, time-ordered id with a mutable
// human-readable name. Equality is always by id; names are not unique.
package identity

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidID is returned when a persisted identity carries an id that is
// not a UUID.
var ErrInvalidID = errors.New("invalid identity id")

// Identity is an entry key. The id is assigned once at creation and never
// changes. All methods are safe for concurrent use.
type Identity struct {
	id        uuid.UUID
	name      string
	createdAt time.Time
	updatedAt time.Time
	mu        sync.RWMutex
}

// Source is the plain, persistable form of an Identity.
type Source struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates an Identity with a fresh UUIDv7 id.
func New(name string) *Identity {
	now := time.Now()
	return &Identity{
		id:        uuid.Must(uuid.NewV7()),
		name:      name,
		createdAt: now,
		updatedAt: now,
	}
}

// Namespace scopes the ids derived by Named.
var Namespace = uuid.MustParse("0d6c8f3e-5b2a-4e71-9c84-3f1a7d2e6b90")

// Named returns an Identity whose id is derived from name (UUIDv5 in
// Namespace), so the same name always addresses the same entry.
func Named(name string) *Identity {
	now := time.Now()
	return &Identity{
		id:        uuid.NewSHA1(Namespace, []byte(name)),
		name:      name,
		createdAt: now,
		updatedAt: now,
	}
}

// FromSource rebuilds an Identity from its persisted form.
func FromSource(src Source) (*Identity, error) {
	if src.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: nil uuid", ErrInvalidID)
	}
	if v := src.ID.Version(); v < 1 || v > 8 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidID, src.ID)
	}
	return &Identity{
		id:        src.ID,
		name:      src.Name,
		createdAt: src.CreatedAt,
		updatedAt: src.UpdatedAt,
	}, nil
}

// Parse validates s as a UUID and returns it.
func Parse(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return id, nil
}

func (k *Identity) ID() uuid.UUID {
	return k.id
}

func (k *Identity) Name() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.name
}

// SetName replaces the label and bumps UpdatedAt.
func (k *Identity) SetName(name string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.name = name
	k.updatedAt = time.Now()
}

func (k *Identity) CreatedAt() time.Time {
	return k.createdAt
}

func (k *Identity) UpdatedAt() time.Time {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.updatedAt
}

// Equal reports whether k and other share the same id.
func (k *Identity) Equal(other *Identity) bool {
	if k == nil || other == nil {
		return k == other
	}
	return k.id == other.id
}

// Source returns a snapshot of k suitable for persistence.
func (k *Identity) Source() Source {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return Source{
		ID:        k.id,
		Name:      k.name,
		CreatedAt: k.createdAt,
		UpdatedAt: k.updatedAt,
	}
}

func (k *Identity) String() string {
	return fmt.Sprintf("%s(%s)", k.Name(), k.id)
}
