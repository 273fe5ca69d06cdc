package identity_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/filecache/identity"
)

func TestNew(t *testing.T) {
	k := identity.New("a")

	if k.Name() != "a" {
		t.Errorf("Name() = %q, want %q", k.Name(), "a")
	}
	if k.ID() == uuid.Nil {
		t.Error("ID() should not be nil")
	}
	if k.ID().Version() != 7 {
		t.Errorf("ID().Version() = %d, want 7", k.ID().Version())
	}
	if !k.CreatedAt().Equal(k.UpdatedAt()) {
		t.Errorf("CreatedAt() = %v, UpdatedAt() = %v, want equal", k.CreatedAt(), k.UpdatedAt())
	}
}

func TestNew_SameNameDistinctIDs(t *testing.T) {
	k1 := identity.New("same")
	k2 := identity.New("same")

	if k1.Equal(k2) {
		t.Errorf("two identities with the same name share id %s", k1.ID())
	}
}

func TestNew_IDsAreTimeOrdered(t *testing.T) {
	k1 := identity.New("first")
	k2 := identity.New("second")

	if k1.ID().String() >= k2.ID().String() {
		t.Errorf("ids not generation ordered: %s >= %s", k1.ID(), k2.ID())
	}
}

func TestSetName_BumpsUpdatedAt(t *testing.T) {
	k := identity.New("before")
	id := k.ID()
	prev := k.UpdatedAt()

	time.Sleep(2 * time.Millisecond)
	k.SetName("after")

	if k.Name() != "after" {
		t.Errorf("Name() = %q, want %q", k.Name(), "after")
	}
	if !k.UpdatedAt().After(prev) {
		t.Errorf("UpdatedAt() = %v, want after %v", k.UpdatedAt(), prev)
	}
	if k.ID() != id {
		t.Error("SetName changed the id")
	}
}

func TestSourceRoundTrip(t *testing.T) {
	k := identity.New("round")

	got, err := identity.FromSource(k.Source())
	if err != nil {
		t.Fatalf("FromSource() error = %v", err)
	}
	if !got.Equal(k) {
		t.Errorf("FromSource() id = %s, want %s", got.ID(), k.ID())
	}
	if got.Name() != "round" {
		t.Errorf("FromSource() name = %q, want %q", got.Name(), "round")
	}
	if !got.CreatedAt().Equal(k.CreatedAt()) {
		t.Errorf("FromSource() created = %v, want %v", got.CreatedAt(), k.CreatedAt())
	}
}

func TestFromSource_InvalidID(t *testing.T) {
	_, err := identity.FromSource(identity.Source{Name: "x"})
	if !errors.Is(err, identity.ErrInvalidID) {
		t.Errorf("FromSource() error = %v, want %v", err, identity.ErrInvalidID)
	}
}

func TestParse(t *testing.T) {
	k := identity.New("p")

	id, err := identity.Parse(k.ID().String())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if id != k.ID() {
		t.Errorf("Parse() = %s, want %s", id, k.ID())
	}

	if _, err := identity.Parse("not-a-uuid"); !errors.Is(err, identity.ErrInvalidID) {
		t.Errorf("Parse() error = %v, want %v", err, identity.ErrInvalidID)
	}
}

func TestEqual_Nil(t *testing.T) {
	var a, b *identity.Identity
	if !a.Equal(b) {
		t.Error("nil.Equal(nil) = false, want true")
	}
	if identity.New("x").Equal(nil) {
		t.Error("Equal(nil) = true, want false")
	}
}

func TestNamed_Deterministic(t *testing.T) {
	a, b := identity.Named("key"), identity.Named("key")

	if !a.Equal(b) {
		t.Errorf("Named(%q) ids differ: %s, %s", "key", a.ID(), b.ID())
	}
	if a.ID().Version() != 5 {
		t.Errorf("ID().Version() = %d, want 5", a.ID().Version())
	}
	if identity.Named("other").Equal(a) {
		t.Error("different names should derive different ids")
	}
	if _, err := identity.FromSource(a.Source()); err != nil {
		t.Errorf("FromSource(Named) error = %v", err)
	}
}
