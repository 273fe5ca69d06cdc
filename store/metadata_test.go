package store_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tailored-agentic-units/filecache/identity"
	"github.com/tailored-agentic-units/filecache/store"
)

func TestMetadata_BinaryRoundTrip(t *testing.T) {
	k := identity.New("label")
	created := time.Unix(1_700_000_000, 123)
	m := store.NewMetadata(k, created)
	m.Touch(created.Add(time.Minute))

	b, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}

	var got store.Metadata
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}

	want := m.Source()
	if diff := cmp.Diff(want, got.Source()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMetadata_UnknownFieldsSkipped(t *testing.T) {
	m := store.NewMetadata(identity.New("x"), time.Unix(10, 0))
	b, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}

	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future field")

	var got store.Metadata
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}
	if got.Identity().Name() != "x" {
		t.Errorf("Name() = %q, want %q", got.Identity().Name(), "x")
	}
}

func TestMetadata_UnmarshalErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "truncated tag", data: []byte{0xff}},
		{name: "missing identity", data: protowire.AppendVarint(protowire.AppendTag(nil, 2, protowire.VarintType), 4)},
		{name: "bad uuid length", data: func() []byte {
			ident := protowire.AppendBytes(protowire.AppendTag(nil, 1, protowire.BytesType), []byte{1, 2, 3})
			return protowire.AppendBytes(protowire.AppendTag(nil, 1, protowire.BytesType), ident)
		}()},
		{name: "nil uuid", data: func() []byte {
			ident := protowire.AppendBytes(protowire.AppendTag(nil, 1, protowire.BytesType), make([]byte, 16))
			return protowire.AppendBytes(protowire.AppendTag(nil, 1, protowire.BytesType), ident)
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m store.Metadata
			if err := m.UnmarshalBinary(tt.data); !errors.Is(err, store.ErrCorruptMetadata) {
				t.Errorf("UnmarshalBinary() error = %v, want %v", err, store.ErrCorruptMetadata)
			}
		})
	}
}

func TestMetadataFromSource_InvalidID(t *testing.T) {
	_, err := store.MetadataFromSource(store.Source{})
	if !errors.Is(err, identity.ErrInvalidID) {
		t.Errorf("MetadataFromSource() error = %v, want %v", err, identity.ErrInvalidID)
	}
}
