package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/tailored-agentic-units/filecache/identity"
)

// Metadata is the bookkeeping record persisted next to every stored value.
// CreatedAt is fixed by the first write; ModifiedAt moves on every write.
type Metadata struct {
	identity   *identity.Identity
	createdAt  time.Time
	modifiedAt time.Time
}

// Source is the plain form of a Metadata record.
type Source struct {
	Identity   identity.Source
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// NewMetadata creates a record for id first written at now.
func NewMetadata(id *identity.Identity, now time.Time) *Metadata {
	return &Metadata{identity: id, createdAt: now, modifiedAt: now}
}

func (m *Metadata) Identity() *identity.Identity { return m.identity }
func (m *Metadata) CreatedAt() time.Time         { return m.createdAt }
func (m *Metadata) ModifiedAt() time.Time        { return m.modifiedAt }

// Touch records a write at now.
func (m *Metadata) Touch(now time.Time) {
	m.modifiedAt = now
}

func (m *Metadata) Source() Source {
	return Source{
		Identity:   m.identity.Source(),
		CreatedAt:  m.createdAt,
		ModifiedAt: m.modifiedAt,
	}
}

// MetadataFromSource rebuilds a record, validating the identity id.
func MetadataFromSource(src Source) (*Metadata, error) {
	id, err := identity.FromSource(src.Identity)
	if err != nil {
		return nil, err
	}
	return &Metadata{identity: id, createdAt: src.CreatedAt, modifiedAt: src.ModifiedAt}, nil
}

// Wire layout (protobuf encoding, no generated code):
//
//	message Metadata {
//	  Identity identity    = 1;
//	  sint64   created_at  = 2; // unix nanoseconds
//	  sint64   modified_at = 3;
//	}
//	message Identity {
//	  bytes  id         = 1; // 16 raw uuid bytes
//	  string name       = 2;
//	  sint64 created_at = 3;
//	  sint64 updated_at = 4;
//	}
const (
	fieldMetaIdentity   protowire.Number = 1
	fieldMetaCreatedAt  protowire.Number = 2
	fieldMetaModifiedAt protowire.Number = 3

	fieldIdentityID        protowire.Number = 1
	fieldIdentityName      protowire.Number = 2
	fieldIdentityCreatedAt protowire.Number = 3
	fieldIdentityUpdatedAt protowire.Number = 4
)

// MarshalBinary encodes the record independently of any value codec.
func (m *Metadata) MarshalBinary() ([]byte, error) {
	src := m.Source()

	var ident []byte
	ident = protowire.AppendTag(ident, fieldIdentityID, protowire.BytesType)
	ident = protowire.AppendBytes(ident, src.Identity.ID[:])
	ident = protowire.AppendTag(ident, fieldIdentityName, protowire.BytesType)
	ident = protowire.AppendString(ident, src.Identity.Name)
	ident = appendTime(ident, fieldIdentityCreatedAt, src.Identity.CreatedAt)
	ident = appendTime(ident, fieldIdentityUpdatedAt, src.Identity.UpdatedAt)

	var b []byte
	b = protowire.AppendTag(b, fieldMetaIdentity, protowire.BytesType)
	b = protowire.AppendBytes(b, ident)
	b = appendTime(b, fieldMetaCreatedAt, src.CreatedAt)
	b = appendTime(b, fieldMetaModifiedAt, src.ModifiedAt)
	return b, nil
}

// UnmarshalBinary decodes a record produced by MarshalBinary. Unknown
// fields are skipped.
func (m *Metadata) UnmarshalBinary(b []byte) error {
	var src Source
	var sawIdentity bool

	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldMetaIdentity && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			ident, err := decodeIdentity(v)
			if err != nil {
				return 0, err
			}
			src.Identity = ident
			sawIdentity = true
			return n, nil
		case num == fieldMetaCreatedAt && typ == protowire.VarintType:
			return consumeTime(b, &src.CreatedAt)
		case num == fieldMetaModifiedAt && typ == protowire.VarintType:
			return consumeTime(b, &src.ModifiedAt)
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return err
	}
	if !sawIdentity {
		return fmt.Errorf("%w: missing identity", ErrCorruptMetadata)
	}

	decoded, err := MetadataFromSource(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
	}
	*m = *decoded
	return nil
}

func decodeIdentity(b []byte) (identity.Source, error) {
	var src identity.Source

	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldIdentityID && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return 0, fmt.Errorf("%w: %v", ErrCorruptMetadata, err)
			}
			src.ID = id
			return n, nil
		case num == fieldIdentityName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			src.Name = v
			return n, nil
		case num == fieldIdentityCreatedAt && typ == protowire.VarintType:
			return consumeTime(b, &src.CreatedAt)
		case num == fieldIdentityUpdatedAt && typ == protowire.VarintType:
			return consumeTime(b, &src.UpdatedAt)
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return src, err
}

// walkFields iterates the top-level fields of a protobuf message. fn
// consumes the field value and returns its length (negative on wire error).
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrCorruptMetadata, protowire.ParseError(n))
		}
		b = b[n:]

		n, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrCorruptMetadata, num, protowire.ParseError(n))
		}
		b = b[n:]
	}
	return nil
}

func appendTime(b []byte, num protowire.Number, t time.Time) []byte {
	var ns int64
	if !t.IsZero() {
		ns = t.UnixNano()
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(ns))
}

func consumeTime(b []byte, dst *time.Time) (int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return n, nil
	}
	if ns := protowire.DecodeZigZag(v); ns != 0 {
		*dst = time.Unix(0, ns)
	}
	return n, nil
}
