// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// Docket record ID prefixes. Every record identifier is
// "<prefix>-<lowercase hex>". The prefix makes IDs self-describing in
// logs and state keys; the hex suffix is either random (resource
// types, allocations) or derived from content (relations, operations).
const (
	typeIDPrefix       = "rst"
	relationIDPrefix   = "rel"
	allocationIDPrefix = "alc"
	operationIDPrefix  = "op"
)

// randomHex returns n random bytes as lowercase hex. Panics if the
// system entropy source fails — a system-level failure no caller can
// recover from.
func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("ref: reading system entropy: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

// parseRecordID validates "<prefix>-<hex>" structure.
func parseRecordID(raw, prefix, kind string) error {
	if raw == "" {
		return fmt.Errorf("empty %s", kind)
	}
	rest, ok := strings.CutPrefix(raw, prefix+"-")
	if !ok {
		return fmt.Errorf("%s must start with %q: %q", kind, prefix+"-", raw)
	}
	if rest == "" {
		return fmt.Errorf("%s has no content after prefix: %q", kind, raw)
	}
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("%s %q: invalid character %q at position %d (lowercase hex only)", kind, raw, c, len(prefix)+1+i)
		}
	}
	return nil
}

// TypeID identifies a resource type in the catalog (e.g., "rst-9f2ac4d1").
// The zero value is not valid; use IsZero to check.
type TypeID struct {
	id string
}

// NewTypeID generates a random resource type ID.
func NewTypeID() TypeID {
	return TypeID{id: typeIDPrefix + "-" + randomHex(4)}
}

// ParseTypeID validates and wraps a raw resource type ID string.
func ParseTypeID(raw string) (TypeID, error) {
	if err := parseRecordID(raw, typeIDPrefix, "resource type ID"); err != nil {
		return TypeID{}, err
	}
	return TypeID{id: raw}, nil
}

// MustParseTypeID is like ParseTypeID but panics on error. Use in
// tests where the input is known-valid.
func MustParseTypeID(raw string) TypeID {
	t, err := ParseTypeID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseTypeID(%q): %v", raw, err))
	}
	return t
}

// String returns the full ID string (e.g., "rst-9f2ac4d1").
func (t TypeID) String() string { return t.id }

// IsZero reports whether the TypeID is the zero value.
func (t TypeID) IsZero() bool { return t.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (t TypeID) MarshalText() ([]byte, error) {
	return []byte(t.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (t *TypeID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*t = TypeID{}
		return nil
	}
	parsed, err := ParseTypeID(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// RelationID identifies a resource relation (e.g., "rel-4b1d9e22a7c301f8").
// Relation IDs are derived deterministically from the (holder,
// resource type) pair, which is what makes relation establishment
// idempotent: the same pair always maps to the same state key.
// The zero value is not valid; use IsZero to check.
type RelationID struct {
	id string
}

// RelationIDFromHash wraps a lowercase hex digest as a relation ID.
// The digest must be non-empty lowercase hex; lib/catalog derives it
// from the holder and type ID.
func RelationIDFromHash(digest string) (RelationID, error) {
	raw := relationIDPrefix + "-" + digest
	if err := parseRecordID(raw, relationIDPrefix, "relation ID"); err != nil {
		return RelationID{}, err
	}
	return RelationID{id: raw}, nil
}

// ParseRelationID validates and wraps a raw relation ID string.
func ParseRelationID(raw string) (RelationID, error) {
	if err := parseRecordID(raw, relationIDPrefix, "relation ID"); err != nil {
		return RelationID{}, err
	}
	return RelationID{id: raw}, nil
}

// MustParseRelationID is like ParseRelationID but panics on error.
func MustParseRelationID(raw string) RelationID {
	r, err := ParseRelationID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRelationID(%q): %v", raw, err))
	}
	return r
}

// String returns the full ID string.
func (r RelationID) String() string { return r.id }

// IsZero reports whether the RelationID is the zero value.
func (r RelationID) IsZero() bool { return r.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (r RelationID) MarshalText() ([]byte, error) {
	return []byte(r.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (r *RelationID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*r = RelationID{}
		return nil
	}
	parsed, err := ParseRelationID(string(data))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// AllocationID identifies an allocation (e.g., "alc-03d7f19b").
// The zero value is not valid; use IsZero to check.
type AllocationID struct {
	id string
}

// NewAllocationID generates a random allocation ID.
func NewAllocationID() AllocationID {
	return AllocationID{id: allocationIDPrefix + "-" + randomHex(4)}
}

// ParseAllocationID validates and wraps a raw allocation ID string.
func ParseAllocationID(raw string) (AllocationID, error) {
	if err := parseRecordID(raw, allocationIDPrefix, "allocation ID"); err != nil {
		return AllocationID{}, err
	}
	return AllocationID{id: raw}, nil
}

// MustParseAllocationID is like ParseAllocationID but panics on error.
func MustParseAllocationID(raw string) AllocationID {
	a, err := ParseAllocationID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseAllocationID(%q): %v", raw, err))
	}
	return a
}

// String returns the full ID string.
func (a AllocationID) String() string { return a.id }

// IsZero reports whether the AllocationID is the zero value.
func (a AllocationID) IsZero() bool { return a.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (a AllocationID) MarshalText() ([]byte, error) {
	return []byte(a.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (a *AllocationID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*a = AllocationID{}
		return nil
	}
	parsed, err := ParseAllocationID(string(data))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// OperationID identifies a ledger operation (e.g.,
// "op-6c1f0a9d3e8b2745"). Operation IDs are content hashes: the
// blake3 digest of the deterministic CBOR encoding of the operation
// record, computed by lib/ledger at append time. Two identical records
// hash to the same ID, which makes accidental double-appends visible
// in provenance queries. The zero value is not valid; use IsZero to
// check.
type OperationID struct {
	id string
}

// OperationIDFromHash wraps a lowercase hex digest as an operation ID.
func OperationIDFromHash(digest string) (OperationID, error) {
	raw := operationIDPrefix + "-" + digest
	if err := parseRecordID(raw, operationIDPrefix, "operation ID"); err != nil {
		return OperationID{}, err
	}
	return OperationID{id: raw}, nil
}

// ParseOperationID validates and wraps a raw operation ID string.
func ParseOperationID(raw string) (OperationID, error) {
	if err := parseRecordID(raw, operationIDPrefix, "operation ID"); err != nil {
		return OperationID{}, err
	}
	return OperationID{id: raw}, nil
}

// MustParseOperationID is like ParseOperationID but panics on error.
func MustParseOperationID(raw string) OperationID {
	o, err := ParseOperationID(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseOperationID(%q): %v", raw, err))
	}
	return o
}

// String returns the full ID string.
func (o OperationID) String() string { return o.id }

// IsZero reports whether the OperationID is the zero value.
func (o OperationID) IsZero() bool { return o.id == "" }

// MarshalText implements encoding.TextMarshaler.
func (o OperationID) MarshalText() ([]byte, error) {
	return []byte(o.id), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (o *OperationID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*o = OperationID{}
		return nil
	}
	parsed, err := ParseOperationID(string(data))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}
