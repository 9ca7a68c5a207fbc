// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"fmt"
	"strings"
)

// TargetPath is the provenance target of a ledger operation: a
// slash-separated path naming the record a state change applied to.
// Conventional forms:
//
//	resource/rst-9f2ac4d1
//	relation/rel-4b1d9e22a7c301f8
//	allocation/alc-03d7f19b
//	case/!ab12cd:docket.local/assignment
//
// Segments may be record IDs, Matrix identifiers (room IDs, user IDs),
// or plain names. Validation is structural: no empty segments, no
// leading or trailing slash, no ".." traversal, and a restricted
// character set (Matrix ID sigils are permitted so rooms and users can
// appear as segments).
//
// TargetPath is an immutable value type. The zero value is not valid;
// use IsZero to check.
type TargetPath struct {
	path string
}

// targetChars is the set of characters permitted in target paths:
// the Matrix localpart set (a-z, 0-9, . _ = - /) plus the sigils and
// separators that appear in Matrix identifiers (! @ $ # :) and
// uppercase letters, which server-assigned opaque IDs may contain.
var targetChars [256]bool

func init() {
	for c := byte('a'); c <= 'z'; c++ {
		targetChars[c] = true
	}
	for c := byte('A'); c <= 'Z'; c++ {
		targetChars[c] = true
	}
	for c := byte('0'); c <= '9'; c++ {
		targetChars[c] = true
	}
	for _, c := range []byte{'.', '_', '=', '-', '/', '!', '@', '$', '#', ':'} {
		targetChars[c] = true
	}
}

// ParseTargetPath validates and wraps a raw target path string.
func ParseTargetPath(raw string) (TargetPath, error) {
	if raw == "" {
		return TargetPath{}, fmt.Errorf("empty target path")
	}
	for i := 0; i < len(raw); i++ {
		if !targetChars[raw[i]] {
			return TargetPath{}, fmt.Errorf("target path %q: invalid character %q at position %d", raw, raw[i], i)
		}
	}
	if raw[0] == '/' {
		return TargetPath{}, fmt.Errorf("target path %q must not start with /", raw)
	}
	if raw[len(raw)-1] == '/' {
		return TargetPath{}, fmt.Errorf("target path %q must not end with /", raw)
	}
	for _, segment := range strings.Split(raw, "/") {
		if segment == "" {
			return TargetPath{}, fmt.Errorf("target path %q contains empty segment (double slash)", raw)
		}
		if segment == ".." {
			return TargetPath{}, fmt.Errorf("target path %q contains '..' segment", raw)
		}
	}
	return TargetPath{path: raw}, nil
}

// MustParseTargetPath is like ParseTargetPath but panics on error.
// Use in tests and static initialization where the input is
// known-valid.
func MustParseTargetPath(raw string) TargetPath {
	p, err := ParseTargetPath(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseTargetPath(%q): %v", raw, err))
	}
	return p
}

// ResourceTarget returns the target path for a resource type record.
func ResourceTarget(typeID TypeID) TargetPath {
	return TargetPath{path: "resource/" + typeID.String()}
}

// RelationTarget returns the target path for a relation record.
func RelationTarget(relationID RelationID) TargetPath {
	return TargetPath{path: "relation/" + relationID.String()}
}

// AllocationTarget returns the target path for an allocation record.
func AllocationTarget(allocationID AllocationID) TargetPath {
	return TargetPath{path: "allocation/" + allocationID.String()}
}

// AssignmentTarget returns the target path for a case's assignment
// record.
func AssignmentTarget(caseID RoomID) TargetPath {
	return TargetPath{path: "case/" + caseID.String() + "/assignment"}
}

// String returns the path string.
func (p TargetPath) String() string { return p.path }

// IsZero reports whether the TargetPath is the zero value.
func (p TargetPath) IsZero() bool { return p.path == "" }

// MarshalText implements encoding.TextMarshaler.
func (p TargetPath) MarshalText() ([]byte, error) {
	return []byte(p.path), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. An empty input
// produces the zero value.
func (p *TargetPath) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*p = TargetPath{}
		return nil
	}
	parsed, err := ParseTargetPath(string(data))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
