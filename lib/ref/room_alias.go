// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import "fmt"

// RoomAlias is a validated Matrix room alias (e.g.,
// "#riverside/intake:docket.local"). Aliases are human-assigned names
// for rooms; organizations publish well-known aliases so staff tooling
// can find the org room without knowing its opaque room ID.
//
// RoomAlias is an immutable value type. The zero value is not valid;
// use IsZero to check.
type RoomAlias struct {
	alias string
}

// ParseRoomAlias validates and wraps a raw Matrix room alias string.
// Returns an error if the string doesn't start with '#', has an empty
// localpart, or is missing the ':server' suffix.
func ParseRoomAlias(raw string) (RoomAlias, error) {
	_, _, err := parseSigilID(raw, '#', "room alias")
	if err != nil {
		return RoomAlias{}, err
	}
	return RoomAlias{alias: raw}, nil
}

// MustParseRoomAlias is like ParseRoomAlias but panics on error. Use
// in tests and static initialization where the input is known-valid.
func MustParseRoomAlias(raw string) RoomAlias {
	a, err := ParseRoomAlias(raw)
	if err != nil {
		panic(fmt.Sprintf("ref.MustParseRoomAlias(%q): %v", raw, err))
	}
	return a
}

// String returns the full alias string (e.g., "#riverside/intake:docket.local").
func (a RoomAlias) String() string { return a.alias }

// IsZero reports whether the RoomAlias is the zero value.
func (a RoomAlias) IsZero() bool { return a.alias == "" }

// Localpart returns the alias localpart (without '#' or ':server').
// Panics if called on a zero-value RoomAlias.
func (a RoomAlias) Localpart() string {
	if a.alias == "" {
		panic("RoomAlias.Localpart called on zero value")
	}
	localpart, _, err := parseSigilID(a.alias, '#', "room alias")
	if err != nil {
		// RoomAlias was validated at construction — this is unreachable.
		panic(fmt.Sprintf("RoomAlias.Localpart: internal error parsing %q: %v", a.alias, err))
	}
	return localpart
}
