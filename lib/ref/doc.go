// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides strongly typed, immutable identity references
// for Docket entities. Matrix identifiers (room IDs, user IDs, event
// IDs, room aliases) and Docket record identifiers (resource types,
// relations, allocations, operations) are represented by validated
// value types, parsed at the boundary where raw strings enter the
// system.
//
// All constructors validate their inputs and return errors for invalid
// identifiers. Once constructed, a ref is immutable. The zero value of
// every ref type is invalid; use IsZero to check.
//
// Docket record IDs are short prefixed identifiers:
//
//   - rst-<hex>  resource type
//   - rel-<hex>  resource relation (derived from holder + type)
//   - alc-<hex>  allocation
//   - op-<hex>   ledger operation (content hash)
//
// JSON marshaling uses the canonical string form via
// encoding.TextMarshaler.
//
// This package has no dependencies outside the standard library, so
// every other package can import it without cycles.
package ref
