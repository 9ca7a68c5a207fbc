// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Docket's standard CBOR encoding configuration.
//
// Docket uses two serialization formats with a clear boundary:
//
//   - JSON for the Matrix wire format: state event content, timeline
//     event content, and CLI --json output. These types carry `json`
//     struct tags and live in lib/schema.
//   - Deterministic CBOR for content addressing: lib/ledger derives
//     operation IDs by hashing the CBOR encoding of the operation
//     record, so identical records always produce identical IDs.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. fxamacker/cbor reads `json` tags as fallback when `cbor` tags
// are absent, so the schema types need no second set of tags.
package codec
