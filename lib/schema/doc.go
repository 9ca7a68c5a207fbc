// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the wire format of Docket's governance records:
// the Matrix event types and typed content structs that the catalog,
// allocation, ledger, and assignment packages read and write.
//
// Every record is a Matrix state event in an organization or case room.
// The event type identifies the record kind (m.docket.resource_type,
// m.docket.relation, ...) and the state key identifies the individual
// record (a ref ID, a target path, or a user ID — each constant below
// documents its key). Writing empty content ({}) to an existing key
// tombstones the record; [IsTombstone] detects this on raw content.
//
// Ledger operations are the one exception: they are timeline events
// (append-only history), with an m.docket.operation_head state event
// per target path carrying the provenance chain's head pointer.
//
// The structs here are wire types only. Domain rules — verb taxonomy,
// permission resolution, inventory arithmetic, transfer sequencing —
// live in lib/ledger, lib/ability, lib/catalog, lib/allocation, and
// lib/assignment. Validate methods check structural well-formedness,
// not domain invariants.
package schema
