// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the Matrix client-server API for Docket's
// storage and membership needs. Matrix is Docket's storage substrate:
// organizations and cases are rooms, state events are the key/value
// store (one value per event type + state key, empty content as the
// tombstone convention), timeline events are the append log, and room
// membership is the access boundary.
//
// The package provides two core types. [Client] is an unauthenticated
// Matrix client that handles password login and token restoration,
// returning authenticated [DirectSession] values. Client holds the
// homeserver URL and HTTP transport, shared across all sessions
// derived from it.
//
// [DirectSession] wraps a Client with an access token for
// authenticated operations: room management (create, join, invite,
// kick), state events (get/set individual events, full room state),
// timeline events (idempotent PUT with transaction IDs), paginated
// room messages, incremental sync with long-polling, room alias
// resolution, and identity verification (WhoAmI).
//
// Sessions are lightweight (a pointer to the parent Client plus an
// access token in mmap-backed secret.Buffer memory). The access token
// is locked against swap and excluded from core dumps; callers must
// call Close to release the protected memory.
//
// All API errors are returned as [*MatrixError] with the standard
// Matrix error code (M_FORBIDDEN, M_NOT_FOUND, etc.) and HTTP status
// code. [IsMatrixError] tests for a specific error code. Request URLs
// are built by string concatenation rather than url.URL to avoid
// double-encoding of path segments that contain URL-encoded characters
// (such as room aliases with slashes).
//
// [RoomWatcher] captures a position in the /sync stream for one room
// and long-polls for events arriving after it. This is how read-side
// consumers (the registry index, notification surfaces, tests) observe
// new ledger operations — the core never pushes.
package messaging
