// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"errors"
	"fmt"

	"github.com/docket-foundation/docket/lib/ability"
	"github.com/docket-foundation/docket/lib/ref"
)

// PermissionDeniedError reports that the actor lacks the capability a
// catalog operation requires. Extract with errors.As.
type PermissionDeniedError struct {
	Capability ability.Ability
	Actor      ref.UserID
	TypeID     ref.TypeID
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("catalog: %s denied %s on resource type %s", e.Actor, e.Capability, e.TypeID)
}

// NegativeDeltaError reports a Restock call with a non-positive delta.
// Restock only adds inventory; corrections go through allocation
// settlement or replenishment.
type NegativeDeltaError struct {
	Delta int64
}

func (e *NegativeDeltaError) Error() string {
	return fmt.Sprintf("catalog: restock delta must be positive, got %d", e.Delta)
}

// ConflictError reports that a relation's available quantity changed
// between an operation's validation read and its commit read. The
// mutation was not written; the caller should re-read and retry.
type ConflictError struct {
	RelationID     ref.RelationID
	ReadAvailable  int64
	FoundAvailable int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("catalog: relation %s changed during operation: available was %d, now %d",
		e.RelationID, e.ReadAvailable, e.FoundAvailable)
}

// NotFoundError reports a missing or tombstoned catalog record.
type NotFoundError struct {
	Kind string // "resource type" or "relation"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("catalog: %s %s not found", e.Kind, e.ID)
}

// IsPermissionDenied reports whether err is a [PermissionDeniedError].
func IsPermissionDenied(err error) bool {
	var denied *PermissionDeniedError
	return errors.As(err, &denied)
}

// IsNotFound reports whether err is a [NotFoundError].
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}

// IsConflict reports whether err is a [ConflictError].
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}
