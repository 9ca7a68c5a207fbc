// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"fmt"

	"github.com/docket-foundation/docket/lib/ref"
)

// ViolationCode classifies why an allocation request was refused.
type ViolationCode string

const (
	// ViolationPermissionDenied: the actor lacks the allocate
	// capability on the resource type.
	ViolationPermissionDenied ViolationCode = "permission_denied"
	// ViolationNoRelation: no relation holds the resource type (or the
	// pinned relation does not exist).
	ViolationNoRelation ViolationCode = "no_relation"
	// ViolationInsufficientInventory: the relation's available
	// quantity is below the requested amount.
	ViolationInsufficientInventory ViolationCode = "insufficient_inventory"
)

// Violation is one structured reason an allocation request failed
// validation. Violations are outcomes, not errors: the request was
// well-formed and the substrate was healthy, the answer was no.
type Violation struct {
	Code    ViolationCode `json:"code"`
	Message string        `json:"message"`
}

// NotFoundError reports a missing or tombstoned allocation record.
type NotFoundError struct {
	AllocationID ref.AllocationID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("allocation: allocation %s not found", e.AllocationID)
}

// InvalidTransitionError reports a settlement attempt on an allocation
// that has already settled. Settlement is terminal.
type InvalidTransitionError struct {
	AllocationID ref.AllocationID
	From         string
	To           string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("allocation: allocation %s is %s, cannot transition to %s",
		e.AllocationID, e.From, e.To)
}
