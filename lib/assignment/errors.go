// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package assignment

import (
	"fmt"

	"github.com/docket-foundation/docket/lib/ref"
)

// NotFoundError reports a missing or tombstoned assignment record.
type NotFoundError struct {
	CaseID ref.RoomID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("assignment: no assignment for case %s", e.CaseID)
}

// TransferLockedError reports a transfer attempt on a case whose
// assignment is marked non-transferable.
type TransferLockedError struct {
	CaseID ref.RoomID
}

func (e *TransferLockedError) Error() string {
	return fmt.Sprintf("assignment: case %s is not transferable", e.CaseID)
}

// NotOrgMemberError reports a transfer target who is not on the
// organization's roster.
type NotOrgMemberError struct {
	UserID ref.UserID
}

func (e *NotOrgMemberError) Error() string {
	return fmt.Sprintf("assignment: %s is not on the organization roster", e.UserID)
}
