// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package ability resolves whether an actor may exercise a capability
// on a resource type, from the type's permission grant lists.
//
// Resolution is deliberately stateless and uncached: callers pass the
// grant lists they just read from room state, so a permission change
// takes effect on the next operation with no invalidation machinery.
//
// The three abilities have asymmetric empty-list semantics. An empty
// viewers list fails open — every org member may view, because
// visibility is the common case and hiding a resource is the explicit
// act. Empty controllers or allocators lists fail closed — only the
// org admin role may act, because mutation and spending are the
// dangerous cases and a forgotten grant list must not mean "anyone".
package ability

import (
	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
)

// Ability is a capability an actor can hold on a resource type.
type Ability string

const (
	// Control covers definition changes: editing the type, its
	// permission lists, restocking, promotion.
	Control Ability = "control"
	// Allocate covers drawing inventory down into allocations and
	// settling them.
	Allocate Ability = "allocate"
	// View covers reading the type and its relations.
	View Ability = "view"
)

// Actor is the identity permission checks resolve against: the user
// and the roster role they act under. The role comes from the org's
// m.docket.roster record, read by the caller.
type Actor struct {
	UserID ref.UserID
	Role   string
}

// Allowed reports whether the actor may exercise the ability given the
// resource type's grant lists.
//
// A grant matches when its kind is "role" and equals the actor's role,
// or its kind is "user" and equals the actor's user ID. Unknown grant
// kinds never match.
func Allowed(permissions schema.Permissions, capability Ability, actor Actor) bool {
	var grants []schema.Grant
	switch capability {
	case Control:
		grants = permissions.Controllers
	case Allocate:
		grants = permissions.Allocators
	case View:
		grants = permissions.Viewers
	default:
		return false
	}

	if len(grants) == 0 {
		if capability == View {
			// Fail open: any org member may view.
			return true
		}
		// Fail closed: only the org admin role may control or allocate.
		return actor.Role == schema.RoleOrgAdmin
	}

	for _, grant := range grants {
		switch grant.Kind {
		case "role":
			if grant.ID == actor.Role {
				return true
			}
		case "user":
			if grant.ID == actor.UserID.String() {
				return true
			}
		}
	}
	return false
}
