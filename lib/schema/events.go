// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"

	"github.com/docket-foundation/docket/lib/ref"
)

// Docket state and timeline event types.
const (
	// EventTypeOperation is a ledger operation appended to a room's
	// timeline. Unlike every other docket event type this is NOT a
	// state event: the timeline is the append-only history, and
	// operations are immutable once written.
	//
	// Room: the org or case room the operation's target lives in.
	EventTypeOperation ref.EventType = "m.docket.operation"

	// EventTypeOperationHead is the provenance chain head pointer for
	// one target path. Updated after every appended operation so the
	// next append can link its "prev" field without scanning the
	// timeline.
	//
	// State key: the operation's target path (e.g.,
	// "resource/rst-0a1b2c3d").
	EventTypeOperationHead ref.EventType = "m.docket.operation_head"

	// EventTypeResourceType is a resource type definition in the
	// catalog, including its permission grant lists.
	//
	// State key: the type ID (e.g., "rst-0a1b2c3d").
	// Room: the org room (or a case room for individual-level types).
	EventTypeResourceType ref.EventType = "m.docket.resource_type"

	// EventTypeRelation is a holder's inventory relation to a resource
	// type: capacity and currently available quantity.
	//
	// State key: the relation ID (e.g., "rel-9f8e7d6c"). Relation IDs
	// derive deterministically from (holder, type ID), so re-establishing
	// the same relation addresses the same state key.
	// Room: same room as the resource type.
	EventTypeRelation ref.EventType = "m.docket.relation"

	// EventTypeAllocation is a live or settled allocation of inventory
	// to a case.
	//
	// State key: the allocation ID (e.g., "alc-5a4b3c2d").
	// Room: the org room holding the drawn-down relation.
	EventTypeAllocation ref.EventType = "m.docket.allocation"

	// EventTypeAssignment records which staff carry a case. Assignments
	// are never deleted — transfers rewrite the record in place.
	//
	// State key: the case room ID.
	// Room: the org room.
	EventTypeAssignment ref.EventType = "m.docket.assignment"

	// EventTypeRoster marks a user as a member of the organization's
	// staff and carries their role. Tombstoned when the member leaves.
	//
	// State key: the staff member's Matrix user ID.
	// Room: the org room.
	EventTypeRoster ref.EventType = "m.docket.roster"
)

// Standard Matrix event types docket reads or writes.
const (
	MatrixEventTypePowerLevels ref.EventType = "m.room.power_levels"
	MatrixEventTypeMember      ref.EventType = "m.room.member"
)

// RoleOrgAdmin is the roster role that retains control and allocation
// authority when a resource type's grant lists are empty.
const RoleOrgAdmin = "org_admin"

// Frame carries the interpretive context recorded with every ledger
// operation: what kind of thing the target is, how certain the actor
// was, and in what role they acted.
type Frame struct {
	Type      string `json:"type,omitempty" cbor:"type,omitempty"`
	Epistemic string `json:"epistemic,omitempty" cbor:"epistemic,omitempty"`
	Role      string `json:"role,omitempty" cbor:"role,omitempty"`
}

// OperationContent is the content of an m.docket.operation timeline
// event. The ID is the blake3 hash of the deterministic CBOR encoding
// of the record with the ID field absent, so any two writers producing
// the same operation produce the same ID.
type OperationContent struct {
	ID         ref.OperationID `json:"id" cbor:"-"`
	Verb       string          `json:"verb" cbor:"verb"`
	TargetPath ref.TargetPath  `json:"target_path" cbor:"target_path"`
	Payload    map[string]any  `json:"payload,omitempty" cbor:"payload,omitempty"`
	Actor      ref.UserID      `json:"actor" cbor:"actor"`
	Timestamp  int64           `json:"timestamp" cbor:"timestamp"`
	Frame      Frame           `json:"frame,omitempty" cbor:"frame,omitempty"`
	Prev       ref.OperationID `json:"prev,omitempty" cbor:"prev,omitempty"`
}

// Validate checks structural well-formedness. Verb legality is the
// ledger's concern.
func (c *OperationContent) Validate() error {
	if c.Verb == "" {
		return fmt.Errorf("operation: verb is required")
	}
	if c.TargetPath.IsZero() {
		return fmt.Errorf("operation: target path is required")
	}
	if c.Actor.IsZero() {
		return fmt.Errorf("operation: actor is required")
	}
	if c.Timestamp <= 0 {
		return fmt.Errorf("operation: timestamp is required")
	}
	return nil
}

// OperationHeadContent is the content of an m.docket.operation_head
// state event: the most recent operation on the state key's target
// path and a running count of operations on that path.
type OperationHeadContent struct {
	Head  ref.OperationID `json:"head"`
	Count int64           `json:"count"`
}

// Grant names one principal in a permission list: either a roster role
// or a specific user.
type Grant struct {
	Kind string `json:"kind"` // "role" or "user"
	ID   string `json:"id"`   // role name or Matrix user ID
}

// Validate checks the grant names a principal.
func (g Grant) Validate() error {
	switch g.Kind {
	case "role", "user":
	default:
		return fmt.Errorf("grant: kind must be \"role\" or \"user\", got %q", g.Kind)
	}
	if g.ID == "" {
		return fmt.Errorf("grant: id is required")
	}
	return nil
}

// Permissions holds the three grant lists attached to a resource type.
// The asymmetric empty-list semantics (viewers fail open, controllers
// and allocators fail closed to the org admin role) are implemented in
// lib/ability, not here.
type Permissions struct {
	Controllers []Grant `json:"controllers,omitempty"`
	Allocators  []Grant `json:"allocators,omitempty"`
	Viewers     []Grant `json:"viewers,omitempty"`
}

// Validate checks every grant in every list.
func (p *Permissions) Validate() error {
	for _, list := range [][]Grant{p.Controllers, p.Allocators, p.Viewers} {
		for _, grant := range list {
			if err := grant.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResourceTypeContent is the content of an m.docket.resource_type
// state event.
type ResourceTypeContent struct {
	ID         ref.TypeID `json:"id"`
	Name       string     `json:"name"`
	Category   string     `json:"category,omitempty"`
	Unit       string     `json:"unit,omitempty"`
	Fungible   bool       `json:"fungible"`
	Perishable bool       `json:"perishable"`
	// TTLDays is the allocation lifetime for perishable types.
	TTLDays int `json:"ttl_days,omitempty"`
	// Infinite types skip inventory checks entirely.
	Infinite    bool `json:"infinite"`
	Replenishes bool `json:"replenishes"`
	// ReplenishCycle names the cadence ("monthly", "quarterly", ...).
	// Informational: replenishment runs are caller-triggered.
	ReplenishCycle string   `json:"replenish_cycle,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	// Level records where in the hierarchy the type was defined:
	// "individual", "org", or "network". Provenance only.
	Level       string      `json:"level"`
	Permissions Permissions `json:"permissions"`
}

// Validate checks structural well-formedness.
func (c *ResourceTypeContent) Validate() error {
	if c.ID.IsZero() {
		return fmt.Errorf("resource type: id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("resource type: name is required")
	}
	switch c.Level {
	case "individual", "org", "network":
	default:
		return fmt.Errorf("resource type: level must be individual, org, or network, got %q", c.Level)
	}
	if c.Perishable && c.TTLDays <= 0 {
		return fmt.Errorf("resource type: perishable types require a positive ttl_days")
	}
	return c.Permissions.Validate()
}

// InfiniteCapacity is the capacity sentinel for relations to infinite
// resource types. Such relations never gate allocation on quantity.
const InfiniteCapacity int64 = -1

// RelationContent is the content of an m.docket.relation state event.
type RelationContent struct {
	ID             ref.RelationID `json:"id"`
	ResourceTypeID ref.TypeID     `json:"resource_type_id"`
	Holder         ref.UserID     `json:"holder"`
	RelationType   string         `json:"relation_type"` // "owns", "administers", "draws_from"
	Capacity       int64          `json:"capacity"`
	Available      int64          `json:"available"`
}

// Infinite reports whether the relation has unbounded capacity.
func (c *RelationContent) Infinite() bool {
	return c.Capacity == InfiniteCapacity
}

// Validate checks the available-within-capacity invariant (skipped for
// infinite relations) and required fields.
func (c *RelationContent) Validate() error {
	if c.ID.IsZero() {
		return fmt.Errorf("relation: id is required")
	}
	if c.ResourceTypeID.IsZero() {
		return fmt.Errorf("relation: resource_type_id is required")
	}
	if c.Holder.IsZero() {
		return fmt.Errorf("relation: holder is required")
	}
	if c.Infinite() {
		return nil
	}
	if c.Capacity < 0 {
		return fmt.Errorf("relation: capacity %d is negative", c.Capacity)
	}
	if c.Available < 0 || c.Available > c.Capacity {
		return fmt.Errorf("relation: available %d outside [0, %d]", c.Available, c.Capacity)
	}
	return nil
}

// Allocation status values.
const (
	AllocationStatusActive   = "active"
	AllocationStatusConsumed = "consumed"
	AllocationStatusReturned = "returned"
	AllocationStatusRevoked  = "revoked"
	AllocationStatusExpired  = "expired"
)

// AllocationContent is the content of an m.docket.allocation state
// event.
type AllocationContent struct {
	ID             ref.AllocationID `json:"id"`
	CaseID         ref.RoomID       `json:"case_id"`
	ResourceTypeID ref.TypeID       `json:"resource_type_id"`
	RelationID     ref.RelationID   `json:"relation_id"`
	Quantity       int64            `json:"quantity"`
	Status         string           `json:"status"`
	AllocatedBy    ref.UserID       `json:"allocated_by"`
	// AllocatedAt, ExpiresAt, and SettledAt are Unix milliseconds.
	AllocatedAt int64  `json:"allocated_at"`
	ExpiresAt   int64  `json:"expires_at,omitempty"`
	SettledAt   int64  `json:"settled_at,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Active reports whether the allocation can still settle.
func (c *AllocationContent) Active() bool {
	return c.Status == AllocationStatusActive
}

// Validate checks structural well-formedness.
func (c *AllocationContent) Validate() error {
	if c.ID.IsZero() {
		return fmt.Errorf("allocation: id is required")
	}
	if c.CaseID.IsZero() {
		return fmt.Errorf("allocation: case_id is required")
	}
	if c.RelationID.IsZero() {
		return fmt.Errorf("allocation: relation_id is required")
	}
	if c.Quantity <= 0 {
		return fmt.Errorf("allocation: quantity must be positive, got %d", c.Quantity)
	}
	switch c.Status {
	case AllocationStatusActive, AllocationStatusConsumed, AllocationStatusReturned,
		AllocationStatusRevoked, AllocationStatusExpired:
	default:
		return fmt.Errorf("allocation: unknown status %q", c.Status)
	}
	return nil
}

// AssignmentContent is the content of an m.docket.assignment state
// event in the org room, keyed by case room ID.
type AssignmentContent struct {
	CaseID       ref.RoomID   `json:"case_id"`
	PrimaryStaff ref.UserID   `json:"primary_staff"`
	Staff        []ref.UserID `json:"staff,omitempty"`
	ClientName   string       `json:"client_name,omitempty"`
	Transferable bool         `json:"transferable"`
	// TransferredFrom and TransferredAt record the most recent
	// completed transfer. Zero values mean the case has never moved.
	TransferredFrom ref.UserID `json:"transferred_from,omitempty"`
	TransferredAt   int64      `json:"transferred_at,omitempty"`
}

// HasStaff reports whether userID appears in the staff list or is the
// primary.
func (c *AssignmentContent) HasStaff(userID ref.UserID) bool {
	if c.PrimaryStaff == userID {
		return true
	}
	for _, staff := range c.Staff {
		if staff == userID {
			return true
		}
	}
	return false
}

// Validate checks structural well-formedness.
func (c *AssignmentContent) Validate() error {
	if c.CaseID.IsZero() {
		return fmt.Errorf("assignment: case_id is required")
	}
	if c.PrimaryStaff.IsZero() {
		return fmt.Errorf("assignment: primary_staff is required")
	}
	return nil
}

// RosterContent is the content of an m.docket.roster state event.
type RosterContent struct {
	UserID      ref.UserID `json:"user_id"`
	Role        string     `json:"role"`
	DisplayName string     `json:"display_name,omitempty"`
	// AddedAt is Unix milliseconds.
	AddedAt int64 `json:"added_at,omitempty"`
}

// Validate checks structural well-formedness.
func (c *RosterContent) Validate() error {
	if c.UserID.IsZero() {
		return fmt.Errorf("roster: user_id is required")
	}
	if c.Role == "" {
		return fmt.Errorf("roster: role is required")
	}
	return nil
}
