// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog manages resource type definitions and inventory
// relations in an organization's rooms.
//
// A resource type (m.docket.resource_type) describes a kind of
// assistance an org can grant: its unit, whether units are
// interchangeable, whether allocations expire, whether stock
// replenishes, and who may control, allocate, or view it. A relation
// (m.docket.relation) binds a holder to a type with a capacity and a
// currently available quantity; the available count is the single
// source of truth the allocation engine draws against.
//
// Relation IDs derive deterministically from (holder, type ID), so
// establishing the same relation twice addresses the same state key
// and the second call returns the first call's record unchanged. This
// is what makes org bootstrap scripts safe to re-run.
//
// Inventory mutations follow read-validate-commit: read the relation,
// validate against domain rules, re-read immediately before writing,
// and fail with ConflictError if the available quantity moved in
// between. The substrate has no transactions; the paired read narrows
// the lost-update window to the single write and makes the race a
// visible error instead of silent stock corruption.
//
// Promotion (moving a type from an individual's room to the org room,
// or org to network) is a commit-forward saga: once the type exists at
// the new level, failures tombstoning the old records are logged and
// left for repair, never rolled back. A resource visible at two levels
// is an inconvenience; one visible at neither is an outage.
package catalog

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zeebo/blake3"

	"github.com/docket-foundation/docket/lib/ability"
	"github.com/docket-foundation/docket/lib/clock"
	"github.com/docket-foundation/docket/lib/ledger"
	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
	"github.com/docket-foundation/docket/messaging"
)

// relationIDBytes is how much of the blake3 digest of (holder, type)
// becomes the relation ID suffix.
const relationIDBytes = 8

// Session is the subset of the Matrix client-server API the catalog
// needs. Satisfied by messaging.Session and *messaging.DirectSession.
type Session interface {
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)
	SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)
	GetRoomState(ctx context.Context, roomID ref.RoomID) ([]messaging.Event, error)
}

// Config holds the catalog's dependencies.
type Config struct {
	Session Session
	// Ledger records one operation per catalog mutation.
	Ledger *ledger.Ledger
	// Clock is unused by the catalog itself but threaded to keep
	// timestamps consistent with the ledger's. Nil uses the real clock.
	Clock clock.Clock
	// Logger is used for structured logging. Nil uses slog.Default().
	Logger *slog.Logger
}

// Catalog reads and mutates resource types and relations.
type Catalog struct {
	session Session
	ledger  *ledger.Ledger
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates a Catalog.
func New(config Config) (*Catalog, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("catalog: Session is required")
	}
	if config.Ledger == nil {
		return nil, fmt.Errorf("catalog: Ledger is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{session: config.Session, ledger: config.Ledger, clock: clk, logger: logger}, nil
}

// TypeDefinition is the caller-supplied part of a resource type.
type TypeDefinition struct {
	Name           string
	Category       string
	Unit           string
	Fungible       bool
	Perishable     bool
	TTLDays        int
	Infinite       bool
	Replenishes    bool
	ReplenishCycle string
	Tags           []string
	Permissions    schema.Permissions
}

// CreateType writes a new resource type into the room and appends a
// designate operation. The level ("individual", "org", "network")
// records where in the hierarchy the type was defined; the caller
// chooses the room, and the level is provenance, not routing.
func (c *Catalog) CreateType(ctx context.Context, roomID ref.RoomID, definition TypeDefinition, level string, actor ability.Actor) (*schema.ResourceTypeContent, error) {
	content := schema.ResourceTypeContent{
		ID:             ref.NewTypeID(),
		Name:           definition.Name,
		Category:       definition.Category,
		Unit:           definition.Unit,
		Fungible:       definition.Fungible,
		Perishable:     definition.Perishable,
		TTLDays:        definition.TTLDays,
		Infinite:       definition.Infinite,
		Replenishes:    definition.Replenishes,
		ReplenishCycle: definition.ReplenishCycle,
		Tags:           definition.Tags,
		Level:          level,
		Permissions:    definition.Permissions,
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}

	if _, err := c.session.SendStateEvent(ctx, roomID, schema.EventTypeResourceType, content.ID.String(), &content); err != nil {
		return nil, fmt.Errorf("catalog: writing resource type %s: %w", content.ID, err)
	}

	if _, err := c.ledger.Append(ctx, roomID, ledger.AppendRequest{
		Verb:       ledger.VerbDesignate,
		TargetPath: ref.ResourceTarget(content.ID),
		Actor:      actor.UserID,
		Frame:      schema.Frame{Type: "resource_type", Role: actor.Role},
		Payload:    map[string]any{"name": content.Name, "level": level},
	}); err != nil {
		return nil, err
	}

	c.logger.Info("created resource type",
		"room_id", roomID,
		"type_id", content.ID,
		"name", content.Name,
		"level", level,
	)
	return &content, nil
}

// GetType reads a resource type. A missing or tombstoned record
// returns NotFoundError.
func (c *Catalog) GetType(ctx context.Context, roomID ref.RoomID, typeID ref.TypeID) (*schema.ResourceTypeContent, error) {
	raw, err := c.session.GetStateEvent(ctx, roomID, schema.EventTypeResourceType, typeID.String())
	if err != nil {
		if messaging.IsNotFound(err) {
			return nil, &NotFoundError{Kind: "resource type", ID: typeID.String()}
		}
		return nil, fmt.Errorf("catalog: reading resource type %s: %w", typeID, err)
	}
	if schema.IsTombstone(raw) {
		return nil, &NotFoundError{Kind: "resource type", ID: typeID.String()}
	}
	var content schema.ResourceTypeContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("catalog: parsing resource type %s: %w", typeID, err)
	}
	return &content, nil
}

// ListTypes returns every live resource type in the room.
func (c *Catalog) ListTypes(ctx context.Context, roomID ref.RoomID) ([]schema.ResourceTypeContent, error) {
	events, err := c.session.GetRoomState(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("catalog: listing resource types in %s: %w", roomID, err)
	}
	var types []schema.ResourceTypeContent
	for _, event := range events {
		if event.Type != schema.EventTypeResourceType || event.IsTombstone() {
			continue
		}
		var content schema.ResourceTypeContent
		if err := remarshal(event.Content, &content); err != nil {
			c.logger.Warn("skipping malformed resource type state event",
				"room_id", roomID, "event_id", event.EventID, "error", err)
			continue
		}
		types = append(types, content)
	}
	return types, nil
}

// UpdatePermissions replaces a type's grant lists. Controller-gated:
// the actor must hold control on the type as currently stored.
func (c *Catalog) UpdatePermissions(ctx context.Context, roomID ref.RoomID, typeID ref.TypeID, permissions schema.Permissions, actor ability.Actor) error {
	if err := permissions.Validate(); err != nil {
		return err
	}
	content, err := c.GetType(ctx, roomID, typeID)
	if err != nil {
		return err
	}
	if !ability.Allowed(content.Permissions, ability.Control, actor) {
		return &PermissionDeniedError{Capability: ability.Control, Actor: actor.UserID, TypeID: typeID}
	}

	content.Permissions = permissions
	if _, err := c.session.SendStateEvent(ctx, roomID, schema.EventTypeResourceType, typeID.String(), content); err != nil {
		return fmt.Errorf("catalog: writing resource type %s: %w", typeID, err)
	}

	_, err = c.ledger.Append(ctx, roomID, ledger.AppendRequest{
		Verb:       ledger.VerbAlter,
		TargetPath: ref.ResourceTarget(typeID),
		Actor:      actor.UserID,
		Frame:      schema.Frame{Type: "resource_type", Role: actor.Role},
		Payload:    map[string]any{"changed": "permissions"},
	})
	return err
}

// RelationIDFor derives the deterministic relation ID for a (holder,
// type) pair.
func RelationIDFor(holder ref.UserID, typeID ref.TypeID) ref.RelationID {
	digest := blake3.Sum256([]byte(holder.String() + "|" + typeID.String()))
	relationID, err := ref.RelationIDFromHash(hex.EncodeToString(digest[:relationIDBytes]))
	if err != nil {
		// Hex output of a hash always parses.
		panic(fmt.Sprintf("catalog: deriving relation ID: %v", err))
	}
	return relationID
}

// EstablishRelation creates the holder's inventory relation to a type,
// or returns the existing one. Establishment is idempotent: the
// relation ID derives from (holder, type), so a repeat call finds the
// existing record and returns it without touching capacity. The
// returned bool is true when this call created the relation.
//
// For infinite types, pass schema.InfiniteCapacity.
func (c *Catalog) EstablishRelation(ctx context.Context, roomID ref.RoomID, holder ref.UserID, typeID ref.TypeID, relationType string, capacity int64, actor ability.Actor) (*schema.RelationContent, bool, error) {
	if _, err := c.GetType(ctx, roomID, typeID); err != nil {
		return nil, false, err
	}

	relationID := RelationIDFor(holder, typeID)
	existing, err := c.relation(ctx, roomID, relationID)
	if err == nil {
		return existing, false, nil
	}
	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		return nil, false, err
	}

	available := capacity
	if capacity == schema.InfiniteCapacity {
		available = 0
	}
	content := schema.RelationContent{
		ID:             relationID,
		ResourceTypeID: typeID,
		Holder:         holder,
		RelationType:   relationType,
		Capacity:       capacity,
		Available:      available,
	}
	if err := content.Validate(); err != nil {
		return nil, false, err
	}

	if _, err := c.session.SendStateEvent(ctx, roomID, schema.EventTypeRelation, relationID.String(), &content); err != nil {
		return nil, false, fmt.Errorf("catalog: writing relation %s: %w", relationID, err)
	}

	if _, err := c.ledger.Append(ctx, roomID, ledger.AppendRequest{
		Verb:       ledger.VerbInstantiate,
		TargetPath: ref.RelationTarget(relationID),
		Actor:      actor.UserID,
		Frame:      schema.Frame{Type: "relation", Role: actor.Role},
		Payload: map[string]any{
			"holder":           holder.String(),
			"resource_type_id": typeID.String(),
			"capacity":         capacity,
		},
	}); err != nil {
		return nil, false, err
	}

	c.logger.Info("established relation",
		"room_id", roomID,
		"relation_id", relationID,
		"holder", holder,
		"type_id", typeID,
		"capacity", capacity,
	)
	return &content, true, nil
}

// GetRelation reads a relation. A missing or tombstoned record returns
// NotFoundError.
func (c *Catalog) GetRelation(ctx context.Context, roomID ref.RoomID, relationID ref.RelationID) (*schema.RelationContent, error) {
	return c.relation(ctx, roomID, relationID)
}

func (c *Catalog) relation(ctx context.Context, roomID ref.RoomID, relationID ref.RelationID) (*schema.RelationContent, error) {
	raw, err := c.session.GetStateEvent(ctx, roomID, schema.EventTypeRelation, relationID.String())
	if err != nil {
		if messaging.IsNotFound(err) {
			return nil, &NotFoundError{Kind: "relation", ID: relationID.String()}
		}
		return nil, fmt.Errorf("catalog: reading relation %s: %w", relationID, err)
	}
	if schema.IsTombstone(raw) {
		return nil, &NotFoundError{Kind: "relation", ID: relationID.String()}
	}
	var content schema.RelationContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("catalog: parsing relation %s: %w", relationID, err)
	}
	return &content, nil
}

// ListRelations returns every live relation in the room. Pass a
// non-zero typeID to restrict to one resource type.
func (c *Catalog) ListRelations(ctx context.Context, roomID ref.RoomID, typeID ref.TypeID) ([]schema.RelationContent, error) {
	events, err := c.session.GetRoomState(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("catalog: listing relations in %s: %w", roomID, err)
	}
	var relations []schema.RelationContent
	for _, event := range events {
		if event.Type != schema.EventTypeRelation || event.IsTombstone() {
			continue
		}
		var content schema.RelationContent
		if err := remarshal(event.Content, &content); err != nil {
			c.logger.Warn("skipping malformed relation state event",
				"room_id", roomID, "event_id", event.EventID, "error", err)
			continue
		}
		if !typeID.IsZero() && content.ResourceTypeID != typeID {
			continue
		}
		relations = append(relations, content)
	}
	return relations, nil
}

// Restock adds delta units to a relation's capacity and availability.
// Delta must be positive (NegativeDeltaError otherwise); restocking is
// additive only. Controller-gated on the relation's resource type.
func (c *Catalog) Restock(ctx context.Context, roomID ref.RoomID, relationID ref.RelationID, delta int64, note string, actor ability.Actor) (*schema.RelationContent, error) {
	if delta <= 0 {
		return nil, &NegativeDeltaError{Delta: delta}
	}

	relation, err := c.relation(ctx, roomID, relationID)
	if err != nil {
		return nil, err
	}
	resourceType, err := c.GetType(ctx, roomID, relation.ResourceTypeID)
	if err != nil {
		return nil, err
	}
	if !ability.Allowed(resourceType.Permissions, ability.Control, actor) {
		return nil, &PermissionDeniedError{Capability: ability.Control, Actor: actor.UserID, TypeID: resourceType.ID}
	}
	if relation.Infinite() {
		return nil, fmt.Errorf("catalog: relation %s has infinite capacity, restock is meaningless", relationID)
	}

	updated := *relation
	updated.Capacity += delta
	updated.Available += delta

	if err := c.commitRelation(ctx, roomID, relation, &updated); err != nil {
		return nil, err
	}

	if _, err := c.ledger.Append(ctx, roomID, ledger.AppendRequest{
		Verb:       ledger.VerbAlter,
		TargetPath: ref.RelationTarget(relationID),
		Actor:      actor.UserID,
		Frame:      schema.Frame{Type: "relation", Role: actor.Role},
		Payload: map[string]any{
			"restock":   delta,
			"note":      note,
			"available": updated.Available,
			"capacity":  updated.Capacity,
		},
	}); err != nil {
		return nil, err
	}
	return &updated, nil
}

// Replenish resets available to capacity on every relation of a
// replenishing resource type. Returns the relations that were topped
// up. Controller-gated. Runs are caller-triggered (a cron CLI, an
// operator command); the catalog keeps no timers.
func (c *Catalog) Replenish(ctx context.Context, roomID ref.RoomID, typeID ref.TypeID, actor ability.Actor) ([]schema.RelationContent, error) {
	resourceType, err := c.GetType(ctx, roomID, typeID)
	if err != nil {
		return nil, err
	}
	if !resourceType.Replenishes {
		return nil, fmt.Errorf("catalog: resource type %s does not replenish", typeID)
	}
	if !ability.Allowed(resourceType.Permissions, ability.Control, actor) {
		return nil, &PermissionDeniedError{Capability: ability.Control, Actor: actor.UserID, TypeID: typeID}
	}

	relations, err := c.ListRelations(ctx, roomID, typeID)
	if err != nil {
		return nil, err
	}

	var replenished []schema.RelationContent
	for i := range relations {
		relation := relations[i]
		if relation.Infinite() || relation.Available == relation.Capacity {
			continue
		}
		updated := relation
		updated.Available = updated.Capacity
		if err := c.commitRelation(ctx, roomID, &relation, &updated); err != nil {
			return replenished, err
		}
		if _, err := c.ledger.Append(ctx, roomID, ledger.AppendRequest{
			Verb:       ledger.VerbAlter,
			TargetPath: ref.RelationTarget(relation.ID),
			Actor:      actor.UserID,
			Frame:      schema.Frame{Type: "relation", Role: actor.Role},
			Payload:    map[string]any{"replenished": updated.Capacity - relation.Available},
		}); err != nil {
			return replenished, err
		}
		replenished = append(replenished, updated)
	}
	return replenished, nil
}

// PromoteRequest names a promotion: move a type's definition from one
// room (level) to another.
type PromoteRequest struct {
	TypeID   ref.TypeID
	FromRoom ref.RoomID
	ToRoom   ref.RoomID
	NewLevel string // "org" or "network"
	Actor    ability.Actor
}

// Promote moves a resource type up a level. Three steps, commit
// forward: (1) write the type into the destination room at the new
// level — the commit point; (2) tombstone the old definition; (3)
// tombstone the old relations. Failures after step 1 are logged and
// the promotion still reports success: the repair is re-running the
// tombstone steps, never deleting the promoted type.
//
// Relations do not move. Holders re-establish against the promoted
// type, which starts the org-level inventory explicitly rather than
// guessing how individual stock maps up.
func (c *Catalog) Promote(ctx context.Context, request PromoteRequest) (*schema.ResourceTypeContent, error) {
	content, err := c.GetType(ctx, request.FromRoom, request.TypeID)
	if err != nil {
		return nil, err
	}
	if !ability.Allowed(content.Permissions, ability.Control, request.Actor) {
		return nil, &PermissionDeniedError{Capability: ability.Control, Actor: request.Actor.UserID, TypeID: request.TypeID}
	}

	promoted := *content
	promoted.Level = request.NewLevel
	if err := promoted.Validate(); err != nil {
		return nil, err
	}

	// Step 1: the commit point.
	if _, err := c.session.SendStateEvent(ctx, request.ToRoom, schema.EventTypeResourceType, promoted.ID.String(), &promoted); err != nil {
		return nil, fmt.Errorf("catalog: promoting resource type %s to %s: %w", request.TypeID, request.ToRoom, err)
	}
	if _, err := c.ledger.Append(ctx, request.ToRoom, ledger.AppendRequest{
		Verb:       ledger.VerbSynthesize,
		TargetPath: ref.ResourceTarget(request.TypeID),
		Actor:      request.Actor.UserID,
		Frame:      schema.Frame{Type: "resource_type", Role: request.Actor.Role},
		Payload: map[string]any{
			"promoted_from": request.FromRoom.String(),
			"level":         request.NewLevel,
		},
	}); err != nil {
		c.logger.Error("promotion committed but destination ledger append failed",
			"type_id", request.TypeID, "to_room", request.ToRoom, "error", err)
	}

	// Step 2: retire the old definition.
	if _, err := c.session.SendStateEvent(ctx, request.FromRoom, schema.EventTypeResourceType, request.TypeID.String(), schema.Tombstone); err != nil {
		c.logger.Error("promotion committed but old definition not tombstoned",
			"type_id", request.TypeID, "from_room", request.FromRoom, "error", err)
		return &promoted, nil
	}
	if _, err := c.ledger.Append(ctx, request.FromRoom, ledger.AppendRequest{
		Verb:       ledger.VerbNull,
		TargetPath: ref.ResourceTarget(request.TypeID),
		Actor:      request.Actor.UserID,
		Frame:      schema.Frame{Type: "resource_type", Role: request.Actor.Role},
		Payload:    map[string]any{"promoted_to": request.ToRoom.String()},
	}); err != nil {
		c.logger.Error("promotion committed but source ledger append failed",
			"type_id", request.TypeID, "from_room", request.FromRoom, "error", err)
	}

	// Step 3: retire the old relations.
	relations, err := c.ListRelations(ctx, request.FromRoom, request.TypeID)
	if err != nil {
		c.logger.Error("promotion committed but old relations not listed",
			"type_id", request.TypeID, "from_room", request.FromRoom, "error", err)
		return &promoted, nil
	}
	for _, relation := range relations {
		if _, err := c.session.SendStateEvent(ctx, request.FromRoom, schema.EventTypeRelation, relation.ID.String(), schema.Tombstone); err != nil {
			c.logger.Error("promotion committed but old relation not tombstoned",
				"type_id", request.TypeID, "relation_id", relation.ID, "error", err)
		}
	}

	c.logger.Info("promoted resource type",
		"type_id", request.TypeID,
		"from_room", request.FromRoom,
		"to_room", request.ToRoom,
		"level", request.NewLevel,
		"relations_retired", len(relations),
	)
	return &promoted, nil
}

// CommitRelation writes an updated relation after re-reading the
// stored record and verifying the available quantity still matches
// what the caller's validation read saw. The allocation engine uses
// this for its inventory decrement.
func (c *Catalog) CommitRelation(ctx context.Context, roomID ref.RoomID, read, updated *schema.RelationContent) error {
	return c.commitRelation(ctx, roomID, read, updated)
}

func (c *Catalog) commitRelation(ctx context.Context, roomID ref.RoomID, read, updated *schema.RelationContent) error {
	if err := updated.Validate(); err != nil {
		return err
	}

	current, err := c.relation(ctx, roomID, read.ID)
	if err != nil {
		return err
	}
	if current.Available != read.Available {
		return &ConflictError{
			RelationID:     read.ID,
			ReadAvailable:  read.Available,
			FoundAvailable: current.Available,
		}
	}

	if _, err := c.session.SendStateEvent(ctx, roomID, schema.EventTypeRelation, updated.ID.String(), updated); err != nil {
		return fmt.Errorf("catalog: writing relation %s: %w", updated.ID, err)
	}
	return nil
}

// remarshal converts the map-typed content of a state event into a
// typed struct via JSON.
func remarshal(content map[string]any, target any) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}
