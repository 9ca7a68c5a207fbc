// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package allocation draws inventory down against cases and settles
// the resulting allocations.
//
// Allocate is a three-gate check: the actor must hold the allocate
// capability on the resource type, a relation must exist to draw from,
// and the relation must have enough available stock. Gate failures are
// not errors — they come back as structured violations in the Result,
// so a caller can show "insufficient inventory: 7 available" instead
// of a stack trace. Substrate failures and write conflicts are errors.
//
// A granted allocation decrements the relation's available quantity
// and writes an m.docket.allocation record with status "active".
// Settlement moves the status exactly once: consumed, returned, or
// revoked by a caller, or expired by SweepExpired. Only "returned"
// restores inventory; consumed stock is gone, revoked and expired
// stock was already handed out or wasted.
package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docket-foundation/docket/lib/ability"
	"github.com/docket-foundation/docket/lib/catalog"
	"github.com/docket-foundation/docket/lib/clock"
	"github.com/docket-foundation/docket/lib/ledger"
	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
	"github.com/docket-foundation/docket/messaging"
)

// Session is the subset of the Matrix client-server API the engine
// needs. Satisfied by messaging.Session and *messaging.DirectSession.
type Session interface {
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)
	SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)
	GetRoomState(ctx context.Context, roomID ref.RoomID) ([]messaging.Event, error)
}

// Config holds the engine's dependencies.
type Config struct {
	Session Session
	Catalog *catalog.Catalog
	Ledger  *ledger.Ledger
	// Clock stamps allocations and decides expiry. Nil uses the real
	// clock.
	Clock clock.Clock
	// Logger is used for structured logging. Nil uses slog.Default().
	Logger *slog.Logger
}

// Engine validates, grants, and settles allocations.
type Engine struct {
	session Session
	catalog *catalog.Catalog
	ledger  *ledger.Ledger
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates an Engine.
func New(config Config) (*Engine, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("allocation: Session is required")
	}
	if config.Catalog == nil {
		return nil, fmt.Errorf("allocation: Catalog is required")
	}
	if config.Ledger == nil {
		return nil, fmt.Errorf("allocation: Ledger is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		session: config.Session,
		catalog: config.Catalog,
		ledger:  config.Ledger,
		clock:   clk,
		logger:  logger,
	}, nil
}

// Request describes one allocation attempt.
type Request struct {
	// CaseID is the case room the allocation is for.
	CaseID ref.RoomID
	// TypeID is the resource type being allocated.
	TypeID ref.TypeID
	// RelationID pins the relation to draw from. Zero lets the engine
	// pick the first relation with sufficient stock.
	RelationID ref.RelationID
	Quantity   int64
	Actor      ability.Actor
	Notes      string
}

// Result is the outcome of an Allocate call. Valid is true when the
// allocation was granted; otherwise Violations explains every gate the
// request failed.
type Result struct {
	Valid      bool
	Allocation *schema.AllocationContent
	Violations []Violation
}

// Allocate runs the permission, relation, and inventory gates in order
// and, if all pass, decrements the relation and writes the allocation
// record. A Result with violations means nothing was written.
func (e *Engine) Allocate(ctx context.Context, roomID ref.RoomID, request Request) (*Result, error) {
	if request.Quantity <= 0 {
		return nil, fmt.Errorf("allocation: quantity must be positive, got %d", request.Quantity)
	}
	if request.CaseID.IsZero() {
		return nil, fmt.Errorf("allocation: case ID is required")
	}

	resourceType, err := e.catalog.GetType(ctx, roomID, request.TypeID)
	if err != nil {
		return nil, err
	}

	if !ability.Allowed(resourceType.Permissions, ability.Allocate, request.Actor) {
		return &Result{Violations: []Violation{{
			Code: ViolationPermissionDenied,
			Message: fmt.Sprintf("%s may not allocate %s",
				request.Actor.UserID, resourceType.Name),
		}}}, nil
	}

	relation, violation, err := e.pickRelation(ctx, roomID, resourceType, request)
	if err != nil {
		return nil, err
	}
	if violation != nil {
		return &Result{Violations: []Violation{*violation}}, nil
	}

	if !relation.Infinite() && !resourceType.Infinite {
		updated := *relation
		updated.Available -= request.Quantity
		if err := e.catalog.CommitRelation(ctx, roomID, relation, &updated); err != nil {
			return nil, err
		}
	}

	now := e.clock.Now()
	content := schema.AllocationContent{
		ID:             ref.NewAllocationID(),
		CaseID:         request.CaseID,
		ResourceTypeID: request.TypeID,
		RelationID:     relation.ID,
		Quantity:       request.Quantity,
		Status:         schema.AllocationStatusActive,
		AllocatedBy:    request.Actor.UserID,
		AllocatedAt:    now.UnixMilli(),
		Notes:          request.Notes,
	}
	if resourceType.Perishable {
		content.ExpiresAt = now.Add(time.Duration(resourceType.TTLDays) * 24 * time.Hour).UnixMilli()
	}

	if _, err := e.session.SendStateEvent(ctx, roomID, schema.EventTypeAllocation, content.ID.String(), &content); err != nil {
		return nil, fmt.Errorf("allocation: writing allocation %s: %w", content.ID, err)
	}

	if _, err := e.ledger.Append(ctx, roomID, ledger.AppendRequest{
		Verb:       ledger.VerbConnect,
		TargetPath: ref.AllocationTarget(content.ID),
		Actor:      request.Actor.UserID,
		Frame:      schema.Frame{Type: "allocation", Role: request.Actor.Role},
		Payload: map[string]any{
			"case_id":          request.CaseID.String(),
			"resource_type_id": request.TypeID.String(),
			"relation_id":      relation.ID.String(),
			"quantity":         request.Quantity,
		},
	}); err != nil {
		return nil, err
	}

	e.logger.Info("granted allocation",
		"room_id", roomID,
		"allocation_id", content.ID,
		"case_id", request.CaseID,
		"type_id", request.TypeID,
		"quantity", request.Quantity,
	)
	return &Result{Valid: true, Allocation: &content}, nil
}

// pickRelation resolves the relation to draw from: the pinned one if
// the request names it, otherwise the first relation of the type with
// enough stock. Returns a violation when no usable relation exists.
func (e *Engine) pickRelation(ctx context.Context, roomID ref.RoomID, resourceType *schema.ResourceTypeContent, request Request) (*schema.RelationContent, *Violation, error) {
	if !request.RelationID.IsZero() {
		relation, err := e.catalog.GetRelation(ctx, roomID, request.RelationID)
		if err != nil {
			var notFound *catalog.NotFoundError
			if errors.As(err, &notFound) {
				return nil, &Violation{
					Code:    ViolationNoRelation,
					Message: fmt.Sprintf("relation %s does not exist", request.RelationID),
				}, nil
			}
			return nil, nil, err
		}
		if violation := inventoryViolation(resourceType, relation, request.Quantity); violation != nil {
			return nil, violation, nil
		}
		return relation, nil, nil
	}

	relations, err := e.catalog.ListRelations(ctx, roomID, resourceType.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(relations) == 0 {
		return nil, &Violation{
			Code:    ViolationNoRelation,
			Message: fmt.Sprintf("no relation holds %s", resourceType.Name),
		}, nil
	}
	for i := range relations {
		if inventoryViolation(resourceType, &relations[i], request.Quantity) == nil {
			return &relations[i], nil, nil
		}
	}
	return nil, &Violation{
		Code: ViolationInsufficientInventory,
		Message: fmt.Sprintf("no relation has %d of %s available",
			request.Quantity, resourceType.Name),
	}, nil
}

// inventoryViolation checks quantity against a single relation.
// Infinite types and infinite relations never gate on quantity.
func inventoryViolation(resourceType *schema.ResourceTypeContent, relation *schema.RelationContent, quantity int64) *Violation {
	if resourceType.Infinite || relation.Infinite() {
		return nil
	}
	if relation.Available < quantity {
		return &Violation{
			Code: ViolationInsufficientInventory,
			Message: fmt.Sprintf("relation %s has %d available, need %d",
				relation.ID, relation.Available, quantity),
		}
	}
	return nil
}

// RecordEvent settles an active allocation: consumed, returned, or
// revoked. Settlement is terminal — a second settlement attempt
// returns InvalidTransitionError and changes nothing. Returning an
// allocation restores its quantity to the relation it was drawn from;
// the other settlements leave inventory alone. The status write is
// the commit point; the inventory restore runs after it and a restore
// failure is logged rather than rolled back.
//
// Revocation is an authority act and requires the control capability
// on the resource type. Consumed and returned are reported by whoever
// handled the resource and are not gated.
func (e *Engine) RecordEvent(ctx context.Context, roomID ref.RoomID, allocationID ref.AllocationID, status string, actor ability.Actor) (*schema.AllocationContent, error) {
	switch status {
	case schema.AllocationStatusConsumed, schema.AllocationStatusReturned, schema.AllocationStatusRevoked:
	default:
		return nil, fmt.Errorf("allocation: %q is not a settlement status", status)
	}

	content, err := e.GetAllocation(ctx, roomID, allocationID)
	if err != nil {
		return nil, err
	}
	if !content.Active() {
		return nil, &InvalidTransitionError{AllocationID: allocationID, From: content.Status, To: status}
	}

	if status == schema.AllocationStatusRevoked {
		resourceType, err := e.catalog.GetType(ctx, roomID, content.ResourceTypeID)
		if err != nil {
			return nil, err
		}
		if !ability.Allowed(resourceType.Permissions, ability.Control, actor) {
			return nil, &catalog.PermissionDeniedError{
				Capability: ability.Control, Actor: actor.UserID, TypeID: content.ResourceTypeID,
			}
		}
	}

	content.Status = status
	content.SettledAt = e.clock.Now().UnixMilli()
	if _, err := e.session.SendStateEvent(ctx, roomID, schema.EventTypeAllocation, allocationID.String(), content); err != nil {
		return nil, fmt.Errorf("allocation: writing allocation %s: %w", allocationID, err)
	}

	// The settlement write above is the commit point. A return that
	// fails to restore inventory afterwards is logged, not rolled
	// back — the allocation is no longer active, so a retry cannot
	// restore twice.
	if status == schema.AllocationStatusReturned {
		if err := e.restoreInventory(ctx, roomID, content); err != nil {
			e.logger.Error("return settled but inventory not restored",
				"room_id", roomID,
				"allocation_id", allocationID,
				"relation_id", content.RelationID,
				"error", err,
			)
		}
	}

	if _, err := e.ledger.Append(ctx, roomID, ledger.AppendRequest{
		Verb:       ledger.VerbAlter,
		TargetPath: ref.AllocationTarget(allocationID),
		Actor:      actor.UserID,
		Frame:      schema.Frame{Type: "allocation", Role: actor.Role},
		Payload:    map[string]any{"status": status},
	}); err != nil {
		return nil, err
	}

	e.logger.Info("settled allocation",
		"room_id", roomID,
		"allocation_id", allocationID,
		"status", status,
	)
	return content, nil
}

// restoreInventory puts a returned allocation's quantity back on its
// relation. A relation that no longer exists (tombstoned after a
// promotion, say) has nothing to restore to; the return still settles.
func (e *Engine) restoreInventory(ctx context.Context, roomID ref.RoomID, content *schema.AllocationContent) error {
	relation, err := e.catalog.GetRelation(ctx, roomID, content.RelationID)
	if err != nil {
		var notFound *catalog.NotFoundError
		if errors.As(err, &notFound) {
			e.logger.Warn("returned allocation's relation is gone, inventory not restored",
				"allocation_id", content.ID, "relation_id", content.RelationID)
			return nil
		}
		return err
	}
	if relation.Infinite() {
		return nil
	}

	updated := *relation
	updated.Available += content.Quantity
	if updated.Available > updated.Capacity {
		updated.Available = updated.Capacity
	}
	return e.catalog.CommitRelation(ctx, roomID, relation, &updated)
}

// GetAllocation reads an allocation record. A missing or tombstoned
// record returns NotFoundError.
func (e *Engine) GetAllocation(ctx context.Context, roomID ref.RoomID, allocationID ref.AllocationID) (*schema.AllocationContent, error) {
	raw, err := e.session.GetStateEvent(ctx, roomID, schema.EventTypeAllocation, allocationID.String())
	if err != nil {
		if messaging.IsNotFound(err) {
			return nil, &NotFoundError{AllocationID: allocationID}
		}
		return nil, fmt.Errorf("allocation: reading allocation %s: %w", allocationID, err)
	}
	if schema.IsTombstone(raw) {
		return nil, &NotFoundError{AllocationID: allocationID}
	}
	var content schema.AllocationContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("allocation: parsing allocation %s: %w", allocationID, err)
	}
	return &content, nil
}

// ListAllocations returns every live allocation in the room. Pass a
// non-zero caseID to restrict to one case.
func (e *Engine) ListAllocations(ctx context.Context, roomID ref.RoomID, caseID ref.RoomID) ([]schema.AllocationContent, error) {
	events, err := e.session.GetRoomState(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("allocation: listing allocations in %s: %w", roomID, err)
	}
	var allocations []schema.AllocationContent
	for _, event := range events {
		if event.Type != schema.EventTypeAllocation || event.IsTombstone() {
			continue
		}
		var content schema.AllocationContent
		if err := remarshal(event.Content, &content); err != nil {
			e.logger.Warn("skipping malformed allocation state event",
				"room_id", roomID, "event_id", event.EventID, "error", err)
			continue
		}
		if !caseID.IsZero() && content.CaseID != caseID {
			continue
		}
		allocations = append(allocations, content)
	}
	return allocations, nil
}

// SweepExpired marks every active allocation past its expiry as
// expired. Expired stock is not restored — perishable resources that
// aged out were handed to the client and wasted, not shelved. Returns
// the allocations that were swept.
func (e *Engine) SweepExpired(ctx context.Context, roomID ref.RoomID, actor ability.Actor) ([]schema.AllocationContent, error) {
	allocations, err := e.ListAllocations(ctx, roomID, ref.RoomID{})
	if err != nil {
		return nil, err
	}

	now := e.clock.Now().UnixMilli()
	var swept []schema.AllocationContent
	for i := range allocations {
		content := allocations[i]
		if !content.Active() || content.ExpiresAt == 0 || content.ExpiresAt > now {
			continue
		}
		content.Status = schema.AllocationStatusExpired
		content.SettledAt = now
		if _, err := e.session.SendStateEvent(ctx, roomID, schema.EventTypeAllocation, content.ID.String(), &content); err != nil {
			return swept, fmt.Errorf("allocation: expiring allocation %s: %w", content.ID, err)
		}
		if _, err := e.ledger.Append(ctx, roomID, ledger.AppendRequest{
			Verb:       ledger.VerbAlter,
			TargetPath: ref.AllocationTarget(content.ID),
			Actor:      actor.UserID,
			Frame:      schema.Frame{Type: "allocation", Role: actor.Role},
			Payload:    map[string]any{"status": schema.AllocationStatusExpired, "expired_at": content.ExpiresAt},
		}); err != nil {
			return swept, err
		}
		swept = append(swept, content)
	}

	if len(swept) > 0 {
		e.logger.Info("swept expired allocations", "room_id", roomID, "count", len(swept))
	}
	return swept, nil
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
