// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package assignment tracks which staff carry which cases and moves
// cases between staff.
//
// The org room is the registry: one m.docket.assignment state event
// per case, keyed by the case's room ID, plus one m.docket.roster
// event per staff member. The case room's membership is the actual
// access boundary — being on an assignment means nothing if you are
// not in the room — so this package treats the registry as intent and
// room membership as enforcement, and Repair reconciles the two.
//
// Transfer runs in three steps: invite the new staff member to the
// case room, rewrite the assignment record, kick the old primary. The
// assignment rewrite is the commit point. A failed invite aborts the
// transfer with nothing changed; a failed kick is logged and left to
// Repair, because at that point the new staff member already carries
// the case and rolling back would strand the client.
package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docket-foundation/docket/lib/ability"
	"github.com/docket-foundation/docket/lib/clock"
	"github.com/docket-foundation/docket/lib/ledger"
	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
	"github.com/docket-foundation/docket/messaging"
)

// Session is the subset of the Matrix client-server API this package
// needs. Satisfied by messaging.Session and *messaging.DirectSession.
type Session interface {
	CreateRoom(ctx context.Context, request messaging.CreateRoomRequest) (*messaging.CreateRoomResponse, error)
	GetStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string) (json.RawMessage, error)
	SendStateEvent(ctx context.Context, roomID ref.RoomID, eventType ref.EventType, stateKey string, content any) (ref.EventID, error)
	GetRoomState(ctx context.Context, roomID ref.RoomID) ([]messaging.Event, error)
	GetRoomMembers(ctx context.Context, roomID ref.RoomID) ([]messaging.RoomMember, error)
	InviteUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID) error
	KickUser(ctx context.Context, roomID ref.RoomID, userID ref.UserID, reason string) error
}

// Config holds the service's dependencies.
type Config struct {
	Session Session
	Ledger  *ledger.Ledger
	// Clock stamps roster additions and transfers. Nil uses the real
	// clock.
	Clock clock.Clock
	// Logger is used for structured logging. Nil uses slog.Default().
	Logger *slog.Logger
}

// Service reads and mutates assignments and the staff roster.
type Service struct {
	session Session
	ledger  *ledger.Ledger
	clock   clock.Clock
	logger  *slog.Logger
}

// New creates a Service.
func New(config Config) (*Service, error) {
	if config.Session == nil {
		return nil, fmt.Errorf("assignment: Session is required")
	}
	if config.Ledger == nil {
		return nil, fmt.Errorf("assignment: Ledger is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{session: config.Session, ledger: config.Ledger, clock: clk, logger: logger}, nil
}

func rosterTarget(userID ref.UserID) ref.TargetPath {
	return ref.MustParseTargetPath("roster/" + userID.String())
}

// AddToRoster records a user as organization staff with a role. An
// existing entry is overwritten, which is how role changes happen.
func (s *Service) AddToRoster(ctx context.Context, orgRoom ref.RoomID, userID ref.UserID, role, displayName string, actor ability.Actor) (*schema.RosterContent, error) {
	content := schema.RosterContent{
		UserID:      userID,
		Role:        role,
		DisplayName: displayName,
		AddedAt:     s.clock.Now().UnixMilli(),
	}
	if err := content.Validate(); err != nil {
		return nil, err
	}

	if _, err := s.session.SendStateEvent(ctx, orgRoom, schema.EventTypeRoster, userID.String(), &content); err != nil {
		return nil, fmt.Errorf("assignment: writing roster entry for %s: %w", userID, err)
	}

	if _, err := s.ledger.Append(ctx, orgRoom, ledger.AppendRequest{
		Verb:       ledger.VerbInstantiate,
		TargetPath: rosterTarget(userID),
		Actor:      actor.UserID,
		Frame:      schema.Frame{Type: "roster", Role: actor.Role},
		Payload:    map[string]any{"role": role},
	}); err != nil {
		return nil, err
	}
	return &content, nil
}

// RemoveFromRoster tombstones a user's roster entry. Their case
// assignments are untouched; reassigning those is a separate,
// deliberate act.
func (s *Service) RemoveFromRoster(ctx context.Context, orgRoom ref.RoomID, userID ref.UserID, actor ability.Actor) error {
	if _, err := s.RosterEntry(ctx, orgRoom, userID); err != nil {
		return err
	}
	if _, err := s.session.SendStateEvent(ctx, orgRoom, schema.EventTypeRoster, userID.String(), schema.Tombstone); err != nil {
		return fmt.Errorf("assignment: tombstoning roster entry for %s: %w", userID, err)
	}
	_, err := s.ledger.Append(ctx, orgRoom, ledger.AppendRequest{
		Verb:       ledger.VerbNull,
		TargetPath: rosterTarget(userID),
		Actor:      actor.UserID,
		Frame:      schema.Frame{Type: "roster", Role: actor.Role},
	})
	return err
}

// RosterEntry reads one staff member's roster entry. A missing or
// tombstoned entry returns NotOrgMemberError.
func (s *Service) RosterEntry(ctx context.Context, orgRoom ref.RoomID, userID ref.UserID) (*schema.RosterContent, error) {
	raw, err := s.session.GetStateEvent(ctx, orgRoom, schema.EventTypeRoster, userID.String())
	if err != nil {
		if messaging.IsNotFound(err) {
			return nil, &NotOrgMemberError{UserID: userID}
		}
		return nil, fmt.Errorf("assignment: reading roster entry for %s: %w", userID, err)
	}
	if schema.IsTombstone(raw) {
		return nil, &NotOrgMemberError{UserID: userID}
	}
	var content schema.RosterContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("assignment: parsing roster entry for %s: %w", userID, err)
	}
	return &content, nil
}

// Roster returns every live roster entry in the org room.
func (s *Service) Roster(ctx context.Context, orgRoom ref.RoomID) ([]schema.RosterContent, error) {
	events, err := s.session.GetRoomState(ctx, orgRoom)
	if err != nil {
		return nil, fmt.Errorf("assignment: listing roster in %s: %w", orgRoom, err)
	}
	var roster []schema.RosterContent
	for _, event := range events {
		if event.Type != schema.EventTypeRoster || event.IsTombstone() {
			continue
		}
		var content schema.RosterContent
		if err := remarshal(event.Content, &content); err != nil {
			s.logger.Warn("skipping malformed roster state event",
				"room_id", orgRoom, "event_id", event.EventID, "error", err)
			continue
		}
		roster = append(roster, content)
	}
	return roster, nil
}

// Assign records a case assignment in the org room and appends an
// instantiate operation. The primary must be on the roster. This does
// not touch case room membership — call Repair (or invite manually)
// to align the room with the record.
func (s *Service) Assign(ctx context.Context, orgRoom ref.RoomID, content schema.AssignmentContent, actor ability.Actor) (*schema.AssignmentContent, error) {
	if err := content.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.RosterEntry(ctx, orgRoom, content.PrimaryStaff); err != nil {
		return nil, err
	}

	if _, err := s.session.SendStateEvent(ctx, orgRoom, schema.EventTypeAssignment, content.CaseID.String(), &content); err != nil {
		return nil, fmt.Errorf("assignment: writing assignment for case %s: %w", content.CaseID, err)
	}

	if _, err := s.ledger.Append(ctx, orgRoom, ledger.AppendRequest{
		Verb:       ledger.VerbInstantiate,
		TargetPath: ref.AssignmentTarget(content.CaseID),
		Actor:      actor.UserID,
		Frame:      schema.Frame{Type: "assignment", Role: actor.Role},
		Payload:    map[string]any{"primary_staff": content.PrimaryStaff.String()},
	}); err != nil {
		return nil, err
	}

	s.logger.Info("assigned case",
		"org_room", orgRoom,
		"case_id", content.CaseID,
		"primary_staff", content.PrimaryStaff,
	)
	return &content, nil
}

// Assignment reads a case's assignment record. A missing or tombstoned
// record returns NotFoundError.
func (s *Service) Assignment(ctx context.Context, orgRoom ref.RoomID, caseID ref.RoomID) (*schema.AssignmentContent, error) {
	raw, err := s.session.GetStateEvent(ctx, orgRoom, schema.EventTypeAssignment, caseID.String())
	if err != nil {
		if messaging.IsNotFound(err) {
			return nil, &NotFoundError{CaseID: caseID}
		}
		return nil, fmt.Errorf("assignment: reading assignment for case %s: %w", caseID, err)
	}
	if schema.IsTombstone(raw) {
		return nil, &NotFoundError{CaseID: caseID}
	}
	var content schema.AssignmentContent
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("assignment: parsing assignment for case %s: %w", caseID, err)
	}
	return &content, nil
}

// Assignments returns every live assignment in the org room.
func (s *Service) Assignments(ctx context.Context, orgRoom ref.RoomID) ([]schema.AssignmentContent, error) {
	events, err := s.session.GetRoomState(ctx, orgRoom)
	if err != nil {
		return nil, fmt.Errorf("assignment: listing assignments in %s: %w", orgRoom, err)
	}
	var assignments []schema.AssignmentContent
	for _, event := range events {
		if event.Type != schema.EventTypeAssignment || event.IsTombstone() {
			continue
		}
		var content schema.AssignmentContent
		if err := remarshal(event.Content, &content); err != nil {
			s.logger.Warn("skipping malformed assignment state event",
				"room_id", orgRoom, "event_id", event.EventID, "error", err)
			continue
		}
		assignments = append(assignments, content)
	}
	return assignments, nil
}

// recordEventLevel is the power level required to write docket record
// state events in a provisioned case room. 50 is the conventional
// Matrix moderator level; staff get it when the case is provisioned,
// other room members stay at users_default and cannot forge records.
const recordEventLevel = 50

// recordEventGrants restricts every docket record type to staff level.
func recordEventGrants() map[ref.EventType]int {
	return map[ref.EventType]int{
		schema.EventTypeOperation:     recordEventLevel,
		schema.EventTypeOperationHead: recordEventLevel,
		schema.EventTypeResourceType:  recordEventLevel,
		schema.EventTypeRelation:      recordEventLevel,
		schema.EventTypeAllocation:    recordEventLevel,
		schema.EventTypeAssignment:    recordEventLevel,
		schema.EventTypeRoster:        recordEventLevel,
	}
}

// ProvisionCaseRequest describes a new case room.
type ProvisionCaseRequest struct {
	OrgRoom ref.RoomID
	Name    string
	Topic   string
	// Primary is the staff member who will carry the case. Must be on
	// the org roster.
	Primary ref.UserID
	Actor   ability.Actor
}

// ProvisionCase creates a private case room, restricts the docket
// record event types to staff, invites the primary, and registers the
// assignment in the org room. The room is created first because the
// assignment record needs its ID; a failure after creation returns the
// room ID alongside the error so the caller can retry registration
// against the existing room instead of provisioning a duplicate.
func (s *Service) ProvisionCase(ctx context.Context, request ProvisionCaseRequest) (ref.RoomID, *schema.AssignmentContent, error) {
	if request.Name == "" {
		return ref.RoomID{}, nil, fmt.Errorf("assignment: case name is required")
	}
	if _, err := s.RosterEntry(ctx, request.OrgRoom, request.Primary); err != nil {
		return ref.RoomID{}, nil, err
	}

	response, err := s.session.CreateRoom(ctx, messaging.CreateRoomRequest{
		Name:   request.Name,
		Topic:  request.Topic,
		Preset: "private_chat",
		Invite: []string{request.Primary.String()},
	})
	if err != nil {
		return ref.RoomID{}, nil, fmt.Errorf("assignment: creating case room %q: %w", request.Name, err)
	}
	caseID := response.RoomID

	if err := schema.GrantPowerLevels(ctx, s.session, caseID, schema.PowerLevelGrants{
		Users:  map[ref.UserID]int{request.Primary: recordEventLevel},
		Events: recordEventGrants(),
	}); err != nil {
		return caseID, nil, fmt.Errorf("assignment: restricting record types in case %s: %w", caseID, err)
	}

	content, err := s.Assign(ctx, request.OrgRoom, schema.AssignmentContent{
		CaseID:       caseID,
		PrimaryStaff: request.Primary,
		Transferable: true,
	}, request.Actor)
	if err != nil {
		return caseID, nil, err
	}

	s.logger.Info("provisioned case room",
		"org_room", request.OrgRoom,
		"case_id", caseID,
		"name", request.Name,
		"primary_staff", request.Primary,
	)
	return caseID, content, nil
}

// TransferRequest names one case transfer.
type TransferRequest struct {
	OrgRoom ref.RoomID
	CaseID  ref.RoomID
	// To is the staff member receiving the case. Must be on the roster.
	To    ref.UserID
	Actor ability.Actor
}

// Transfer moves a case's primary staff. The sequence is invite, then
// rewrite the assignment, then kick — the rewrite is the commit point.
// Before it, any failure aborts with the case untouched; after it, the
// transfer has happened and a failed kick of the old primary is logged
// for Repair rather than rolled back.
func (s *Service) Transfer(ctx context.Context, request TransferRequest) (*schema.AssignmentContent, error) {
	content, err := s.Assignment(ctx, request.OrgRoom, request.CaseID)
	if err != nil {
		return nil, err
	}
	if !content.Transferable {
		return nil, &TransferLockedError{CaseID: request.CaseID}
	}
	if _, err := s.RosterEntry(ctx, request.OrgRoom, request.To); err != nil {
		return nil, err
	}
	previous := content.PrimaryStaff
	if previous == request.To {
		return content, nil
	}

	if err := s.session.InviteUser(ctx, request.CaseID, request.To); err != nil {
		// M_FORBIDDEN here usually means the user is already in the
		// room, which is fine for our purposes.
		if !messaging.IsMatrixError(err, messaging.ErrCodeForbidden) {
			return nil, fmt.Errorf("assignment: inviting %s to case %s: %w", request.To, request.CaseID, err)
		}
	}

	updated := *content
	updated.PrimaryStaff = request.To
	updated.Staff = appendStaff(content.Staff, request.To)
	updated.TransferredFrom = previous
	updated.TransferredAt = s.clock.Now().UnixMilli()

	if _, err := s.session.SendStateEvent(ctx, request.OrgRoom, schema.EventTypeAssignment, request.CaseID.String(), &updated); err != nil {
		return nil, fmt.Errorf("assignment: writing transferred assignment for case %s: %w", request.CaseID, err)
	}

	if _, err := s.ledger.Append(ctx, request.OrgRoom, ledger.AppendRequest{
		Verb:       ledger.VerbAlter,
		TargetPath: ref.AssignmentTarget(request.CaseID),
		Actor:      request.Actor.UserID,
		Frame:      schema.Frame{Type: "assignment", Role: request.Actor.Role},
		Payload: map[string]any{
			"transferred_from": previous.String(),
			"transferred_to":   request.To.String(),
		},
	}); err != nil {
		s.logger.Error("transfer committed but ledger append failed",
			"case_id", request.CaseID, "error", err)
	}

	if err := s.session.KickUser(ctx, request.CaseID, previous, "case transferred"); err != nil {
		s.logger.Error("transfer committed but previous staff not removed from case room",
			"case_id", request.CaseID, "user_id", previous, "error", err)
	}

	s.logger.Info("transferred case",
		"case_id", request.CaseID,
		"from", previous,
		"to", request.To,
	)
	return &updated, nil
}

// appendStaff adds member to the staff list unless already present.
// The old primary stays on the list; they carried the case and the
// record keeps saying so until someone removes them deliberately.
func appendStaff(staff []ref.UserID, member ref.UserID) []ref.UserID {
	for _, existing := range staff {
		if existing == member {
			return staff
		}
	}
	out := make([]ref.UserID, len(staff), len(staff)+1)
	copy(out, staff)
	return append(out, member)
}

// SyncAssignments reconciles the registry with the case population:
// every case in cases that has no live assignment record gets a
// default one naming defaultPrimary as transferable primary staff.
// Cases with an existing record are untouched, so the sweep is
// idempotent. Use this after the registry and the case rooms drift
// apart (cases created outside the normal flow, registry records
// lost); Repair then aligns room membership with the new records.
//
// The case population comes from the caller — typically the registry
// index or an explicit room list — because this package performs no
// room discovery of its own.
func (s *Service) SyncAssignments(ctx context.Context, orgRoom ref.RoomID, cases []ref.RoomID, defaultPrimary ref.UserID, actor ability.Actor) ([]schema.AssignmentContent, error) {
	if _, err := s.RosterEntry(ctx, orgRoom, defaultPrimary); err != nil {
		return nil, err
	}

	var inserted []schema.AssignmentContent
	for _, caseID := range cases {
		_, err := s.Assignment(ctx, orgRoom, caseID)
		if err == nil {
			continue
		}
		var notFound *NotFoundError
		if !errors.As(err, &notFound) {
			return inserted, err
		}

		created, err := s.Assign(ctx, orgRoom, schema.AssignmentContent{
			CaseID:       caseID,
			PrimaryStaff: defaultPrimary,
			Transferable: true,
		}, actor)
		if err != nil {
			return inserted, fmt.Errorf("assignment: inserting default assignment for case %s: %w", caseID, err)
		}
		s.logger.Info("inserted default assignment",
			"org_room", orgRoom,
			"case_id", caseID,
			"primary_staff", defaultPrimary,
		)
		inserted = append(inserted, *created)
	}
	return inserted, nil
}

// RepairAction describes one membership fix Repair performed.
type RepairAction struct {
	CaseID ref.RoomID `json:"case_id"`
	UserID ref.UserID `json:"user_id"`
	// Action is "invited" or "failed".
	Action string `json:"action"`
}

// Repair reconciles case room membership with the assignment registry:
// every staff member on an assignment who is not in (or invited to)
// the case room gets invited. Safe to run repeatedly; a clean org
// produces no actions. Invite failures are recorded per user and do
// not stop the sweep.
func (s *Service) Repair(ctx context.Context, orgRoom ref.RoomID) ([]RepairAction, error) {
	assignments, err := s.Assignments(ctx, orgRoom)
	if err != nil {
		return nil, err
	}

	var actions []RepairAction
	for _, assignment := range assignments {
		members, err := s.session.GetRoomMembers(ctx, assignment.CaseID)
		if err != nil {
			return actions, fmt.Errorf("assignment: reading members of case %s: %w", assignment.CaseID, err)
		}
		present := make(map[ref.UserID]bool, len(members))
		for _, member := range members {
			if member.Membership == "join" || member.Membership == "invite" {
				present[member.UserID] = true
			}
		}

		expected := append([]ref.UserID{assignment.PrimaryStaff}, assignment.Staff...)
		for _, userID := range expected {
			if present[userID] {
				continue
			}
			present[userID] = true
			action := RepairAction{CaseID: assignment.CaseID, UserID: userID, Action: "invited"}
			if err := s.session.InviteUser(ctx, assignment.CaseID, userID); err != nil {
				action.Action = "failed"
				s.logger.Error("repair invite failed",
					"case_id", assignment.CaseID, "user_id", userID, "error", err)
			}
			actions = append(actions, action)
		}
	}
	return actions, nil
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
