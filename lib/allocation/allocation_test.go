// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/docket-foundation/docket/lib/ability"
	"github.com/docket-foundation/docket/lib/catalog"
	"github.com/docket-foundation/docket/lib/clock"
	"github.com/docket-foundation/docket/lib/ledger"
	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
	"github.com/docket-foundation/docket/messaging"
)

var (
	testRoom   = ref.MustParseRoomID("!org1:local")
	testCase   = ref.MustParseRoomID("!case42:local")
	testHolder = ref.MustParseUserID("@morgan:local")
	testEpoch  = time.UnixMilli(1700000000000)

	supervisor = ability.Actor{UserID: ref.MustParseUserID("@morgan:local"), Role: "supervisor"}
	caseworker = ability.Actor{UserID: ref.MustParseUserID("@rivera:local"), Role: "case_manager"}
	intake     = ability.Actor{UserID: ref.MustParseUserID("@sam:local"), Role: "intake"}
)

type stateEntry struct {
	roomID    ref.RoomID
	eventType ref.EventType
	key       string
	raw       json.RawMessage
}

// fakeSession is the in-memory substrate shared by the catalog, the
// ledger, and the engine under test.
type fakeSession struct {
	state    map[string]stateEntry
	timeline []messaging.Event
	counter  int64

	// failState, when set, can reject individual state writes.
	failState func(eventType ref.EventType, key string) error
}

func newFakeSession() *fakeSession {
	return &fakeSession{state: make(map[string]stateEntry)}
}

func stateMapKey(roomID ref.RoomID, eventType ref.EventType, key string) string {
	return roomID.String() + "|" + string(eventType) + "|" + key
}

func (f *fakeSession) GetStateEvent(_ context.Context, roomID ref.RoomID, eventType ref.EventType, key string) (json.RawMessage, error) {
	entry, ok := f.state[stateMapKey(roomID, eventType, key)]
	if !ok {
		return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "not found", StatusCode: 404}
	}
	return entry.raw, nil
}

func (f *fakeSession) SendStateEvent(_ context.Context, roomID ref.RoomID, eventType ref.EventType, key string, content any) (ref.EventID, error) {
	if f.failState != nil {
		if err := f.failState(eventType, key); err != nil {
			return ref.EventID{}, err
		}
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return ref.EventID{}, err
	}
	f.state[stateMapKey(roomID, eventType, key)] = stateEntry{
		roomID: roomID, eventType: eventType, key: key, raw: raw,
	}
	return f.nextEventID(), nil
}

func (f *fakeSession) GetRoomState(_ context.Context, roomID ref.RoomID) ([]messaging.Event, error) {
	var events []messaging.Event
	for _, entry := range f.state {
		if entry.roomID != roomID {
			continue
		}
		var content map[string]any
		if err := json.Unmarshal(entry.raw, &content); err != nil {
			return nil, err
		}
		key := entry.key
		events = append(events, messaging.Event{
			EventID:  f.nextEventID(),
			Type:     entry.eventType,
			Content:  content,
			RoomID:   roomID,
			StateKey: &key,
		})
	}
	return events, nil
}

func (f *fakeSession) SendEvent(_ context.Context, roomID ref.RoomID, eventType ref.EventType, content any) (ref.EventID, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return ref.EventID{}, err
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ref.EventID{}, err
	}
	eventID := f.nextEventID()
	f.timeline = append(f.timeline, messaging.Event{
		EventID:        eventID,
		Type:           eventType,
		Sender:         testHolder,
		OriginServerTS: f.counter,
		Content:        decoded,
		RoomID:         roomID,
	})
	return eventID, nil
}

func (f *fakeSession) RoomMessages(_ context.Context, roomID ref.RoomID, options messaging.RoomMessagesOptions) (*messaging.RoomMessagesResponse, error) {
	var events []messaging.Event
	for _, event := range f.timeline {
		if event.RoomID == roomID {
			events = append(events, event)
		}
	}
	start := 0
	if options.From != "" {
		parsed, err := strconv.Atoi(options.From)
		if err != nil {
			return nil, err
		}
		start = parsed
	}
	end := len(events)
	if options.Limit > 0 && start+options.Limit < end {
		end = start + options.Limit
	}
	response := &messaging.RoomMessagesResponse{Start: options.From, Chunk: events[start:end]}
	if end < len(events) {
		response.End = strconv.Itoa(end)
	}
	return response, nil
}

func (f *fakeSession) nextEventID() ref.EventID {
	f.counter++
	return ref.MustParseEventID(fmt.Sprintf("$event%d:local", f.counter))
}

// fixture wires a catalog, ledger, and engine over one fake session
// and one fake clock.
type fixture struct {
	session *fakeSession
	clock   *clock.FakeClock
	catalog *catalog.Catalog
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	session := newFakeSession()
	fakeClock := clock.Fake(testEpoch)
	ledgerClient, err := ledger.New(ledger.Config{Session: session, Clock: fakeClock})
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	catalogClient, err := catalog.New(catalog.Config{Session: session, Ledger: ledgerClient, Clock: fakeClock})
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}
	engine, err := New(Config{Session: session, Catalog: catalogClient, Ledger: ledgerClient, Clock: fakeClock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{session: session, clock: fakeClock, catalog: catalogClient, engine: engine}
}

// seedType creates a resource type and a 10-unit relation held by
// testHolder, returning both.
func (f *fixture) seedType(t *testing.T, mutate func(*catalog.TypeDefinition)) (*schema.ResourceTypeContent, *schema.RelationContent) {
	t.Helper()
	definition := catalog.TypeDefinition{
		Name:     "Bus Voucher",
		Category: "transportation",
		Unit:     "voucher",
		Fungible: true,
		Permissions: schema.Permissions{
			Controllers: []schema.Grant{{Kind: "role", ID: "supervisor"}},
			Allocators:  []schema.Grant{{Kind: "role", ID: "case_manager"}, {Kind: "role", ID: "supervisor"}},
		},
	}
	if mutate != nil {
		mutate(&definition)
	}
	resourceType, err := f.catalog.CreateType(context.Background(), testRoom, definition, "org", supervisor)
	if err != nil {
		t.Fatalf("CreateType: %v", err)
	}
	capacity := int64(10)
	if definition.Infinite {
		capacity = schema.InfiniteCapacity
	}
	relation, _, err := f.catalog.EstablishRelation(context.Background(), testRoom, testHolder, resourceType.ID, "holds", capacity, supervisor)
	if err != nil {
		t.Fatalf("EstablishRelation: %v", err)
	}
	return resourceType, relation
}

func (f *fixture) mustAllocate(t *testing.T, typeID ref.TypeID, quantity int64) *schema.AllocationContent {
	t.Helper()
	result, err := f.engine.Allocate(context.Background(), testRoom, Request{
		CaseID:   testCase,
		TypeID:   typeID,
		Quantity: quantity,
		Actor:    caseworker,
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if !result.Valid {
		t.Fatalf("Allocate refused: %+v", result.Violations)
	}
	return result.Allocation
}

func (f *fixture) available(t *testing.T, relationID ref.RelationID) int64 {
	t.Helper()
	relation, err := f.catalog.GetRelation(context.Background(), testRoom, relationID)
	if err != nil {
		t.Fatalf("GetRelation: %v", err)
	}
	return relation.Available
}

func TestAllocateDrawsDownInventory(t *testing.T) {
	f := newFixture(t)
	resourceType, relation := f.seedType(t, nil)

	allocation := f.mustAllocate(t, resourceType.ID, 3)
	if allocation.Status != schema.AllocationStatusActive {
		t.Errorf("status = %q, want active", allocation.Status)
	}
	if allocation.Quantity != 3 || allocation.CaseID != testCase {
		t.Errorf("allocation = %+v", allocation)
	}
	if allocation.RelationID != relation.ID {
		t.Errorf("relation ID = %v, want %v", allocation.RelationID, relation.ID)
	}
	if got := f.available(t, relation.ID); got != 7 {
		t.Errorf("available after allocation = %d, want 7", got)
	}

	// The record is readable back and an operation hit the ledger.
	fetched, err := f.engine.GetAllocation(context.Background(), testRoom, allocation.ID)
	if err != nil {
		t.Fatalf("GetAllocation: %v", err)
	}
	if fetched.AllocatedAt != testEpoch.UnixMilli() {
		t.Errorf("allocated_at = %d", fetched.AllocatedAt)
	}
	last := f.session.timeline[len(f.session.timeline)-1]
	if last.Content["verb"] != "connect" {
		t.Errorf("ledger verb = %v, want connect", last.Content["verb"])
	}
}

func TestAllocateInsufficientInventory(t *testing.T) {
	f := newFixture(t)
	resourceType, relation := f.seedType(t, nil)
	before := len(f.session.state)

	result, err := f.engine.Allocate(context.Background(), testRoom, Request{
		CaseID: testCase, TypeID: resourceType.ID, Quantity: 20, Actor: caseworker,
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if result.Valid {
		t.Fatal("over-capacity allocation must be refused")
	}
	if len(result.Violations) != 1 || result.Violations[0].Code != ViolationInsufficientInventory {
		t.Fatalf("violations = %+v", result.Violations)
	}
	if got := f.available(t, relation.ID); got != 10 {
		t.Errorf("refused allocation moved inventory: available = %d", got)
	}
	if len(f.session.state) != before {
		t.Error("refused allocation wrote state")
	}
}

func TestAllocatePermissionDenied(t *testing.T) {
	f := newFixture(t)
	resourceType, _ := f.seedType(t, nil)

	result, err := f.engine.Allocate(context.Background(), testRoom, Request{
		CaseID: testCase, TypeID: resourceType.ID, Quantity: 1, Actor: intake,
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if result.Valid || result.Violations[0].Code != ViolationPermissionDenied {
		t.Errorf("result = %+v", result)
	}
}

func TestAllocateNoRelation(t *testing.T) {
	f := newFixture(t)
	definition := catalog.TypeDefinition{
		Name:        "Motel Night",
		Permissions: schema.Permissions{Allocators: []schema.Grant{{Kind: "role", ID: "case_manager"}}},
	}
	resourceType, err := f.catalog.CreateType(context.Background(), testRoom, definition, "org", supervisor)
	if err != nil {
		t.Fatalf("CreateType: %v", err)
	}

	result, err := f.engine.Allocate(context.Background(), testRoom, Request{
		CaseID: testCase, TypeID: resourceType.ID, Quantity: 1, Actor: caseworker,
	})
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if result.Valid || result.Violations[0].Code != ViolationNoRelation {
		t.Errorf("result = %+v", result)
	}
}

func TestAllocateInfiniteType(t *testing.T) {
	f := newFixture(t)
	resourceType, relation := f.seedType(t, func(d *catalog.TypeDefinition) {
		d.Name = "Crisis Hotline Referral"
		d.Infinite = true
	})

	allocation := f.mustAllocate(t, resourceType.ID, 500)
	if allocation.Quantity != 500 {
		t.Errorf("quantity = %d", allocation.Quantity)
	}
	fetched, err := f.catalog.GetRelation(context.Background(), testRoom, relation.ID)
	if err != nil {
		t.Fatalf("GetRelation: %v", err)
	}
	if !fetched.Infinite() {
		t.Error("infinite relation lost its sentinel capacity")
	}
}

func TestAllocatePerishableSetsExpiry(t *testing.T) {
	f := newFixture(t)
	resourceType, _ := f.seedType(t, func(d *catalog.TypeDefinition) {
		d.Name = "Food Box"
		d.Perishable = true
		d.TTLDays = 30
	})

	allocation := f.mustAllocate(t, resourceType.ID, 1)
	want := testEpoch.Add(30 * 24 * time.Hour).UnixMilli()
	if allocation.ExpiresAt != want {
		t.Errorf("expires_at = %d, want %d", allocation.ExpiresAt, want)
	}
}

func TestRecordEventReturnedRestoresInventory(t *testing.T) {
	f := newFixture(t)
	resourceType, relation := f.seedType(t, nil)
	allocation := f.mustAllocate(t, resourceType.ID, 3)

	f.clock.Advance(time.Hour)
	settled, err := f.engine.RecordEvent(context.Background(), testRoom, allocation.ID, schema.AllocationStatusReturned, caseworker)
	if err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if settled.Status != schema.AllocationStatusReturned {
		t.Errorf("status = %q", settled.Status)
	}
	if settled.SettledAt != testEpoch.Add(time.Hour).UnixMilli() {
		t.Errorf("settled_at = %d", settled.SettledAt)
	}
	if got := f.available(t, relation.ID); got != 10 {
		t.Errorf("available after return = %d, want 10", got)
	}
}

func TestRecordEventReturnSettlesBeforeRestore(t *testing.T) {
	f := newFixture(t)
	resourceType, relation := f.seedType(t, nil)
	allocation := f.mustAllocate(t, resourceType.ID, 3)

	// The relation write (the restore) fails; the settlement must
	// still commit.
	f.session.failState = func(eventType ref.EventType, _ string) error {
		if eventType == schema.EventTypeRelation {
			return &messaging.MatrixError{Code: messaging.ErrCodeUnknown, Message: "gateway timeout", StatusCode: 504}
		}
		return nil
	}

	settled, err := f.engine.RecordEvent(context.Background(), testRoom, allocation.ID, schema.AllocationStatusReturned, caseworker)
	if err != nil {
		t.Fatalf("return must settle despite restore failure, got %v", err)
	}
	if settled.Status != schema.AllocationStatusReturned {
		t.Errorf("status = %q", settled.Status)
	}
	if got := f.available(t, relation.ID); got != 7 {
		t.Errorf("available = %d, want 7 (restore failed)", got)
	}

	// With the allocation already settled, a retry is rejected and
	// cannot restore on top of a repaired restock.
	f.session.failState = nil
	_, err = f.engine.RecordEvent(context.Background(), testRoom, allocation.ID, schema.AllocationStatusReturned, caseworker)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError on retry, got %v", err)
	}
	if got := f.available(t, relation.ID); got != 7 {
		t.Errorf("available after rejected retry = %d, want 7", got)
	}
}

func TestRecordEventConsumedKeepsInventoryDown(t *testing.T) {
	f := newFixture(t)
	resourceType, relation := f.seedType(t, nil)
	allocation := f.mustAllocate(t, resourceType.ID, 3)

	if _, err := f.engine.RecordEvent(context.Background(), testRoom, allocation.ID, schema.AllocationStatusConsumed, caseworker); err != nil {
		t.Fatalf("RecordEvent: %v", err)
	}
	if got := f.available(t, relation.ID); got != 7 {
		t.Errorf("available after consumption = %d, want 7", got)
	}
}

func TestRecordEventSettlementIsTerminal(t *testing.T) {
	f := newFixture(t)
	resourceType, relation := f.seedType(t, nil)
	allocation := f.mustAllocate(t, resourceType.ID, 3)

	if _, err := f.engine.RecordEvent(context.Background(), testRoom, allocation.ID, schema.AllocationStatusReturned, caseworker); err != nil {
		t.Fatalf("first RecordEvent: %v", err)
	}
	_, err := f.engine.RecordEvent(context.Background(), testRoom, allocation.ID, schema.AllocationStatusReturned, caseworker)
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.From != schema.AllocationStatusReturned {
		t.Errorf("from = %q", invalid.From)
	}
	// A double return must not restore twice.
	if got := f.available(t, relation.ID); got != 10 {
		t.Errorf("available = %d, want 10", got)
	}
}

func TestRecordEventRevokedRequiresControl(t *testing.T) {
	f := newFixture(t)
	resourceType, _ := f.seedType(t, nil)
	allocation := f.mustAllocate(t, resourceType.ID, 3)

	_, err := f.engine.RecordEvent(context.Background(), testRoom, allocation.ID, schema.AllocationStatusRevoked, caseworker)
	var denied *catalog.PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected PermissionDeniedError, got %v", err)
	}

	settled, err := f.engine.RecordEvent(context.Background(), testRoom, allocation.ID, schema.AllocationStatusRevoked, supervisor)
	if err != nil {
		t.Fatalf("supervisor RecordEvent: %v", err)
	}
	if settled.Status != schema.AllocationStatusRevoked {
		t.Errorf("status = %q", settled.Status)
	}
}

func TestRecordEventRejectsNonSettlementStatus(t *testing.T) {
	f := newFixture(t)
	resourceType, _ := f.seedType(t, nil)
	allocation := f.mustAllocate(t, resourceType.ID, 1)

	if _, err := f.engine.RecordEvent(context.Background(), testRoom, allocation.ID, "active", caseworker); err == nil {
		t.Fatal("re-activating an allocation must fail")
	}
}

func TestListAllocationsFiltersByCase(t *testing.T) {
	f := newFixture(t)
	resourceType, _ := f.seedType(t, nil)
	f.mustAllocate(t, resourceType.ID, 1)

	otherCase := ref.MustParseRoomID("!case99:local")
	result, err := f.engine.Allocate(context.Background(), testRoom, Request{
		CaseID: otherCase, TypeID: resourceType.ID, Quantity: 2, Actor: caseworker,
	})
	if err != nil || !result.Valid {
		t.Fatalf("Allocate: %v %+v", err, result)
	}

	allocations, err := f.engine.ListAllocations(context.Background(), testRoom, testCase)
	if err != nil {
		t.Fatalf("ListAllocations: %v", err)
	}
	if len(allocations) != 1 || allocations[0].CaseID != testCase {
		t.Errorf("ListAllocations = %+v", allocations)
	}

	all, err := f.engine.ListAllocations(context.Background(), testRoom, ref.RoomID{})
	if err != nil {
		t.Fatalf("ListAllocations all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 allocations, got %d", len(all))
	}
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	perishable, _ := f.seedType(t, func(d *catalog.TypeDefinition) {
		d.Name = "Food Box"
		d.Perishable = true
		d.TTLDays = 7
	})
	durable, durableRelation := f.seedType(t, func(d *catalog.TypeDefinition) {
		d.Name = "Blanket"
	})

	expiring := f.mustAllocate(t, perishable.ID, 1)
	f.mustAllocate(t, durable.ID, 1)

	// Nothing has expired yet.
	swept, err := f.engine.SweepExpired(context.Background(), testRoom, supervisor)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if len(swept) != 0 {
		t.Fatalf("premature sweep: %+v", swept)
	}

	f.clock.Advance(8 * 24 * time.Hour)
	swept, err = f.engine.SweepExpired(context.Background(), testRoom, supervisor)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if len(swept) != 1 || swept[0].ID != expiring.ID {
		t.Fatalf("swept = %+v, want only %s", swept, expiring.ID)
	}

	fetched, err := f.engine.GetAllocation(context.Background(), testRoom, expiring.ID)
	if err != nil {
		t.Fatalf("GetAllocation: %v", err)
	}
	if fetched.Status != schema.AllocationStatusExpired {
		t.Errorf("status = %q, want expired", fetched.Status)
	}
	// Expired stock stays drawn down.
	if got := f.available(t, durableRelation.ID); got != 9 {
		t.Errorf("durable relation available = %d, want 9", got)
	}

	// A second sweep finds nothing: the expired allocation is settled.
	swept, err = f.engine.SweepExpired(context.Background(), testRoom, supervisor)
	if err != nil {
		t.Fatalf("second SweepExpired: %v", err)
	}
	if len(swept) != 0 {
		t.Errorf("second sweep touched %d allocations", len(swept))
	}
}
