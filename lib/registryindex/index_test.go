// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package registryindex

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
	"github.com/docket-foundation/docket/lib/testutil"
	"github.com/docket-foundation/docket/messaging"
)

var (
	orgRoom   = ref.MustParseRoomID("!org1:local")
	otherRoom = ref.MustParseRoomID("!org2:local")
	caseRoom  = ref.MustParseRoomID("!case42:local")
	staff     = ref.MustParseUserID("@morgan:local")

	busVoucher = ref.MustParseTypeID("rst-0a1b2c3d")
	mealTicket = ref.MustParseTypeID("rst-11223344")
	relationID = ref.MustParseRelationID("rel-9f8e7d6c")
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	index, err := Open(Config{Path: filepath.Join(t.TempDir(), "index.db")})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := index.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return index
}

// stateEvent builds a state event with the content round-tripped
// through JSON into the map form /sync delivers.
func stateEvent(t *testing.T, eventType ref.EventType, stateKey string, content any) messaging.Event {
	t.Helper()
	var decoded map[string]any
	if content != nil {
		raw, err := json.Marshal(content)
		if err != nil {
			t.Fatalf("marshal content: %v", err)
		}
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("unmarshal content: %v", err)
		}
	} else {
		decoded = map[string]any{}
	}
	key := stateKey
	return messaging.Event{
		EventID:  ref.MustParseEventID("$" + stateKey + ":local"),
		Type:     eventType,
		Content:  decoded,
		StateKey: &key,
	}
}

func seedState(t *testing.T) []messaging.Event {
	t.Helper()
	return []messaging.Event{
		stateEvent(t, schema.EventTypeResourceType, busVoucher.String(), schema.ResourceTypeContent{
			ID: busVoucher, Name: "Bus Voucher", Category: "transportation", Level: "org",
		}),
		stateEvent(t, schema.EventTypeResourceType, mealTicket.String(), schema.ResourceTypeContent{
			ID: mealTicket, Name: "Meal Ticket", Category: "food", Level: "org", Perishable: true, TTLDays: 7,
		}),
		stateEvent(t, schema.EventTypeRelation, relationID.String(), schema.RelationContent{
			ID: relationID, ResourceTypeID: busVoucher, Holder: staff,
			RelationType: "holds", Capacity: 10, Available: 7,
		}),
		stateEvent(t, schema.EventTypeAllocation, "alc-00000001", schema.AllocationContent{
			ID:     ref.MustParseAllocationID("alc-00000001"),
			CaseID: caseRoom, ResourceTypeID: busVoucher, RelationID: relationID,
			Quantity: 3, Status: schema.AllocationStatusActive, AllocatedBy: staff, AllocatedAt: 1,
		}),
		stateEvent(t, schema.EventTypeAllocation, "alc-00000002", schema.AllocationContent{
			ID:     ref.MustParseAllocationID("alc-00000002"),
			CaseID: otherRoom, ResourceTypeID: busVoucher, RelationID: relationID,
			Quantity: 1, Status: schema.AllocationStatusConsumed, AllocatedBy: staff, AllocatedAt: 2,
		}),
		stateEvent(t, schema.EventTypeAssignment, caseRoom.String(), schema.AssignmentContent{
			CaseID: caseRoom, PrimaryStaff: staff, Transferable: true,
		}),
		// Noise the index must ignore.
		stateEvent(t, "m.room.member", staff.String(), map[string]any{"membership": "join"}),
	}
}

func TestRebuildAndQuery(t *testing.T) {
	index := openTestIndex(t)
	if err := index.Rebuild(context.Background(), orgRoom, seedState(t)); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	t.Run("resource types ordered by name", func(t *testing.T) {
		types, err := index.ResourceTypes(context.Background(), orgRoom)
		if err != nil {
			t.Fatalf("ResourceTypes: %v", err)
		}
		if len(types) != 2 || types[0].Name != "Bus Voucher" || types[1].Name != "Meal Ticket" {
			t.Errorf("types = %+v", types)
		}
	})

	t.Run("relations by type", func(t *testing.T) {
		relations, err := index.Relations(context.Background(), orgRoom, busVoucher)
		if err != nil {
			t.Fatalf("Relations: %v", err)
		}
		if len(relations) != 1 || relations[0].Available != 7 {
			t.Errorf("relations = %+v", relations)
		}
		none, err := index.Relations(context.Background(), orgRoom, mealTicket)
		if err != nil {
			t.Fatalf("Relations: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("unexpected relations for %s: %+v", mealTicket, none)
		}
	})

	t.Run("allocations filtered by case and status", func(t *testing.T) {
		all, err := index.Allocations(context.Background(), orgRoom, ref.RoomID{}, "")
		if err != nil {
			t.Fatalf("Allocations: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("all allocations = %+v", all)
		}
		byCase, err := index.Allocations(context.Background(), orgRoom, caseRoom, "")
		if err != nil {
			t.Fatalf("Allocations by case: %v", err)
		}
		if len(byCase) != 1 || byCase[0].Quantity != 3 {
			t.Errorf("case allocations = %+v", byCase)
		}
		active, err := index.Allocations(context.Background(), orgRoom, ref.RoomID{}, schema.AllocationStatusActive)
		if err != nil {
			t.Fatalf("Allocations by status: %v", err)
		}
		if len(active) != 1 || active[0].CaseID != caseRoom {
			t.Errorf("active allocations = %+v", active)
		}
	})

	t.Run("assignments by staff", func(t *testing.T) {
		assignments, err := index.Assignments(context.Background(), orgRoom, staff)
		if err != nil {
			t.Fatalf("Assignments: %v", err)
		}
		if len(assignments) != 1 || assignments[0].CaseID != caseRoom {
			t.Errorf("assignments = %+v", assignments)
		}
		none, err := index.Assignments(context.Background(), orgRoom, ref.MustParseUserID("@rivera:local"))
		if err != nil {
			t.Fatalf("Assignments: %v", err)
		}
		if len(none) != 0 {
			t.Errorf("unexpected assignments: %+v", none)
		}
	})
}

func TestApplyUpdatesAndTombstones(t *testing.T) {
	index := openTestIndex(t)
	if err := index.Rebuild(context.Background(), orgRoom, seedState(t)); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	// A sync delivers the relation with drawn-down stock.
	updated := stateEvent(t, schema.EventTypeRelation, relationID.String(), schema.RelationContent{
		ID: relationID, ResourceTypeID: busVoucher, Holder: staff,
		RelationType: "holds", Capacity: 10, Available: 4,
	})
	changed, err := index.Apply(context.Background(), orgRoom, &updated)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !changed {
		t.Error("relation update reported no change")
	}
	relations, err := index.Relations(context.Background(), orgRoom, busVoucher)
	if err != nil {
		t.Fatalf("Relations: %v", err)
	}
	if len(relations) != 1 || relations[0].Available != 4 {
		t.Errorf("relations = %+v", relations)
	}

	// A tombstone removes the row.
	tombstone := stateEvent(t, schema.EventTypeRelation, relationID.String(), nil)
	changed, err = index.Apply(context.Background(), orgRoom, &tombstone)
	if err != nil {
		t.Fatalf("Apply tombstone: %v", err)
	}
	if !changed {
		t.Error("tombstone reported no change")
	}
	relations, err = index.Relations(context.Background(), orgRoom, busVoucher)
	if err != nil {
		t.Fatalf("Relations: %v", err)
	}
	if len(relations) != 0 {
		t.Errorf("tombstoned relation still projected: %+v", relations)
	}
}

// scriptedSession scripts /sync for Follow: an anchor response, one
// batch carrying a state event, then blocking until the context ends.
// Only Sync is implemented; the watcher touches nothing else.
type scriptedSession struct {
	messaging.Session

	event messaging.Event
	// drained closes once the scripted batches have been consumed.
	drained chan struct{}

	mu    sync.Mutex
	calls int
	once  sync.Once
}

func (s *scriptedSession) Sync(ctx context.Context, _ messaging.SyncOptions) (*messaging.SyncResponse, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()

	switch call {
	case 1:
		return &messaging.SyncResponse{NextBatch: "s1"}, nil
	case 2:
		return &messaging.SyncResponse{
			NextBatch: "s2",
			Rooms: messaging.RoomsSection{
				Join: map[ref.RoomID]messaging.JoinedRoom{
					orgRoom: {State: messaging.StateSection{Events: []messaging.Event{s.event}}},
				},
			},
		}, nil
	default:
		s.once.Do(func() { close(s.drained) })
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func TestFollowAppliesSyncEvents(t *testing.T) {
	index := openTestIndex(t)
	if err := index.Rebuild(context.Background(), orgRoom, nil); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	id := ref.MustParseAllocationID("alc-0000beef")
	session := &scriptedSession{
		drained: make(chan struct{}),
		event: stateEvent(t, schema.EventTypeAllocation, id.String(), schema.AllocationContent{
			ID: id, CaseID: caseRoom, ResourceTypeID: busVoucher, RelationID: relationID,
			Quantity: 2, Status: schema.AllocationStatusActive, AllocatedBy: staff, AllocatedAt: 5,
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- index.Follow(ctx, session, orgRoom) }()

	testutil.RequireClosed(t, session.drained, 5*time.Second, "waiting for the scripted batches to drain")
	cancel()
	if err := testutil.RequireReceive(t, done, 5*time.Second, "Follow return"); err != nil {
		t.Fatalf("Follow after cancel: %v", err)
	}

	allocations, err := index.Allocations(context.Background(), orgRoom, caseRoom, "")
	if err != nil {
		t.Fatalf("Allocations: %v", err)
	}
	if len(allocations) != 1 || allocations[0].ID != id {
		t.Errorf("allocations = %+v, want the synced allocation", allocations)
	}
}

// The pool advertises concurrent safety; hammer it with readers while
// a sync stream applies allocation updates.
func TestConcurrentReadersDuringApply(t *testing.T) {
	index, err := Open(Config{Path: filepath.Join(t.TempDir(), "index.db"), PoolSize: 4})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := index.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	if err := index.Rebuild(context.Background(), orgRoom, seedState(t)); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	const readers = 4
	results := make(chan error, readers)
	stop := make(chan struct{})
	for range readers {
		go func() {
			for {
				select {
				case <-stop:
					results <- nil
					return
				default:
				}
				if _, err := index.ResourceTypes(context.Background(), orgRoom); err != nil {
					results <- err
					return
				}
				if _, err := index.Allocations(context.Background(), orgRoom, caseRoom, ""); err != nil {
					results <- err
					return
				}
			}
		}()
	}

	const applied = 40
	for i := range applied {
		id := ref.MustParseAllocationID(fmt.Sprintf("alc-%08x", 0x100+i))
		event := stateEvent(t, schema.EventTypeAllocation, id.String(), schema.AllocationContent{
			ID: id, CaseID: caseRoom, ResourceTypeID: busVoucher, RelationID: relationID,
			Quantity: 1, Status: schema.AllocationStatusActive, AllocatedBy: staff,
			AllocatedAt: int64(i + 10), Notes: testutil.UniqueID("intake"),
		})
		if _, err := index.Apply(context.Background(), orgRoom, &event); err != nil {
			t.Fatalf("Apply %s: %v", id, err)
		}
	}

	close(stop)
	for range readers {
		if err := testutil.RequireReceive(t, results, 5*time.Second, "reader goroutine exit"); err != nil {
			t.Fatalf("concurrent reader: %v", err)
		}
	}

	allocations, err := index.Allocations(context.Background(), orgRoom, caseRoom, "")
	if err != nil {
		t.Fatalf("Allocations: %v", err)
	}
	if len(allocations) != applied+1 {
		t.Errorf("got %d case allocations, want %d", len(allocations), applied+1)
	}
}

func TestApplyIgnoresForeignEventTypes(t *testing.T) {
	index := openTestIndex(t)
	event := stateEvent(t, "m.room.topic", "", map[string]any{"topic": "intake"})
	changed, err := index.Apply(context.Background(), orgRoom, &event)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if changed {
		t.Error("foreign event type changed the projection")
	}
}

func TestRebuildReplacesOneRoomOnly(t *testing.T) {
	index := openTestIndex(t)
	if err := index.Rebuild(context.Background(), orgRoom, seedState(t)); err != nil {
		t.Fatalf("Rebuild org: %v", err)
	}
	otherState := []messaging.Event{
		stateEvent(t, schema.EventTypeResourceType, busVoucher.String(), schema.ResourceTypeContent{
			ID: busVoucher, Name: "Bus Voucher", Level: "org",
		}),
	}
	if err := index.Rebuild(context.Background(), otherRoom, otherState); err != nil {
		t.Fatalf("Rebuild other: %v", err)
	}

	// Rebuilding the first room with a shrunken snapshot drops its old
	// rows but leaves the other room alone.
	if err := index.Rebuild(context.Background(), orgRoom, nil); err != nil {
		t.Fatalf("Rebuild empty: %v", err)
	}
	types, err := index.ResourceTypes(context.Background(), orgRoom)
	if err != nil {
		t.Fatalf("ResourceTypes: %v", err)
	}
	if len(types) != 0 {
		t.Errorf("org room still projected: %+v", types)
	}
	types, err = index.ResourceTypes(context.Background(), otherRoom)
	if err != nil {
		t.Fatalf("ResourceTypes other: %v", err)
	}
	if len(types) != 1 {
		t.Errorf("other room lost its projection: %+v", types)
	}
}
