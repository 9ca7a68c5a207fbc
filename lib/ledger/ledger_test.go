// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/docket-foundation/docket/lib/clock"
	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
	"github.com/docket-foundation/docket/messaging"
)

var (
	testRoom  = ref.MustParseRoomID("!org1:local")
	testActor = ref.MustParseUserID("@morgan:local")
	testPath  = ref.MustParseTargetPath("resource/rst-0a1b2c3d")
	testEpoch = time.UnixMilli(1700000000000)
)

// fakeSession is an in-memory substrate: a state map keyed by
// (type, state key) and an append-only timeline.
type fakeSession struct {
	state    map[string]json.RawMessage
	timeline []messaging.Event
	counter  int64
}

func newFakeSession() *fakeSession {
	return &fakeSession{state: make(map[string]json.RawMessage)}
}

func stateKey(eventType ref.EventType, key string) string {
	return string(eventType) + "|" + key
}

func (f *fakeSession) GetStateEvent(_ context.Context, _ ref.RoomID, eventType ref.EventType, key string) (json.RawMessage, error) {
	raw, ok := f.state[stateKey(eventType, key)]
	if !ok {
		return nil, &messaging.MatrixError{Code: messaging.ErrCodeNotFound, Message: "not found", StatusCode: 404}
	}
	return raw, nil
}

func (f *fakeSession) SendStateEvent(_ context.Context, _ ref.RoomID, eventType ref.EventType, key string, content any) (ref.EventID, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return ref.EventID{}, err
	}
	f.state[stateKey(eventType, key)] = raw
	return f.nextEventID(), nil
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
		Sender:         testActor,
		OriginServerTS: f.counter,
		Content:        decoded,
		RoomID:         roomID,
	})
	return eventID, nil
}

func (f *fakeSession) RoomMessages(_ context.Context, _ ref.RoomID, options messaging.RoomMessagesOptions) (*messaging.RoomMessagesResponse, error) {
	start := 0
	if options.From != "" {
		parsed, err := strconv.Atoi(options.From)
		if err != nil {
			return nil, err
		}
		start = parsed
	}
	// Cap the page size below what Query asks for so multi-page
	// pagination is exercised.
	limit := options.Limit
	if limit <= 0 || limit > 10 {
		limit = 10
	}
	end := start + limit
	if end > len(f.timeline) {
		end = len(f.timeline)
	}
	response := &messaging.RoomMessagesResponse{
		Start: options.From,
		Chunk: f.timeline[start:end],
	}
	if end < len(f.timeline) {
		response.End = strconv.Itoa(end)
	}
	return response, nil
}

func (f *fakeSession) nextEventID() ref.EventID {
	f.counter++
	return ref.MustParseEventID(fmt.Sprintf("$event%d:local", f.counter))
}

func newTestLedger(t *testing.T, session Session) *Ledger {
	t.Helper()
	ledger, err := New(Config{Session: session, Clock: clock.Fake(testEpoch)})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ledger
}

func TestAppendChainsProvenance(t *testing.T) {
	session := newFakeSession()
	ledger := newTestLedger(t, session)

	first, err := ledger.Append(context.Background(), testRoom, AppendRequest{
		Verb:       VerbInstantiate,
		TargetPath: testPath,
		Actor:      testActor,
		Payload:    map[string]any{"name": "Bus Voucher"},
	})
	if err != nil {
		t.Fatalf("first Append: %v", err)
	}
	if first.IsZero() {
		t.Fatal("first Append returned zero ID")
	}

	head, err := ledger.Head(context.Background(), testRoom, testPath)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if head.Head != first || head.Count != 1 {
		t.Errorf("head after first append = %+v", head)
	}

	second, err := ledger.Append(context.Background(), testRoom, AppendRequest{
		Verb:       VerbAlter,
		TargetPath: testPath,
		Actor:      testActor,
	})
	if err != nil {
		t.Fatalf("second Append: %v", err)
	}

	operations, err := ledger.Query(context.Background(), testRoom, testPath)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(operations) != 2 {
		t.Fatalf("expected 2 operations, got %d", len(operations))
	}
	if !operations[0].Prev.IsZero() {
		t.Errorf("first operation has prev %v, want zero", operations[0].Prev)
	}
	if operations[1].Prev != first {
		t.Errorf("second operation prev = %v, want %v", operations[1].Prev, first)
	}
	if operations[1].ID != second {
		t.Errorf("second operation ID = %v, want %v", operations[1].ID, second)
	}
}

func TestAppendIndependentPaths(t *testing.T) {
	session := newFakeSession()
	ledger := newTestLedger(t, session)

	otherPath := ref.MustParseTargetPath("resource/rst-11223344")
	if _, err := ledger.Append(context.Background(), testRoom, AppendRequest{
		Verb: VerbInstantiate, TargetPath: testPath, Actor: testActor,
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	operationID, err := ledger.Append(context.Background(), testRoom, AppendRequest{
		Verb: VerbInstantiate, TargetPath: otherPath, Actor: testActor,
	})
	if err != nil {
		t.Fatalf("Append other path: %v", err)
	}

	operations, err := ledger.Query(context.Background(), testRoom, otherPath)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(operations) != 1 {
		t.Fatalf("expected 1 operation on other path, got %d", len(operations))
	}
	if !operations[0].Prev.IsZero() {
		t.Error("operation on a fresh path must not link another path's head")
	}
	if operations[0].ID != operationID {
		t.Errorf("operation ID = %v, want %v", operations[0].ID, operationID)
	}
}

func TestAppendRejectsUnknownVerb(t *testing.T) {
	session := newFakeSession()
	ledger := newTestLedger(t, session)

	_, err := ledger.Append(context.Background(), testRoom, AppendRequest{
		Verb:       Verb("obliterate"),
		TargetPath: testPath,
		Actor:      testActor,
	})
	if err == nil {
		t.Fatal("expected error for unknown verb")
	}
	var unknownVerb *UnknownVerbError
	if !errors.As(err, &unknownVerb) {
		t.Fatalf("expected UnknownVerbError, got %v", err)
	}
	if len(session.timeline) != 0 || len(session.state) != 0 {
		t.Error("rejected append must not write to the substrate")
	}
}

func TestOperationIDsAreContentDerived(t *testing.T) {
	request := AppendRequest{
		Verb:       VerbConnect,
		TargetPath: testPath,
		Actor:      testActor,
		Payload:    map[string]any{"quantity": 3},
	}

	// Identical records written through independent ledgers at the
	// same instant hash to the same ID.
	firstID, err := newTestLedger(t, newFakeSession()).Append(context.Background(), testRoom, request)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	secondID, err := newTestLedger(t, newFakeSession()).Append(context.Background(), testRoom, request)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if firstID != secondID {
		t.Errorf("identical records produced different IDs: %v vs %v", firstID, secondID)
	}

	// A different payload changes the ID.
	request.Payload = map[string]any{"quantity": 4}
	thirdID, err := newTestLedger(t, newFakeSession()).Append(context.Background(), testRoom, request)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if thirdID == firstID {
		t.Error("different payloads must produce different IDs")
	}
}

func TestQueryOrdersByTimestamp(t *testing.T) {
	session := newFakeSession()
	ledger := newTestLedger(t, session)

	verbs := []Verb{VerbInstantiate, VerbConnect, VerbAlter}
	for _, verb := range verbs {
		if _, err := ledger.Append(context.Background(), testRoom, AppendRequest{
			Verb: verb, TargetPath: testPath, Actor: testActor,
		}); err != nil {
			t.Fatalf("Append %s: %v", verb, err)
		}
	}

	operations, err := ledger.Query(context.Background(), testRoom, testPath)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(operations) != 3 {
		t.Fatalf("expected 3 operations, got %d", len(operations))
	}
	for i, verb := range verbs {
		if operations[i].Verb != verb.String() {
			t.Errorf("operation %d verb = %s, want %s", i, operations[i].Verb, verb)
		}
	}
	if operations[0].OriginServerTS > operations[1].OriginServerTS {
		t.Error("operations out of timestamp order")
	}
}

func TestQuerySkipsForeignAndMalformedEvents(t *testing.T) {
	session := newFakeSession()
	ledger := newTestLedger(t, session)

	if _, err := ledger.Append(context.Background(), testRoom, AppendRequest{
		Verb: VerbInstantiate, TargetPath: testPath, Actor: testActor,
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	// Chat noise in the same room.
	if _, err := session.SendEvent(context.Background(), testRoom, "m.room.message",
		map[string]any{"msgtype": "m.text", "body": "hello"}); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}
	// A malformed operation (missing verb).
	if _, err := session.SendEvent(context.Background(), testRoom, schema.EventTypeOperation,
		map[string]any{"target_path": testPath.String()}); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}

	operations, err := ledger.Query(context.Background(), testRoom, testPath)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(operations) != 1 {
		t.Errorf("expected 1 valid operation, got %d", len(operations))
	}
}

func TestQueryPaginates(t *testing.T) {
	session := newFakeSession()
	ledger := newTestLedger(t, session)

	// The fake serves at most 10 timeline events per page, so 25
	// operations force Query through three pages.
	for i := 0; i < 25; i++ {
		if _, err := ledger.Append(context.Background(), testRoom, AppendRequest{
			Verb:       VerbAlter,
			TargetPath: testPath,
			Actor:      testActor,
			Payload:    map[string]any{"sequence": i},
		}); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	operations, err := ledger.Query(context.Background(), testRoom, testPath)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(operations) != 25 {
		t.Fatalf("expected 25 operations, got %d", len(operations))
	}
	for i := 1; i < len(operations); i++ {
		if operations[i].Prev != operations[i-1].ID {
			t.Fatalf("chain broken at %d: prev %v, want %v", i, operations[i].Prev, operations[i-1].ID)
		}
	}
}

func TestVerbTriads(t *testing.T) {
	triads := map[Verb]Triad{
		VerbDesignate:   TriadExistence,
		VerbInstantiate: TriadExistence,
		VerbNull:        TriadExistence,
		VerbSegment:     TriadStructure,
		VerbConnect:     TriadStructure,
		VerbSynthesize:  TriadStructure,
		VerbAlter:       TriadInterpretation,
		VerbSuperpose:   TriadInterpretation,
		VerbReconcile:   TriadInterpretation,
	}
	for verb, want := range triads {
		if !verb.Valid() {
			t.Errorf("%s should be valid", verb)
		}
		if got := verb.Triad(); got != want {
			t.Errorf("%s triad = %s, want %s", verb, got, want)
		}
	}
	if Verb("obliterate").Valid() {
		t.Error("unknown verb should be invalid")
	}
}
