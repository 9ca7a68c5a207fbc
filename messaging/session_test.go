// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docket-foundation/docket/lib/ref"
)

// newTestSession creates a Client and DirectSession pointing at a test server.
func newTestSession(t *testing.T, handler http.Handler) (*Client, *DirectSession) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	session, err := client.SessionFromToken(ref.MustParseUserID("@test:local"), "test-token")
	if err != nil {
		t.Fatalf("SessionFromToken failed: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return client, session
}

// assertAuth verifies the request carries the expected bearer token.
func assertAuth(t *testing.T, request *http.Request, token string) {
	t.Helper()
	if got := request.Header.Get("Authorization"); got != "Bearer "+token {
		t.Errorf("unexpected Authorization header: %q", got)
	}
}

func writeJSON(writer http.ResponseWriter, value any) {
	writer.Header().Set("Content-Type", "application/json")
	json.NewEncoder(writer).Encode(value)
}

func testRoomID(t *testing.T, raw string) ref.RoomID {
	t.Helper()
	return ref.MustParseRoomID(raw)
}

func TestWhoAmI(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/_matrix/client/v3/account/whoami" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, WhoAmIResponse{UserID: ref.MustParseUserID("@test:local"), DeviceID: "DEV1"})
	}))

	userID, err := session.WhoAmI(context.Background())
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if userID.String() != "@test:local" {
		t.Errorf("unexpected user ID: %s", userID)
	}
}

func TestCreateRoom(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if request.URL.Path != "/_matrix/client/v3/createRoom" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}

		var body CreateRoomRequest
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if body.Name != "Acme Legal" {
			t.Errorf("unexpected name: %s", body.Name)
		}
		if body.Alias != "org/acme" {
			t.Errorf("unexpected alias: %s", body.Alias)
		}
		if body.Preset != "private_chat" {
			t.Errorf("unexpected preset: %s", body.Preset)
		}

		writeJSON(writer, CreateRoomResponse{RoomID: testRoomID(t, "!org1:local")})
	}))

	response, err := session.CreateRoom(context.Background(), CreateRoomRequest{
		Name:   "Acme Legal",
		Alias:  "org/acme",
		Preset: "private_chat",
	})
	if err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	if response.RoomID.String() != "!org1:local" {
		t.Errorf("unexpected room ID: %s", response.RoomID)
	}
}

func TestJoinRoom(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		// The room ID is URL-encoded in the path.
		if !strings.HasPrefix(request.URL.Path, "/_matrix/client/v3/join/") {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, map[string]string{"room_id": "!case1:local"})
	}))

	roomID, err := session.JoinRoom(context.Background(), testRoomID(t, "!case1:local"))
	if err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if roomID.String() != "!case1:local" {
		t.Errorf("unexpected room ID: %s", roomID)
	}
}

func TestInviteUser(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")

		var body InviteRequest
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode invite: %v", err)
		}
		if body.UserID.String() != "@morgan:local" {
			t.Errorf("unexpected invite target: %s", body.UserID)
		}
		writeJSON(writer, map[string]any{})
	}))

	err := session.InviteUser(context.Background(), testRoomID(t, "!case1:local"), ref.MustParseUserID("@morgan:local"))
	if err != nil {
		t.Fatalf("InviteUser failed: %v", err)
	}
}

func TestKickUser(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if !strings.HasSuffix(request.URL.Path, "/kick") {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}

		var body KickRequest
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode kick: %v", err)
		}
		if body.UserID.String() != "@morgan:local" {
			t.Errorf("unexpected kick target: %s", body.UserID)
		}
		if body.Reason != "case transferred" {
			t.Errorf("unexpected reason: %s", body.Reason)
		}
		writeJSON(writer, map[string]any{})
	}))

	err := session.KickUser(context.Background(), testRoomID(t, "!case1:local"), ref.MustParseUserID("@morgan:local"), "case transferred")
	if err != nil {
		t.Fatalf("KickUser failed: %v", err)
	}
}

func TestSendEvent(t *testing.T) {
	t.Run("idempotent PUT with transaction ID", func(t *testing.T) {
		var seenPaths []string
		_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assertAuth(t, request, "test-token")
			if request.Method != http.MethodPut {
				t.Errorf("expected PUT, got %s", request.Method)
			}
			if !strings.Contains(request.URL.Path, "/send/m.docket.operation/") {
				t.Errorf("unexpected path: %s", request.URL.Path)
			}
			seenPaths = append(seenPaths, request.URL.Path)
			writeJSON(writer, SendEventResponse{EventID: ref.MustParseEventID("$op1:local")})
		}))

		eventID, err := session.SendEvent(context.Background(), testRoomID(t, "!org1:local"),
			"m.docket.operation", map[string]any{"verb": "instantiate"})
		if err != nil {
			t.Fatalf("SendEvent failed: %v", err)
		}
		if eventID.String() != "$op1:local" {
			t.Errorf("unexpected event ID: %s", eventID)
		}

		// A second send must use a distinct transaction ID.
		if _, err := session.SendEvent(context.Background(), testRoomID(t, "!org1:local"),
			"m.docket.operation", map[string]any{"verb": "alter"}); err != nil {
			t.Fatalf("second SendEvent failed: %v", err)
		}
		if len(seenPaths) != 2 || seenPaths[0] == seenPaths[1] {
			t.Errorf("transaction IDs not unique: %v", seenPaths)
		}
	})
}

func TestSendStateEvent(t *testing.T) {
	t.Run("record write", func(t *testing.T) {
		_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assertAuth(t, request, "test-token")
			if request.Method != http.MethodPut {
				t.Errorf("expected PUT, got %s", request.Method)
			}
			if !strings.Contains(request.URL.Path, "/state/m.docket.resource_type/") {
				t.Errorf("unexpected path: %s", request.URL.Path)
			}
			writeJSON(writer, SendEventResponse{EventID: ref.MustParseEventID("$state1:local")})
		}))

		eventID, err := session.SendStateEvent(context.Background(), testRoomID(t, "!org1:local"),
			"m.docket.resource_type", "rst-0a1b2c3d", map[string]any{"name": "Bus Voucher"})
		if err != nil {
			t.Fatalf("SendStateEvent failed: %v", err)
		}
		if eventID.String() != "$state1:local" {
			t.Errorf("unexpected event ID: %s", eventID)
		}
	})

	t.Run("tombstone write sends empty object", func(t *testing.T) {
		_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			var body map[string]any
			if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode body: %v", err)
			}
			if len(body) != 0 {
				t.Errorf("tombstone body should be empty, got %v", body)
			}
			writeJSON(writer, SendEventResponse{EventID: ref.MustParseEventID("$state2:local")})
		}))

		_, err := session.SendStateEvent(context.Background(), testRoomID(t, "!org1:local"),
			"m.docket.relation", "rel-deadbeef", struct{}{})
		if err != nil {
			t.Fatalf("SendStateEvent (tombstone) failed: %v", err)
		}
	})
}

func TestGetStateEvent(t *testing.T) {
	t.Run("existing event", func(t *testing.T) {
		_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assertAuth(t, request, "test-token")
			if request.Method != http.MethodGet {
				t.Errorf("expected GET, got %s", request.Method)
			}
			writeJSON(writer, map[string]any{"name": "Bus Voucher", "capacity": 10})
		}))

		raw, err := session.GetStateEvent(context.Background(), testRoomID(t, "!org1:local"),
			"m.docket.resource_type", "rst-0a1b2c3d")
		if err != nil {
			t.Fatalf("GetStateEvent failed: %v", err)
		}

		var content struct {
			Name     string `json:"name"`
			Capacity int    `json:"capacity"`
		}
		if err := json.Unmarshal(raw, &content); err != nil {
			t.Fatalf("failed to unmarshal content: %v", err)
		}
		if content.Name != "Bus Voucher" || content.Capacity != 10 {
			t.Errorf("unexpected content: %+v", content)
		}
	})

	t.Run("missing event returns M_NOT_FOUND", func(t *testing.T) {
		_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writer.Header().Set("Content-Type", "application/json")
			writer.WriteHeader(http.StatusNotFound)
			json.NewEncoder(writer).Encode(MatrixError{
				Code:    ErrCodeNotFound,
				Message: "Event not found.",
			})
		}))

		_, err := session.GetStateEvent(context.Background(), testRoomID(t, "!org1:local"),
			"m.docket.resource_type", "rst-missing")
		if err == nil {
			t.Fatal("expected error for missing state event")
		}
		if !IsNotFound(err) {
			t.Errorf("expected M_NOT_FOUND, got: %v", err)
		}
	})
}

func TestGetRoomState(t *testing.T) {
	stateKey := "rst-0a1b2c3d"
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if !strings.HasSuffix(request.URL.Path, "/state") {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, []Event{
			{
				EventID:  ref.MustParseEventID("$state1:local"),
				Type:     "m.docket.resource_type",
				Sender:   ref.MustParseUserID("@test:local"),
				StateKey: &stateKey,
				Content:  map[string]any{"name": "Bus Voucher"},
			},
			{
				EventID:  ref.MustParseEventID("$state2:local"),
				Type:     "m.docket.relation",
				Sender:   ref.MustParseUserID("@test:local"),
				StateKey: &stateKey,
				Content:  map[string]any{},
			},
		})
	}))

	events, err := session.GetRoomState(context.Background(), testRoomID(t, "!org1:local"))
	if err != nil {
		t.Fatalf("GetRoomState failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].IsTombstone() {
		t.Error("event with content reported as tombstone")
	}
	if !events[1].IsTombstone() {
		t.Error("empty-content event not reported as tombstone")
	}
}

func TestRoomMessages(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		query := request.URL.Query()
		if query.Get("dir") != "f" {
			t.Errorf("unexpected dir: %s", query.Get("dir"))
		}
		if query.Get("limit") != "50" {
			t.Errorf("unexpected limit: %s", query.Get("limit"))
		}
		if query.Get("from") != "token-1" {
			t.Errorf("unexpected from: %s", query.Get("from"))
		}
		writeJSON(writer, RoomMessagesResponse{
			Start: "token-1",
			End:   "token-2",
			Chunk: []Event{
				{EventID: ref.MustParseEventID("$op1:local"), Type: "m.docket.operation", Sender: ref.MustParseUserID("@test:local")},
			},
		})
	}))

	response, err := session.RoomMessages(context.Background(), testRoomID(t, "!org1:local"), RoomMessagesOptions{
		From:      "token-1",
		Direction: "f",
		Limit:     50,
	})
	if err != nil {
		t.Fatalf("RoomMessages failed: %v", err)
	}
	if len(response.Chunk) != 1 {
		t.Fatalf("expected 1 event, got %d", len(response.Chunk))
	}
	if response.End != "token-2" {
		t.Errorf("unexpected end token: %s", response.End)
	}
}

func TestSync(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		query := request.URL.Query()
		if query.Get("since") != "batch-1" {
			t.Errorf("unexpected since: %s", query.Get("since"))
		}
		if query.Get("timeout") != "30000" {
			t.Errorf("unexpected timeout: %s", query.Get("timeout"))
		}
		writeJSON(writer, SyncResponse{
			NextBatch: "batch-2",
			Rooms: RoomsSection{
				Join: map[ref.RoomID]JoinedRoom{
					ref.MustParseRoomID("!org1:local"): {
						Timeline: TimelineSection{
							Events: []Event{
								{EventID: ref.MustParseEventID("$op1:local"), Type: "m.docket.operation", Sender: ref.MustParseUserID("@test:local")},
							},
						},
					},
				},
			},
		})
	}))

	response, err := session.Sync(context.Background(), SyncOptions{
		Since:      "batch-1",
		Timeout:    30000,
		SetTimeout: true,
	})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if response.NextBatch != "batch-2" {
		t.Errorf("unexpected next batch: %s", response.NextBatch)
	}
	joined, ok := response.Rooms.Join[testRoomID(t, "!org1:local")]
	if !ok {
		t.Fatal("joined room missing from sync response")
	}
	if len(joined.Timeline.Events) != 1 {
		t.Errorf("expected 1 timeline event, got %d", len(joined.Timeline.Events))
	}
}

func TestResolveAlias(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		if !strings.HasPrefix(request.URL.Path, "/_matrix/client/v3/directory/room/") {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		writeJSON(writer, ResolveAliasResponse{
			RoomID:  testRoomID(t, "!org1:local"),
			Servers: []string{"local"},
		})
	}))

	roomID, err := session.ResolveAlias(context.Background(), ref.MustParseRoomAlias("#org/acme:local"))
	if err != nil {
		t.Fatalf("ResolveAlias failed: %v", err)
	}
	if roomID.String() != "!org1:local" {
		t.Errorf("unexpected room ID: %s", roomID)
	}
}

func TestJoinedRooms(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		writeJSON(writer, JoinedRoomsResponse{
			JoinedRooms: []ref.RoomID{
				testRoomID(t, "!org1:local"),
				testRoomID(t, "!case1:local"),
			},
		})
	}))

	rooms, err := session.JoinedRooms(context.Background())
	if err != nil {
		t.Fatalf("JoinedRooms failed: %v", err)
	}
	if len(rooms) != 2 {
		t.Errorf("expected 2 rooms, got %d", len(rooms))
	}
}

func TestGetRoomMembers(t *testing.T) {
	_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assertAuth(t, request, "test-token")
		writeJSON(writer, RoomMembersResponse{
			Chunk: []RoomMemberEvent{
				{
					Type:     "m.room.member",
					StateKey: "@morgan:local",
					Sender:   ref.MustParseUserID("@test:local"),
					Content:  RoomMemberContent{Membership: "join", DisplayName: "Morgan"},
				},
				{
					Type:     "m.room.member",
					StateKey: "@riley:local",
					Sender:   ref.MustParseUserID("@test:local"),
					Content:  RoomMemberContent{Membership: "invite"},
				},
			},
		})
	}))

	members, err := session.GetRoomMembers(context.Background(), testRoomID(t, "!case1:local"))
	if err != nil {
		t.Fatalf("GetRoomMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[0].UserID.String() != "@morgan:local" || members[0].Membership != "join" {
		t.Errorf("unexpected first member: %+v", members[0])
	}
	if members[1].Membership != "invite" {
		t.Errorf("unexpected second member: %+v", members[1])
	}
}

func TestRoomWatcher(t *testing.T) {
	roomID := ref.MustParseRoomID("!org1:local")

	t.Run("waits for matching event", func(t *testing.T) {
		syncCount := 0
		_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			syncCount++
			switch syncCount {
			case 1:
				// Anchor sync: no events yet.
				writeJSON(writer, SyncResponse{NextBatch: "batch-1"})
			default:
				writeJSON(writer, SyncResponse{
					NextBatch: "batch-2",
					Rooms: RoomsSection{
						Join: map[ref.RoomID]JoinedRoom{
							roomID: {
								Timeline: TimelineSection{
									Events: []Event{
										{EventID: ref.MustParseEventID("$other:local"), Type: "m.room.message", Sender: ref.MustParseUserID("@test:local")},
										{EventID: ref.MustParseEventID("$op1:local"), Type: "m.docket.operation", Sender: ref.MustParseUserID("@test:local")},
									},
								},
							},
						},
					},
				})
			}
		}))

		watcher, err := WatchRoom(context.Background(), session, roomID, nil)
		if err != nil {
			t.Fatalf("WatchRoom failed: %v", err)
		}

		event, err := watcher.WaitForEvent(context.Background(), func(event Event) bool {
			return event.Type == "m.docket.operation"
		})
		if err != nil {
			t.Fatalf("WaitForEvent failed: %v", err)
		}
		if event.EventID.String() != "$op1:local" {
			t.Errorf("unexpected event: %s", event.EventID)
		}

		// The non-matching event stays buffered for later calls.
		event, err = watcher.WaitForEvent(context.Background(), func(event Event) bool {
			return event.Type == "m.room.message"
		})
		if err != nil {
			t.Fatalf("second WaitForEvent failed: %v", err)
		}
		if event.EventID.String() != "$other:local" {
			t.Errorf("unexpected buffered event: %s", event.EventID)
		}
	})

	t.Run("requires non-zero room ID", func(t *testing.T) {
		_, session := newTestSession(t, http.HandlerFunc(func(writer http.ResponseWriter, _ *http.Request) {
			writeJSON(writer, SyncResponse{NextBatch: "batch-1"})
		}))
		if _, err := WatchRoom(context.Background(), session, ref.RoomID{}, nil); err == nil {
			t.Fatal("expected error for zero room ID")
		}
	})
}

func TestBuildInlineFilter(t *testing.T) {
	roomID := ref.MustParseRoomID("!org1:local")

	t.Run("nil filter scopes to room", func(t *testing.T) {
		raw := buildInlineFilter(roomID, nil)
		var filter map[string]any
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			t.Fatalf("filter is not valid JSON: %v", err)
		}
		room, ok := filter["room"].(map[string]any)
		if !ok {
			t.Fatal("filter missing room section")
		}
		rooms, ok := room["rooms"].([]any)
		if !ok || len(rooms) != 1 || rooms[0] != "!org1:local" {
			t.Errorf("unexpected rooms list: %v", room["rooms"])
		}
	})

	t.Run("timeline types restriction", func(t *testing.T) {
		raw := buildInlineFilter(roomID, &SyncFilter{
			TimelineTypes: []string{"m.docket.operation"},
			ExcludeState:  true,
		})
		var filter map[string]any
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			t.Fatalf("filter is not valid JSON: %v", err)
		}
		room := filter["room"].(map[string]any)
		timeline, ok := room["timeline"].(map[string]any)
		if !ok {
			t.Fatal("filter missing timeline section")
		}
		types := timeline["types"].([]any)
		if len(types) != 1 || types[0] != "m.docket.operation" {
			t.Errorf("unexpected timeline types: %v", types)
		}
		if _, ok := room["state"]; !ok {
			t.Error("ExcludeState should emit an empty state types list")
		}
	})
}
