// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/docket-foundation/docket/lib/ref"
)

// fakeStateSession records state writes and serves canned reads.
type fakeStateSession struct {
	content json.RawMessage
	readErr error
	written any
}

func (f *fakeStateSession) GetStateEvent(_ context.Context, _ ref.RoomID, _ ref.EventType, _ string) (json.RawMessage, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.content, nil
}

func (f *fakeStateSession) SendStateEvent(_ context.Context, _ ref.RoomID, _ ref.EventType, _ string, content any) (ref.EventID, error) {
	f.written = content
	return ref.MustParseEventID("$pl1:local"), nil
}

func TestUserLevel(t *testing.T) {
	levelFifty := 50
	powerLevels := PowerLevels{
		Users:        map[string]int{"@admin:local": 100},
		UsersDefault: &levelFifty,
	}

	if got := powerLevels.UserLevel("@admin:local"); got != 100 {
		t.Errorf("explicit user level = %d, want 100", got)
	}
	if got := powerLevels.UserLevel("@other:local"); got != 50 {
		t.Errorf("default user level = %d, want 50", got)
	}

	empty := PowerLevels{}
	if got := empty.UserLevel("@anyone:local"); got != 0 {
		t.Errorf("spec default user level = %d, want 0", got)
	}
}

func TestGrantPowerLevels(t *testing.T) {
	session := &fakeStateSession{
		content: json.RawMessage(`{"users":{"@admin:local":100},"users_default":0}`),
	}
	roomID := ref.MustParseRoomID("!org1:local")

	err := GrantPowerLevels(context.Background(), session, roomID, PowerLevelGrants{
		Users: map[ref.UserID]int{
			ref.MustParseUserID("@morgan:local"): 50,
		},
		Events: map[ref.EventType]int{
			EventTypeResourceType: 50,
			EventTypeRelation:     50,
		},
	})
	if err != nil {
		t.Fatalf("GrantPowerLevels: %v", err)
	}

	written, ok := session.written.(PowerLevels)
	if !ok {
		t.Fatalf("written content has type %T", session.written)
	}
	if written.Users["@admin:local"] != 100 {
		t.Error("existing user level was dropped")
	}
	if written.Users["@morgan:local"] != 50 {
		t.Error("granted user level missing")
	}
	if written.Events["m.docket.resource_type"] != 50 {
		t.Error("granted event level missing")
	}
	if written.UsersDefault == nil || *written.UsersDefault != 0 {
		t.Error("users_default not preserved")
	}
}
