// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"

	"github.com/docket-foundation/docket/lib/ref"
)

func TestDeterministicEncoding(t *testing.T) {
	// Map iteration order is randomized in Go; deterministic encoding
	// must produce identical bytes regardless.
	value := map[string]any{
		"quantity": 3,
		"case":     "!ab12cd:docket.local",
		"actor":    "@casey:docket.local",
		"notes":    "bus voucher for intake appointment",
	}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for range 20 {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatal("deterministic encoding produced different bytes for the same value")
		}
	}
}

func TestTextMarshalerTypes(t *testing.T) {
	type record struct {
		Room   ref.RoomID     `json:"room"`
		Actor  ref.UserID     `json:"actor"`
		Target ref.TargetPath `json:"target"`
	}
	original := record{
		Room:   ref.MustParseRoomID("!org:docket.local"),
		Actor:  ref.MustParseUserID("@casey:docket.local"),
		Target: ref.MustParseTargetPath("resource/rst-9f2ac4d1"),
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded record
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded != original {
		t.Errorf("round trip: got %+v, want %+v", decoded, original)
	}

	// A ref type encoded as an empty map instead of a text string
	// would decode to the zero value.
	if decoded.Room.IsZero() || decoded.Actor.IsZero() || decoded.Target.IsZero() {
		t.Error("ref types lost identity through CBOR round trip")
	}
}

func TestDefaultMapType(t *testing.T) {
	data, err := Marshal(map[string]any{"outer": map[string]any{"inner": "value"}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	outer, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded to %T, want map[string]any", decoded)
	}
	if _, ok := outer["outer"].(map[string]any); !ok {
		t.Fatalf("nested value decoded to %T, want map[string]any", outer["outer"])
	}
}
