// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeClock(t *testing.T) {
	initial := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	fake := Fake(initial)

	if !fake.Now().Equal(initial) {
		t.Errorf("Now() = %v, want %v", fake.Now(), initial)
	}

	fake.Advance(48 * time.Hour)
	want := initial.Add(48 * time.Hour)
	if !fake.Now().Equal(want) {
		t.Errorf("after Advance: Now() = %v, want %v", fake.Now(), want)
	}

	reset := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake.Set(reset)
	if !fake.Now().Equal(reset) {
		t.Errorf("after Set: Now() = %v, want %v", fake.Now(), reset)
	}
}

func TestRealClock(t *testing.T) {
	before := time.Now()
	now := Real().Now()
	after := time.Now()
	if now.Before(before) || now.After(after) {
		t.Errorf("Real().Now() = %v outside [%v, %v]", now, before, after)
	}
}
