// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validSession() *OperatorSession {
	return &OperatorSession{
		UserID:      "@morgan:docket.example",
		AccessToken: "syt_secret_token",
		Homeserver:  "https://matrix.docket.example",
	}
}

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	if err := SaveSessionTo(validSession(), path); err != nil {
		t.Fatalf("SaveSessionTo: %v", err)
	}

	loaded, err := LoadSessionFrom(path)
	if err != nil {
		t.Fatalf("LoadSessionFrom: %v", err)
	}
	if loaded.UserID != "@morgan:docket.example" {
		t.Errorf("UserID = %q", loaded.UserID)
	}
	if loaded.AccessToken != "syt_secret_token" {
		t.Errorf("AccessToken = %q", loaded.AccessToken)
	}
	if loaded.Homeserver != "https://matrix.docket.example" {
		t.Errorf("Homeserver = %q", loaded.Homeserver)
	}
}

func TestSessionFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := SaveSessionTo(validSession(), path); err != nil {
		t.Fatalf("SaveSessionTo: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("session file mode = %o, want 0600", perm)
	}
}

func TestLoadSessionMissingFile(t *testing.T) {
	_, err := LoadSessionFrom(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("expected error for missing session file")
	}
	if !strings.Contains(err.Error(), "docket login") {
		t.Errorf("error = %q, should direct the user to docket login", err)
	}
}

func TestLoadSessionRejectsIncomplete(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*OperatorSession)
	}{
		{"missing user", func(s *OperatorSession) { s.UserID = "" }},
		{"missing token", func(s *OperatorSession) { s.AccessToken = "" }},
		{"missing homeserver", func(s *OperatorSession) { s.Homeserver = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := validSession()
			tt.mutate(session)
			path := filepath.Join(t.TempDir(), "session.json")
			if err := SaveSessionTo(session, path); err != nil {
				t.Fatalf("SaveSessionTo: %v", err)
			}
			if _, err := LoadSessionFrom(path); err == nil {
				t.Error("expected error for incomplete session")
			}
		})
	}
}

func TestSessionFilePathEnvOverride(t *testing.T) {
	t.Setenv("DOCKET_SESSION_FILE", "/env/session.json")
	if got := SessionFilePath("/config/session.json"); got != "/env/session.json" {
		t.Errorf("SessionFilePath = %q, want env override", got)
	}

	t.Setenv("DOCKET_SESSION_FILE", "")
	if got := SessionFilePath("/config/session.json"); got != "/config/session.json" {
		t.Errorf("SessionFilePath = %q, want configured path", got)
	}
}
