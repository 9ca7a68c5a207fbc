// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/docket-foundation/docket/lib/secret"
)

// OperatorSession holds the operator's Matrix authentication state.
// Stored at the path configured by homeserver.session_file (or
// DOCKET_SESSION_FILE) and loaded automatically by commands that
// require authentication. Analogous to SSH keys — set up once via
// "docket login", then transparent.
type OperatorSession struct {
	// UserID is the operator's full Matrix user ID
	// (e.g., "@morgan:docket.example").
	UserID string `json:"user_id"`

	// AccessToken is the Matrix access token proving the operator's
	// identity.
	AccessToken string `json:"access_token"`

	// Homeserver is the base URL of the Matrix homeserver. Included so
	// the session file is self-contained: a command can reconnect
	// without consulting the config it was created under.
	Homeserver string `json:"homeserver"`
}

// SessionFilePath returns the path to the operator's session file.
// The DOCKET_SESSION_FILE environment variable wins; otherwise the
// configured path is used.
func SessionFilePath(configured string) string {
	if envPath := os.Getenv("DOCKET_SESSION_FILE"); envPath != "" {
		return envPath
	}
	return configured
}

// LoadSessionFrom reads an operator session from a specific file path.
// Returns a clear error message directing the user to "docket login"
// if no session exists.
func LoadSessionFrom(path string) (*OperatorSession, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no Docket session found at %s — run \"docket login\" first", path)
		}
		return nil, fmt.Errorf("reading session file %s: %w", path, err)
	}

	var session OperatorSession
	if err := json.Unmarshal(data, &session); err != nil {
		secret.Zero(data)
		return nil, fmt.Errorf("parsing session file %s: %w", path, err)
	}
	secret.Zero(data)

	if session.UserID == "" {
		return nil, fmt.Errorf("session file %s has no user_id", path)
	}
	if session.AccessToken == "" {
		return nil, fmt.Errorf("session file %s has no access_token", path)
	}
	if session.Homeserver == "" {
		return nil, fmt.Errorf("session file %s has no homeserver", path)
	}

	return &session, nil
}

// SaveSessionTo writes an operator session to a specific file path.
// Creates the parent directory with mode 0700 if it doesn't exist.
// The session file is written with mode 0600 (owner-only read/write)
// since it contains an access token.
func SaveSessionTo(session *OperatorSession, path string) error {
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}
	data = append(data, '\n')

	directory := filepath.Dir(path)
	if err := os.MkdirAll(directory, 0700); err != nil {
		secret.Zero(data)
		return fmt.Errorf("creating session directory %s: %w", directory, err)
	}

	writeError := os.WriteFile(path, data, 0600)
	secret.Zero(data)
	if writeError != nil {
		return fmt.Errorf("writing session file %s: %w", path, writeError)
	}

	return nil
}
