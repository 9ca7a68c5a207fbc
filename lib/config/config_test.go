// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}

	if cfg.Paths.Root == "" {
		t.Error("expected a default root path")
	}

	if cfg.Index.Path != filepath.Join(cfg.Paths.Root, "index.db") {
		t.Errorf("expected index path under root, got %s", cfg.Index.Path)
	}
}

func TestLoad_RequiresDocketConfig(t *testing.T) {
	origConfig := os.Getenv("DOCKET_CONFIG")
	defer os.Setenv("DOCKET_CONFIG", origConfig)

	os.Unsetenv("DOCKET_CONFIG")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when DOCKET_CONFIG not set, got nil")
	}

	expectedMsg := "DOCKET_CONFIG environment variable not set"
	if err.Error()[:len(expectedMsg)] != expectedMsg {
		t.Errorf("expected error message to start with %q, got %q", expectedMsg, err.Error())
	}
}

func TestLoad_WithDocketConfig(t *testing.T) {
	origConfig := os.Getenv("DOCKET_CONFIG")
	defer os.Setenv("DOCKET_CONFIG", origConfig)

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docket.yaml")

	configContent := `
environment: staging
homeserver:
  url: https://matrix.test
org:
  room: "#org/acme:test"
paths:
  root: /test/root
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	os.Setenv("DOCKET_CONFIG", configPath)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}

	if cfg.Paths.Root != "/test/root" {
		t.Errorf("expected root=/test/root, got %s", cfg.Paths.Root)
	}

	if cfg.Org.Room != "#org/acme:test" {
		t.Errorf("expected org room, got %s", cfg.Org.Room)
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docket.yaml")

	configContent := `
environment: staging

homeserver:
  url: https://matrix.custom
  session_file: /custom/session.json

org:
  room: "!orgroom:custom"
  role: supervisor

paths:
  root: /custom/root

index:
  path: /custom/index.db
  pool_size: 2
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}

	if cfg.Homeserver.URL != "https://matrix.custom" {
		t.Errorf("expected homeserver url, got %s", cfg.Homeserver.URL)
	}

	if cfg.Homeserver.SessionFile != "/custom/session.json" {
		t.Errorf("expected session file, got %s", cfg.Homeserver.SessionFile)
	}

	if cfg.Org.Role != "supervisor" {
		t.Errorf("expected role=supervisor, got %s", cfg.Org.Role)
	}

	if cfg.Index.PoolSize != 2 {
		t.Errorf("expected pool_size=2, got %d", cfg.Index.PoolSize)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docket.yaml")

	configContent := `
environment: production

homeserver:
  url: https://matrix.dev

org:
  room: "!dev:local"

paths:
  root: /default/root

production:
  homeserver:
    url: https://matrix.prod
  org:
    room: "!prod:local"
  paths:
    root: /prod/root
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Homeserver.URL != "https://matrix.prod" {
		t.Errorf("expected prod homeserver, got %s", cfg.Homeserver.URL)
	}

	if cfg.Org.Room != "!prod:local" {
		t.Errorf("expected prod org room, got %s", cfg.Org.Room)
	}

	if cfg.Paths.Root != "/prod/root" {
		t.Errorf("expected root=/prod/root, got %s", cfg.Paths.Root)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	// The config file is the single source of truth; environment
	// variables must not override its values.
	origRoot := os.Getenv("DOCKET_ROOT")
	origEnv := os.Getenv("DOCKET_ENVIRONMENT")
	defer func() {
		os.Setenv("DOCKET_ROOT", origRoot)
		os.Setenv("DOCKET_ENVIRONMENT", origEnv)
	}()

	os.Setenv("DOCKET_ROOT", "/env/root")
	os.Setenv("DOCKET_ENVIRONMENT", "staging")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docket.yaml")

	configContent := `
environment: development
homeserver:
  url: https://matrix.file
paths:
  root: /file/root
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Environment != Development {
		t.Errorf("expected environment=development from file, got %s", cfg.Environment)
	}

	if cfg.Paths.Root != "/file/root" {
		t.Errorf("expected root=/file/root from file, got %s", cfg.Paths.Root)
	}
}

func TestVariableExpansion(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "docket.yaml")

	configContent := `
environment: development
homeserver:
  url: https://matrix.test
  session_file: ${DOCKET_ROOT}/session.json
paths:
  root: /data/docket
index:
  path: ${DOCKET_ROOT}/index.db
`

	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Homeserver.SessionFile != "/data/docket/session.json" {
		t.Errorf("session_file = %s", cfg.Homeserver.SessionFile)
	}
	if cfg.Index.Path != "/data/docket/index.db" {
		t.Errorf("index path = %s", cfg.Index.Path)
	}
}

func TestExpandVars(t *testing.T) {
	tests := []struct {
		input    string
		vars     map[string]string
		expected string
	}{
		{
			input:    "${HOME}/docket",
			vars:     map[string]string{"HOME": "/home/user"},
			expected: "/home/user/docket",
		},
		{
			input:    "${MISSING:-default}",
			vars:     map[string]string{},
			expected: "default",
		},
		{
			input:    "${PRESENT:-default}",
			vars:     map[string]string{"PRESENT": "value"},
			expected: "value",
		},
		{
			input:    "${A}/${B}",
			vars:     map[string]string{"A": "first", "B": "second"},
			expected: "first/second",
		},
		{
			input:    "no variables here",
			vars:     map[string]string{},
			expected: "no variables here",
		},
	}

	for _, tt := range tests {
		result := expandVars(tt.input, tt.vars)
		if result != tt.expected {
			t.Errorf("expandVars(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Homeserver.URL = "https://matrix.test"
		cfg.Org.Room = "!org:test"
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid environment",
			modify: func(c *Config) {
				c.Environment = "invalid"
			},
			wantErr: true,
		},
		{
			name: "missing homeserver url",
			modify: func(c *Config) {
				c.Homeserver.URL = ""
			},
			wantErr: true,
		},
		{
			name: "missing org room",
			modify: func(c *Config) {
				c.Org.Room = ""
			},
			wantErr: true,
		},
		{
			name: "empty root path",
			modify: func(c *Config) {
				c.Paths.Root = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnsurePaths(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := Default()
	cfg.Paths.Root = filepath.Join(tmpDir, "docket")
	cfg.Paths.State = filepath.Join(cfg.Paths.Root, "state")
	cfg.Homeserver.SessionFile = filepath.Join(cfg.Paths.Root, "session.json")
	cfg.Index.Path = filepath.Join(cfg.Paths.Root, "index.db")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths failed: %v", err)
	}

	for _, path := range []string{cfg.Paths.Root, cfg.Paths.State} {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("path %s not created: %v", path, err)
			continue
		}
		if !info.IsDir() {
			t.Errorf("path %s is not a directory", path)
		}
	}
}
