// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for Docket commands.
type Config struct {
	// Environment identifies the deployment type (development,
	// staging, production).
	Environment Environment `yaml:"environment"`

	// Homeserver configures the Matrix connection.
	Homeserver HomeserverConfig `yaml:"homeserver"`

	// Org configures the organization the command operates in.
	Org OrgConfig `yaml:"org"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Index configures the local SQLite read model.
	Index IndexConfig `yaml:"index"`

	// Per-environment overrides, applied after the base config is
	// loaded when Environment matches the section name.
	Development *Overrides `yaml:"development,omitempty"`
	Staging     *Overrides `yaml:"staging,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains fields that can be overridden per environment.
type Overrides struct {
	Homeserver *HomeserverConfig `yaml:"homeserver,omitempty"`
	Org        *OrgConfig        `yaml:"org,omitempty"`
	Paths      *PathsConfig      `yaml:"paths,omitempty"`
	Index      *IndexConfig      `yaml:"index,omitempty"`
}

// HomeserverConfig configures the Matrix connection.
type HomeserverConfig struct {
	// URL is the homeserver base URL (e.g., "https://matrix.docket.example").
	URL string `yaml:"url"`

	// SessionFile is where `docket login` stores the access token and
	// where other commands read it from.
	// Default: ${DOCKET_ROOT}/session.json
	SessionFile string `yaml:"session_file"`
}

// OrgConfig configures the organization a command operates in.
type OrgConfig struct {
	// Room is the org room, as a room ID ("!abc:server") or alias
	// ("#org/acme:server"). Commands resolve aliases at startup.
	Room string `yaml:"room"`

	// Role is the roster role the operator acts in when one is not
	// given on the command line.
	Role string `yaml:"role"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for Docket data.
	// Default: ~/.cache/docket
	Root string `yaml:"root"`

	// State is where runtime state (sync positions, caches) is stored.
	State string `yaml:"state"`
}

// IndexConfig configures the local SQLite read model.
type IndexConfig struct {
	// Path is the index database file.
	// Default: ${DOCKET_ROOT}/index.db
	Path string `yaml:"path"`

	// PoolSize is the SQLite connection pool size. Zero uses the
	// sqlitepool default.
	PoolSize int `yaml:"pool_size"`
}

// Default returns the default configuration. These defaults ensure all
// fields have sensible values before the config file is merged in; the
// file itself remains required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "docket")

	return &Config{
		Environment: Development,
		Homeserver: HomeserverConfig{
			SessionFile: filepath.Join(defaultRoot, "session.json"),
		},
		Paths: PathsConfig{
			Root:  defaultRoot,
			State: filepath.Join(defaultRoot, "state"),
		},
		Index: IndexConfig{
			Path: filepath.Join(defaultRoot, "index.db"),
		},
	}
}

// Load loads configuration from the DOCKET_CONFIG environment
// variable. There are no fallbacks: if DOCKET_CONFIG is not set, this
// fails.
func Load() (*Config, error) {
	configPath := os.Getenv("DOCKET_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("DOCKET_CONFIG environment variable not set; " +
			"set it to the path of your docket.yaml config file, or use --config flag")
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
//
// The config file is the single source of truth. Environment variables
// do not override config values; the only expansion performed is
// ${HOME} and similar path variables for portability.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()

	return cfg, nil
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}

	if overrides == nil {
		return
	}

	if overrides.Homeserver != nil {
		if overrides.Homeserver.URL != "" {
			c.Homeserver.URL = overrides.Homeserver.URL
		}
		if overrides.Homeserver.SessionFile != "" {
			c.Homeserver.SessionFile = overrides.Homeserver.SessionFile
		}
	}

	if overrides.Org != nil {
		if overrides.Org.Room != "" {
			c.Org.Room = overrides.Org.Room
		}
		if overrides.Org.Role != "" {
			c.Org.Role = overrides.Org.Role
		}
	}

	if overrides.Paths != nil {
		if overrides.Paths.Root != "" {
			c.Paths.Root = overrides.Paths.Root
		}
		if overrides.Paths.State != "" {
			c.Paths.State = overrides.Paths.State
		}
	}

	if overrides.Index != nil {
		if overrides.Index.Path != "" {
			c.Index.Path = overrides.Index.Path
		}
		if overrides.Index.PoolSize != 0 {
			c.Index.PoolSize = overrides.Index.PoolSize
		}
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"DOCKET_ROOT": c.Paths.Root,
		"HOME":        os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["DOCKET_ROOT"] = c.Paths.Root // Update for dependent paths.

	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Homeserver.SessionFile = expandVars(c.Homeserver.SessionFile, vars)
	c.Index.Path = expandVars(c.Index.Path, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Check provided vars first, then environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	if c.Homeserver.URL == "" {
		errs = append(errs, fmt.Errorf("homeserver.url is required"))
	}

	if c.Org.Room == "" {
		errs = append(errs, fmt.Errorf("org.room is required"))
	}

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates all configured directories if they don't exist.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.State,
		filepath.Dir(c.Homeserver.SessionFile),
		filepath.Dir(c.Index.Path),
	}

	for _, path := range paths {
		if path == "" || path == "." {
			continue
		}
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
