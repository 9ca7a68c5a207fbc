// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/docket-foundation/docket/lib/ability"
	"github.com/docket-foundation/docket/lib/allocation"
	"github.com/docket-foundation/docket/lib/assignment"
	"github.com/docket-foundation/docket/lib/catalog"
	"github.com/docket-foundation/docket/lib/config"
	"github.com/docket-foundation/docket/lib/ledger"
	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
	"github.com/docket-foundation/docket/messaging"
)

// ConnectionConfig holds the shared flags for connecting to a Docket
// deployment: the config file and optional overrides for the org room
// and acting role. Embed it in a command's params struct; [BindFlags]
// calls AddFlags via the [FlagBinder] interface.
//
// Usage pattern:
//
//	type myParams struct {
//	    cli.ConnectionConfig
//	}
//	// In Run:
//	conn, err := params.Connect(ctx, logger)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
type ConnectionConfig struct {
	ConfigPath string
	OrgRoom    string
	Role       string
}

// AddFlags registers --config, --org, and --role on the given flag set.
func (c *ConnectionConfig) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&c.ConfigPath, "config", "", "path to docket.yaml (default: $DOCKET_CONFIG)")
	flagSet.StringVar(&c.OrgRoom, "org", "", "org room ID or alias (overrides config)")
	flagSet.StringVar(&c.Role, "role", "", "roster role to act under (overrides roster lookup)")
}

// LoadConfig loads the configuration from --config or DOCKET_CONFIG.
func (c *ConnectionConfig) LoadConfig() (*config.Config, error) {
	if c.ConfigPath != "" {
		return config.LoadFile(c.ConfigPath)
	}
	return config.Load()
}

// Connection is an authenticated connection to a Docket deployment,
// with the governance services constructed over it. Close when done.
type Connection struct {
	Session *messaging.DirectSession
	Config  *config.Config

	// OrgRoom is the resolved org room ID (aliases resolved at connect).
	OrgRoom ref.RoomID

	// Actor is the operator's identity for permission checks: the
	// session's user ID and their roster role in the org room.
	Actor ability.Actor

	Ledger      *ledger.Ledger
	Catalog     *catalog.Catalog
	Allocations *allocation.Engine
	Assignments *assignment.Service
}

// Connect loads the config, the saved operator session, and builds an
// authenticated [Connection]. The org room is taken from --org when
// set, else from the config; aliases are resolved. The actor's role
// comes from --role, else the org room's roster entry for the
// operator, else the config's org.role.
func (c *ConnectionConfig) Connect(ctx context.Context, logger *slog.Logger) (*Connection, error) {
	cfg, err := c.LoadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	sessionPath := SessionFilePath(cfg.Homeserver.SessionFile)
	saved, err := LoadSessionFrom(sessionPath)
	if err != nil {
		return nil, err
	}

	userID, err := ref.ParseUserID(saved.UserID)
	if err != nil {
		return nil, fmt.Errorf("session file %s: %w", sessionPath, err)
	}

	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: saved.Homeserver,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create matrix client: %w", err)
	}
	session, err := client.SessionFromToken(userID, saved.AccessToken)
	if err != nil {
		return nil, err
	}

	conn := &Connection{Session: session, Config: cfg}

	orgRef := c.OrgRoom
	if orgRef == "" {
		orgRef = cfg.Org.Room
	}
	conn.OrgRoom, err = ResolveRoom(ctx, session, orgRef)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("resolve org room %q: %w", orgRef, err)
	}

	role := c.Role
	if role == "" {
		role = rosterRole(ctx, session, conn.OrgRoom, userID)
	}
	if role == "" {
		role = cfg.Org.Role
	}
	conn.Actor = ability.Actor{UserID: userID, Role: role}

	conn.Ledger, err = ledger.New(ledger.Config{Session: session, Logger: logger})
	if err != nil {
		session.Close()
		return nil, err
	}
	conn.Catalog, err = catalog.New(catalog.Config{Session: session, Ledger: conn.Ledger, Logger: logger})
	if err != nil {
		session.Close()
		return nil, err
	}
	conn.Allocations, err = allocation.New(allocation.Config{
		Session: session,
		Catalog: conn.Catalog,
		Ledger:  conn.Ledger,
		Logger:  logger,
	})
	if err != nil {
		session.Close()
		return nil, err
	}
	conn.Assignments, err = assignment.New(assignment.Config{Session: session, Ledger: conn.Ledger, Logger: logger})
	if err != nil {
		session.Close()
		return nil, err
	}

	return conn, nil
}

// Close releases the connection's resources.
func (c *Connection) Close() {
	c.Session.Close()
}

// ResolveRoom parses raw as a room ID or resolves it as an alias.
func ResolveRoom(ctx context.Context, session *messaging.DirectSession, raw string) (ref.RoomID, error) {
	if raw == "" {
		return ref.RoomID{}, fmt.Errorf("no org room configured (set org.room or pass --org)")
	}
	if strings.HasPrefix(raw, "#") {
		alias, err := ref.ParseRoomAlias(raw)
		if err != nil {
			return ref.RoomID{}, err
		}
		return session.ResolveAlias(ctx, alias)
	}
	return ref.ParseRoomID(raw)
}

// rosterRole reads the operator's roster entry from the org room.
// Returns "" when the operator has no entry; the caller falls back to
// the configured role.
func rosterRole(ctx context.Context, session *messaging.DirectSession, orgRoom ref.RoomID, userID ref.UserID) string {
	raw, err := session.GetStateEvent(ctx, orgRoom, schema.EventTypeRoster, userID.String())
	if err != nil {
		return ""
	}
	var entry schema.RosterContent
	if err := json.Unmarshal(raw, &entry); err != nil {
		return ""
	}
	return entry.Role
}
