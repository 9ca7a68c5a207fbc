// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	"github.com/docket-foundation/docket/lib/catalog"
	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
)

// --- permissions ---

type permissionsParams struct {
	cli.ConnectionConfig
	Controllers []string `flag:"controller" desc:"control grant, role:NAME or user:@ID (repeatable)"`
	Allocators  []string `flag:"allocator"  desc:"allocate grant, role:NAME or user:@ID (repeatable)"`
	Viewers     []string `flag:"viewer"     desc:"view grant, role:NAME or user:@ID (repeatable)"`
}

func permissionsCommand() *cli.Command {
	var params permissionsParams

	return &cli.Command{
		Name:    "permissions",
		Summary: "Replace a resource type's permission grants",
		Description: `Replace the grant lists on a resource type.

The given lists replace the existing ones wholesale; omitting a flag
clears that list. Empty lists fall back to the defaults (open viewing,
org_admin control and allocation). Requires control over the type.`,
		Usage: "docket resource permissions <type-id> [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one type ID is required")
			}
			typeID, err := ref.ParseTypeID(args[0])
			if err != nil {
				return cli.Validation("%s", err)
			}

			controllers, err := parseGrants(params.Controllers)
			if err != nil {
				return cli.Validation("%s", err)
			}
			allocators, err := parseGrants(params.Allocators)
			if err != nil {
				return cli.Validation("%s", err)
			}
			viewers, err := parseGrants(params.Viewers)
			if err != nil {
				return cli.Validation("%s", err)
			}

			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			permissions := schema.Permissions{
				Controllers: controllers,
				Allocators:  allocators,
				Viewers:     viewers,
			}
			if err := conn.Catalog.UpdatePermissions(ctx, conn.OrgRoom, typeID, permissions, conn.Actor); err != nil {
				return translateCatalogError(err)
			}

			logger.Info("permissions updated", "type", typeID)
			return nil
		},
	}
}

// --- replenish ---

type replenishParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
}

func replenishCommand() *cli.Command {
	var params replenishParams

	return &cli.Command{
		Name:    "replenish",
		Summary: "Reset every relation of a replenishing type to capacity",
		Description: `Run a replenishment cycle for one resource type.

Every finite relation of the type has its available stock reset to
capacity. Types that do not replenish are rejected. Requires control
over the type.`,
		Usage: "docket resource replenish <type-id> [flags]",
		Examples: []cli.Example{
			{
				Description: "Monthly voucher reset",
				Command:     "docket resource replenish rst-0a1b2c3d",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one type ID is required")
			}
			typeID, err := ref.ParseTypeID(args[0])
			if err != nil {
				return cli.Validation("%s", err)
			}

			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			reset, err := conn.Catalog.Replenish(ctx, conn.OrgRoom, typeID, conn.Actor)
			if err != nil {
				return translateCatalogError(err)
			}

			if done, err := params.EmitJSON(reset); done {
				return err
			}

			logger.Info("replenished", "type", typeID, "relations_reset", len(reset))
			return nil
		},
	}
}

// --- promote ---

type promoteParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	To    string `flag:"to"    desc:"destination room ID or alias"`
	Level string `flag:"level" desc:"level recorded on the promoted definition" default:"network"`
}

func promoteCommand() *cli.Command {
	var params promoteParams

	return &cli.Command{
		Name:    "promote",
		Summary: "Move a resource type definition to a wider room",
		Description: `Promote a resource type from the org room to a wider governance
room.

The definition is written to the destination first; only then is the
source definition tombstoned. Relations do not migrate — holders
re-establish them in the destination room. Requires control over the
type.`,
		Usage: "docket resource promote <type-id> --to ROOM [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one type ID is required")
			}
			typeID, err := ref.ParseTypeID(args[0])
			if err != nil {
				return cli.Validation("%s", err)
			}
			if params.To == "" {
				return cli.Validation("--to is required")
			}

			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			toRoom, err := cli.ResolveRoom(ctx, conn.Session, params.To)
			if err != nil {
				return cli.Validation("resolve --to room: %s", err)
			}

			promoted, err := conn.Catalog.Promote(ctx, catalog.PromoteRequest{
				TypeID:   typeID,
				FromRoom: conn.OrgRoom,
				ToRoom:   toRoom,
				NewLevel: params.Level,
				Actor:    conn.Actor,
			})
			if err != nil {
				return translateCatalogError(err)
			}

			if done, err := params.EmitJSON(promoted); done {
				return err
			}

			fmt.Printf("%s promoted to %s (level %s)\n", promoted.ID, toRoom, promoted.Level)
			return nil
		},
	}
}

// translateCatalogError maps catalog errors onto CLI error categories
// so scripted callers see forbidden/not-found/conflict rather than a
// generic failure.
func translateCatalogError(err error) error {
	switch {
	case catalog.IsPermissionDenied(err):
		return cli.Forbidden("%s", err)
	case catalog.IsNotFound(err):
		return cli.NotFound("%s", err)
	case catalog.IsConflict(err):
		return cli.Conflict("%s", err)
	}
	return err
}
