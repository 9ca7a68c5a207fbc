// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	alloc "github.com/docket-foundation/docket/lib/allocation"
	"github.com/docket-foundation/docket/lib/ref"
)

type createParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Case     string `flag:"case,c"    desc:"case room ID or alias"`
	Type     string `flag:"type,t"    desc:"resource type ID"`
	Relation string `flag:"relation"  desc:"relation to draw from (default: engine picks one with stock)"`
	Quantity int64  `flag:"quantity,q" desc:"units to allocate" default:"1"`
	Notes    string `flag:"notes"     desc:"freeform note recorded on the allocation"`
}

func createCommand() *cli.Command {
	var params createParams

	return &cli.Command{
		Name:    "create",
		Summary: "Allocate resources to a case",
		Description: `Allocate inventory to a case.

The engine checks permission, relation, and inventory in that order.
A rejected request is not an error: the violations are printed and the
command exits 1 so scripts can branch on the outcome.`,
		Usage: "docket allocation create --case ROOM --type TYPE [flags]",
		Examples: []cli.Example{
			{
				Description: "Issue three bus vouchers to a case",
				Command:     "docket allocation create --case '!case42:docket.example' --type rst-0a1b2c3d --quantity 3",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if params.Case == "" || params.Type == "" {
				return cli.Validation("--case and --type are required")
			}
			typeID, err := ref.ParseTypeID(params.Type)
			if err != nil {
				return cli.Validation("%s", err)
			}
			var relationID ref.RelationID
			if params.Relation != "" {
				parsed, err := ref.ParseRelationID(params.Relation)
				if err != nil {
					return cli.Validation("%s", err)
				}
				relationID = parsed
			}

			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			caseID, err := cli.ResolveRoom(ctx, conn.Session, params.Case)
			if err != nil {
				return cli.Validation("resolve --case room: %s", err)
			}

			result, err := conn.Allocations.Allocate(ctx, conn.OrgRoom, alloc.Request{
				CaseID:     caseID,
				TypeID:     typeID,
				RelationID: relationID,
				Quantity:   params.Quantity,
				Actor:      conn.Actor,
				Notes:      params.Notes,
			})
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(result); done {
				if err != nil {
					return err
				}
				if !result.Valid {
					return &cli.ExitError{Code: 1}
				}
				return nil
			}

			if !result.Valid {
				for _, violation := range result.Violations {
					fmt.Fprintf(os.Stderr, "rejected: %s: %s\n", violation.Code, violation.Message)
				}
				return &cli.ExitError{Code: 1}
			}

			fmt.Printf("%s\t%d x %s -> %s\n",
				result.Allocation.ID, result.Allocation.Quantity, result.Allocation.ResourceTypeID, result.Allocation.CaseID)
			return nil
		},
	}
}
