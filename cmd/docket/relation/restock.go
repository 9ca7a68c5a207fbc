// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package relation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	"github.com/docket-foundation/docket/lib/catalog"
	"github.com/docket-foundation/docket/lib/ref"
)

type restockParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Delta int64  `flag:"delta,d" desc:"units to add (positive)"`
	Note  string `flag:"note"    desc:"provenance note recorded with the restock"`
}

func restockCommand() *cli.Command {
	var params restockParams

	return &cli.Command{
		Name:    "restock",
		Summary: "Add inventory to a relation",
		Description: `Add units to a relation's capacity and available stock.

Restock only adds; drawdowns happen through allocation and
settlements. If the relation's stock moves between the read and the
write (another operator restocking or allocating at the same moment),
the command fails with a conflict — re-run it. Requires control over
the relation's type.`,
		Usage: "docket relation restock <relation-id> --delta N [flags]",
		Examples: []cli.Example{
			{
				Description: "Record a delivery of 15 vouchers",
				Command:     "docket relation restock rel-9f8e7d6c --delta 15 --note 'March delivery'",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one relation ID is required")
			}
			relationID, err := ref.ParseRelationID(args[0])
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

			updated, err := conn.Catalog.Restock(ctx, conn.OrgRoom, relationID, params.Delta, params.Note, conn.Actor)
			if err != nil {
				var negative *catalog.NegativeDeltaError
				switch {
				case errors.As(err, &negative):
					return cli.Validation("%s", err)
				case catalog.IsPermissionDenied(err):
					return cli.Forbidden("%s", err)
				case catalog.IsNotFound(err):
					return cli.NotFound("%s", err)
				case catalog.IsConflict(err):
					return cli.Conflict("%s (re-run to retry)", err)
				}
				return err
			}

			if done, err := params.EmitJSON(updated); done {
				return err
			}

			fmt.Printf("%s now %d/%d\n", updated.ID, updated.Available, updated.Capacity)
			return nil
		},
	}
}
