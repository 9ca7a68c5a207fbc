// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	alloc "github.com/docket-foundation/docket/lib/allocation"
	"github.com/docket-foundation/docket/lib/catalog"
	"github.com/docket-foundation/docket/lib/ref"
)

type settleParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Status string `flag:"status,s" desc:"settlement status (consumed, returned, revoked)"`
}

func settleCommand() *cli.Command {
	var params settleParams

	return &cli.Command{
		Name:    "settle",
		Summary: "Record what happened to an active allocation",
		Description: `Settle an allocation.

"consumed" records the resource was used; inventory stays drawn down.
"returned" restores the allocation's quantity to its relation.
"revoked" takes the allocation back and requires control over the
resource type. Settlement is terminal: a settled allocation cannot be
settled again.`,
		Usage: "docket allocation settle <allocation-id> --status STATUS [flags]",
		Examples: []cli.Example{
			{
				Description: "Client used the vouchers",
				Command:     "docket allocation settle alc-5566aabb --status consumed",
			},
			{
				Description: "Vouchers came back; restore inventory",
				Command:     "docket allocation settle alc-5566aabb --status returned",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one allocation ID is required")
			}
			allocationID, err := ref.ParseAllocationID(args[0])
			if err != nil {
				return cli.Validation("%s", err)
			}
			if params.Status == "" {
				return cli.Validation("--status is required (consumed, returned, revoked)")
			}

			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			settled, err := conn.Allocations.RecordEvent(ctx, conn.OrgRoom, allocationID, params.Status, conn.Actor)
			if err != nil {
				var notFound *alloc.NotFoundError
				var invalid *alloc.InvalidTransitionError
				switch {
				case errors.As(err, &notFound):
					return cli.NotFound("%s", err)
				case errors.As(err, &invalid):
					return cli.Conflict("%s", err)
				case catalog.IsPermissionDenied(err):
					return cli.Forbidden("%s", err)
				}
				return err
			}

			if done, err := params.EmitJSON(settled); done {
				return err
			}

			fmt.Printf("%s %s\n", settled.ID, settled.Status)
			return nil
		},
	}
}
