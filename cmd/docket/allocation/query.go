// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
)

type listParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Case   string `flag:"case,c"   desc:"filter by case room ID or alias"`
	Status string `flag:"status,s" desc:"filter by status (active, consumed, returned, revoked, expired)"`
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List allocations in the org room",
		Usage:   "docket allocation list [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			var caseID ref.RoomID
			if params.Case != "" {
				caseID, err = cli.ResolveRoom(ctx, conn.Session, params.Case)
				if err != nil {
					return cli.Validation("resolve --case room: %s", err)
				}
			}

			allocations, err := conn.Allocations.ListAllocations(ctx, conn.OrgRoom, caseID)
			if err != nil {
				return err
			}

			if params.Status != "" {
				filtered := allocations[:0]
				for _, a := range allocations {
					if a.Status == params.Status {
						filtered = append(filtered, a)
					}
				}
				allocations = filtered
			}

			if done, err := params.EmitJSON(allocations); done {
				return err
			}

			if len(allocations) == 0 {
				logger.Info("no allocations found")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "ID\tCASE\tTYPE\tQTY\tSTATUS\tEXPIRES")
			for i := range allocations {
				a := &allocations[i]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					a.ID, a.CaseID, a.ResourceTypeID, a.Quantity, a.Status, formatExpiry(a))
			}
			return tw.Flush()
		},
	}
}

func formatExpiry(a *schema.AllocationContent) string {
	if a.ExpiresAt == 0 {
		return "-"
	}
	return time.UnixMilli(a.ExpiresAt).UTC().Format(time.RFC3339)
}

type sweepParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
}

func sweepCommand() *cli.Command {
	var params sweepParams

	return &cli.Command{
		Name:    "sweep",
		Summary: "Expire perishable allocations past their deadline",
		Description: `Mark active allocations whose expiry has passed as expired.

Expired inventory is not restored: the resource aged out, it did not
come back. Run this from cron or after clock-sensitive operations.`,
		Usage: "docket allocation sweep [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			swept, err := conn.Allocations.SweepExpired(ctx, conn.OrgRoom, conn.Actor)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(swept); done {
				return err
			}

			logger.Info("sweep complete", "expired", len(swept))
			for i := range swept {
				fmt.Printf("%s expired\n", swept[i].ID)
			}
			return nil
		},
	}
}
