// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package caseload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	"github.com/docket-foundation/docket/lib/ref"
)

type listParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Staff string `flag:"staff" desc:"filter by staff user ID (primary or covering)"`
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List case assignments",
		Usage:   "docket case list [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			assignments, err := conn.Assignments.Assignments(ctx, conn.OrgRoom)
			if err != nil {
				return err
			}

			if params.Staff != "" {
				staff, err := ref.ParseUserID(params.Staff)
				if err != nil {
					return cli.Validation("%s", err)
				}
				filtered := assignments[:0]
				for i := range assignments {
					if assignments[i].HasStaff(staff) {
						filtered = append(filtered, assignments[i])
					}
				}
				assignments = filtered
			}

			if done, err := params.EmitJSON(assignments); done {
				return err
			}

			if len(assignments) == 0 {
				logger.Info("no assignments found")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "CASE\tPRIMARY\tSTAFF\tCLIENT\tTRANSFERABLE")
			for i := range assignments {
				a := &assignments[i]
				var staff []string
				for _, userID := range a.Staff {
					staff = append(staff, userID.String())
				}
				staffColumn := "-"
				if len(staff) > 0 {
					staffColumn = strings.Join(staff, ",")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n",
					a.CaseID, a.PrimaryStaff, staffColumn, a.ClientName, a.Transferable)
			}
			return tw.Flush()
		},
	}
}

type repairParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
}

func repairCommand() *cli.Command {
	var params repairParams

	return &cli.Command{
		Name:    "repair",
		Summary: "Re-invite staff missing from their case rooms",
		Description: `Reconcile case room membership with the assignment registry.

For every assignment, staff who are neither joined nor invited to the
case room are re-invited. Failures are reported per user and do not
stop the pass.`,
		Usage: "docket case repair [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			actions, err := conn.Assignments.Repair(ctx, conn.OrgRoom)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(actions); done {
				return err
			}

			if len(actions) == 0 {
				logger.Info("membership matches assignments")
				return nil
			}
			for _, action := range actions {
				fmt.Printf("%s\t%s\t%s\n", action.CaseID, action.UserID, action.Action)
			}
			return nil
		},
	}
}
