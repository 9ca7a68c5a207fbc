// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	"github.com/docket-foundation/docket/lib/assignment"
	"github.com/docket-foundation/docket/lib/ref"
)

// --- add ---

type addParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Role        string `flag:"role,r"       desc:"roster role (case_manager, supervisor, org_admin, ...)"`
	DisplayName string `flag:"display-name" desc:"human-readable name"`
}

func addCommand() *cli.Command {
	var params addParams

	return &cli.Command{
		Name:    "add",
		Summary: "Add a user to the org roster",
		Usage:   "docket roster add <@user> --role ROLE [flags]",
		Examples: []cli.Example{
			{
				Description: "Add a case manager",
				Command:     "docket roster add @rivera:docket.example --role case_manager --display-name 'Rivera'",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one user ID is required")
			}
			userID, err := ref.ParseUserID(args[0])
			if err != nil {
				return cli.Validation("%s", err)
			}
			if params.Role == "" {
				return cli.Validation("--role is required")
			}

			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			entry, err := conn.Assignments.AddToRoster(ctx, conn.OrgRoom, userID, params.Role, params.DisplayName, conn.Actor)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(entry); done {
				return err
			}

			fmt.Printf("%s added as %s\n", entry.UserID, entry.Role)
			return nil
		},
	}
}

// --- remove ---

type removeParams struct {
	cli.ConnectionConfig
}

func removeCommand() *cli.Command {
	var params removeParams

	return &cli.Command{
		Name:    "remove",
		Summary: "Remove a user from the org roster",
		Description: `Remove a roster entry.

This tombstones the entry; it does not kick the user from case rooms
or touch their assignments. Reassign their cases first with
"docket case transfer".`,
		Usage: "docket roster remove <@user> [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one user ID is required")
			}
			userID, err := ref.ParseUserID(args[0])
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

			if err := conn.Assignments.RemoveFromRoster(ctx, conn.OrgRoom, userID, conn.Actor); err != nil {
				var notMember *assignment.NotOrgMemberError
				if errors.As(err, &notMember) {
					return cli.NotFound("%s", err)
				}
				return err
			}

			logger.Info("removed from roster", "user", userID)
			return nil
		},
	}
}

// --- list ---

type listParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Role string `flag:"role,r" desc:"filter by role"`
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List the org roster",
		Usage:   "docket roster list [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			entries, err := conn.Assignments.Roster(ctx, conn.OrgRoom)
			if err != nil {
				return err
			}

			if params.Role != "" {
				filtered := entries[:0]
				for _, entry := range entries {
					if entry.Role == params.Role {
						filtered = append(filtered, entry)
					}
				}
				entries = filtered
			}

			if done, err := params.EmitJSON(entries); done {
				return err
			}

			if len(entries) == 0 {
				logger.Info("roster is empty")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "USER\tROLE\tNAME\tADDED")
			for _, entry := range entries {
				added := "-"
				if entry.AddedAt > 0 {
					added = time.UnixMilli(entry.AddedAt).UTC().Format("2006-01-02")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", entry.UserID, entry.Role, entry.DisplayName, added)
			}
			return tw.Flush()
		},
	}
}
