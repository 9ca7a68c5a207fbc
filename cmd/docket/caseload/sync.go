// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package caseload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	"github.com/docket-foundation/docket/lib/assignment"
	"github.com/docket-foundation/docket/lib/ref"
)

type syncParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Primary string `flag:"primary" desc:"default primary staff for cases missing an assignment (required)"`
}

func syncCommand() *cli.Command {
	var params syncParams

	return &cli.Command{
		Name:    "sync",
		Summary: "Insert default assignments for unregistered cases",
		Description: `Reconcile the assignment registry with the case population.

Every named case room that has no assignment record gets a default,
transferable assignment carried by --primary. Cases that already have
a record are untouched, so the sweep can run repeatedly. Pair with
"docket case repair" to align room membership afterwards.`,
		Usage: "docket case sync --primary <user-id> <case-room>... [flags]",
		Examples: []cli.Example{
			{
				Description: "Register two cases created outside the normal flow",
				Command:     "docket case sync --primary '@morgan:docket.example' '!case77:docket.example' '!case78:docket.example'",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return cli.Validation("at least one case room is required")
			}
			if params.Primary == "" {
				return cli.Validation("--primary is required")
			}
			primary, err := ref.ParseUserID(params.Primary)
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

			cases := make([]ref.RoomID, 0, len(args))
			for _, arg := range args {
				caseID, err := cli.ResolveRoom(ctx, conn.Session, arg)
				if err != nil {
					return cli.Validation("case room %q: %s", arg, err)
				}
				cases = append(cases, caseID)
			}

			inserted, err := conn.Assignments.SyncAssignments(ctx, conn.OrgRoom, cases, primary, conn.Actor)
			if err != nil {
				var notMember *assignment.NotOrgMemberError
				if errors.As(err, &notMember) {
					return cli.Validation("%s is not on the org roster; add them with \"docket roster add\"", notMember.UserID)
				}
				return err
			}

			if done, err := params.EmitJSON(inserted); done {
				return err
			}

			if len(inserted) == 0 {
				logger.Info("every case already has an assignment")
				return nil
			}
			for i := range inserted {
				fmt.Printf("%s\tassigned to %s\n", inserted[i].CaseID, inserted[i].PrimaryStaff)
			}
			return nil
		},
	}
}
