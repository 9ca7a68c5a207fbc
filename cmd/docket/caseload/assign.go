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
	"github.com/docket-foundation/docket/lib/schema"
)

type assignParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Primary      string   `flag:"primary,p"    desc:"primary staff user ID"`
	Staff        []string `flag:"staff"        desc:"additional staff user ID (repeatable)"`
	ClientName   string   `flag:"client"       desc:"client display name"`
	Transferable bool     `flag:"transferable" desc:"case may be transferred later" default:"true"`
}

func assignCommand() *cli.Command {
	var params assignParams

	return &cli.Command{
		Name:    "assign",
		Summary: "Assign staff to a case",
		Description: `Record a case assignment in the org room.

The primary must already be on the org roster. The assignment names
the case room; staff membership in that room is reconciled separately
by "docket case repair".`,
		Usage: "docket case assign <case-room> --primary @USER [flags]",
		Examples: []cli.Example{
			{
				Description: "Assign a case to Rivera with a covering colleague",
				Command:     "docket case assign '!case42:docket.example' --primary @rivera:docket.example --staff @morgan:docket.example",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one case room is required")
			}
			if params.Primary == "" {
				return cli.Validation("--primary is required")
			}
			primary, err := ref.ParseUserID(params.Primary)
			if err != nil {
				return cli.Validation("%s", err)
			}
			var staff []ref.UserID
			for _, raw := range params.Staff {
				userID, err := ref.ParseUserID(raw)
				if err != nil {
					return cli.Validation("%s", err)
				}
				staff = append(staff, userID)
			}

			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			caseID, err := cli.ResolveRoom(ctx, conn.Session, args[0])
			if err != nil {
				return cli.Validation("resolve case room: %s", err)
			}

			assigned, err := conn.Assignments.Assign(ctx, conn.OrgRoom, schema.AssignmentContent{
				CaseID:       caseID,
				PrimaryStaff: primary,
				Staff:        staff,
				ClientName:   params.ClientName,
				Transferable: params.Transferable,
			}, conn.Actor)
			if err != nil {
				var notMember *assignment.NotOrgMemberError
				if errors.As(err, &notMember) {
					return cli.Validation("%s (add them with \"docket roster add\")", err)
				}
				return err
			}

			if done, err := params.EmitJSON(assigned); done {
				return err
			}

			fmt.Printf("%s assigned to %s\n", assigned.CaseID, assigned.PrimaryStaff)
			return nil
		},
	}
}
