// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package caseload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	"github.com/docket-foundation/docket/lib/assignment"
	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
)

type createParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Primary string `flag:"primary,p" desc:"primary staff user ID (required)"`
	Topic   string `flag:"topic"     desc:"case room topic"`
}

type createResult struct {
	CaseID     ref.RoomID                `json:"case_id"`
	Assignment *schema.AssignmentContent `json:"assignment"`
}

func createCommand() *cli.Command {
	var params createParams

	return &cli.Command{
		Name:    "create",
		Summary: "Provision a case room and assign its primary",
		Description: `Create a private case room and register it in the org room.

The room is created with the primary invited and the docket record
event types restricted to staff power level, so other room members
cannot forge records. The assignment registry entry is written last;
if it fails, rerun registration with "docket case assign" against the
room ID this command prints — do not create a second room.`,
		Usage: "docket case create <name>... --primary @USER [flags]",
		Examples: []cli.Example{
			{
				Description: "Open a case for a new client, carried by Rivera",
				Command:     "docket case create 'Doe intake' --primary @rivera:docket.example --topic 'housing assistance'",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) == 0 {
				return cli.Validation("a case name is required")
			}
			name := strings.Join(args, " ")
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

			caseID, assigned, err := conn.Assignments.ProvisionCase(ctx, assignment.ProvisionCaseRequest{
				OrgRoom: conn.OrgRoom,
				Name:    name,
				Topic:   params.Topic,
				Primary: primary,
				Actor:   conn.Actor,
			})
			if err != nil {
				var notMember *assignment.NotOrgMemberError
				if errors.As(err, &notMember) {
					return cli.Validation("%s is not on the org roster; add them with \"docket roster add\"", notMember.UserID)
				}
				if !caseID.IsZero() {
					// The room exists but registration did not finish.
					logger.Error("case room created but not registered",
						"case_id", caseID, "error", err)
				}
				return err
			}

			if done, err := params.EmitJSON(createResult{CaseID: caseID, Assignment: assigned}); done {
				return err
			}

			fmt.Printf("%s\tcreated, assigned to %s\n", caseID, assigned.PrimaryStaff)
			return nil
		},
	}
}
