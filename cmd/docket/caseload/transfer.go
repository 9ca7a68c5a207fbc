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

type transferParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	To string `flag:"to" desc:"new primary staff user ID"`
}

func transferCommand() *cli.Command {
	var params transferParams

	return &cli.Command{
		Name:    "transfer",
		Summary: "Transfer a case to a new primary",
		Description: `Transfer a case from its current primary to new staff.

The new primary is invited to the case room first; only after the
assignment registry is rewritten is the old primary kicked. A failed
invite aborts the transfer with nothing changed. A failed kick leaves
the transfer committed — the old primary keeps room access until
"docket case repair" or a manual kick cleans up.`,
		Usage: "docket case transfer <case-room> --to @USER [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one case room is required")
			}
			if params.To == "" {
				return cli.Validation("--to is required")
			}
			to, err := ref.ParseUserID(params.To)
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

			caseID, err := cli.ResolveRoom(ctx, conn.Session, args[0])
			if err != nil {
				return cli.Validation("resolve case room: %s", err)
			}

			transferred, err := conn.Assignments.Transfer(ctx, assignment.TransferRequest{
				OrgRoom: conn.OrgRoom,
				CaseID:  caseID,
				To:      to,
				Actor:   conn.Actor,
			})
			if err != nil {
				var notFound *assignment.NotFoundError
				var locked *assignment.TransferLockedError
				var notMember *assignment.NotOrgMemberError
				switch {
				case errors.As(err, &notFound):
					return cli.NotFound("%s", err)
				case errors.As(err, &locked):
					return cli.Conflict("%s", err)
				case errors.As(err, &notMember):
					return cli.Validation("%s (add them with \"docket roster add\")", err)
				}
				return err
			}

			if done, err := params.EmitJSON(transferred); done {
				return err
			}

			if transferred.TransferredFrom.IsZero() {
				fmt.Printf("%s already primary on %s\n", transferred.PrimaryStaff, transferred.CaseID)
				return nil
			}
			fmt.Printf("%s transferred %s -> %s\n",
				transferred.CaseID, transferred.TransferredFrom, transferred.PrimaryStaff)
			return nil
		},
	}
}
