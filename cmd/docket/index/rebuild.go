// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"context"
	"log/slog"

	"github.com/docket-foundation/docket/cmd/docket/cli"
)

type rebuildParams struct {
	cli.ConnectionConfig
}

func rebuildCommand() *cli.Command {
	var params rebuildParams

	return &cli.Command{
		Name:    "rebuild",
		Summary: "Rebuild the local index from org room state",
		Description: `Fetch the org room's full state and rebuild its projection.

The room's existing rows are replaced in one transaction; other rooms
in the index are untouched. Safe to run any time the index looks
stale or after a schema upgrade.`,
		Usage: "docket index rebuild [flags]",
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			state, err := conn.Session.GetRoomState(ctx, conn.OrgRoom)
			if err != nil {
				return err
			}

			idx, err := openIndex(conn.Config, logger)
			if err != nil {
				return err
			}
			defer idx.Close()

			if err := idx.Rebuild(ctx, conn.OrgRoom, state); err != nil {
				return cli.Internal("rebuild index: %w", err)
			}

			logger.Info("index rebuilt", "room", conn.OrgRoom, "state_events", len(state))
			return nil
		},
	}
}
