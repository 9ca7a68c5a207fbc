// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/docket-foundation/docket/cmd/docket/cli"
)

type watchParams struct {
	cli.ConnectionConfig
}

func watchCommand() *cli.Command {
	var params watchParams

	return &cli.Command{
		Name:    "watch",
		Summary: "Follow org room state and keep the index current",
		Description: `Rebuild the org room's projection, then follow its /sync stream.

Each docket state event arriving after the rebuild is folded into the
index as it lands, so queries against the local file stay current
without repeated rebuilds. Runs until interrupted; Ctrl-C exits
cleanly. The /sync filter is restricted to docket record types, so
chat traffic in the org room costs nothing.`,
		Usage: "docket index watch [flags]",
		Examples: []cli.Example{
			{
				Description: "Keep the index warm while running offline queries elsewhere",
				Command:     "docket index watch --org '!org:docket.example'",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

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

			if err := idx.Follow(ctx, conn.Session, conn.OrgRoom); err != nil {
				return cli.Transient("follow org room: %w", err)
			}
			logger.Info("watch stopped")
			return nil
		},
	}
}
