// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	"github.com/docket-foundation/docket/lib/ref"
)

const commandTimeout = 60 * time.Second

// Command returns the "ledger" subcommand group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "ledger",
		Summary: "Operation ledger inspection commands",
		Description: `Inspect the append-only operation ledger.

Every governance mutation is recorded as an operation against a target
path (resource/rst-..., relation/rel-..., allocation/alc-...,
assignment/!room, roster/@user). Operations chain through a
per-target head pointer, so the full provenance of any record can be
walked back to its creation.`,
		Subcommands: []*cli.Command{
			historyCommand(),
			headCommand(),
		},
	}
}

// --- history ---

type historyParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Limit int `flag:"limit,n" desc:"show at most N newest operations (0 for all)"`
}

func historyCommand() *cli.Command {
	var params historyParams

	return &cli.Command{
		Name:    "history",
		Summary: "Show the operations recorded against a target",
		Usage:   "docket ledger history <target-path> [flags]",
		Examples: []cli.Example{
			{
				Description: "Everything that ever happened to a resource type",
				Command:     "docket ledger history resource/rst-0a1b2c3d",
			},
			{
				Description: "The last five operations on an allocation",
				Command:     "docket ledger history allocation/alc-5566aabb --limit 5",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one target path is required")
			}
			targetPath, err := ref.ParseTargetPath(args[0])
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

			operations, err := conn.Ledger.Query(ctx, conn.OrgRoom, targetPath)
			if err != nil {
				return err
			}
			if params.Limit > 0 && len(operations) > params.Limit {
				operations = operations[len(operations)-params.Limit:]
			}

			if done, err := params.EmitJSON(operations); done {
				return err
			}

			if len(operations) == 0 {
				logger.Info("no operations recorded", "target", targetPath)
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "TIME\tVERB\tACTOR\tOPERATION")
			for i := range operations {
				op := &operations[i]
				stamp := time.UnixMilli(op.Timestamp).UTC().Format(time.RFC3339)
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", stamp, op.Verb, op.Actor, op.ID)
			}
			return tw.Flush()
		},
	}
}

// --- head ---

type headParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
}

func headCommand() *cli.Command {
	var params headParams

	return &cli.Command{
		Name:    "head",
		Summary: "Show a target's provenance chain head",
		Usage:   "docket ledger head <target-path> [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one target path is required")
			}
			targetPath, err := ref.ParseTargetPath(args[0])
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

			head, err := conn.Ledger.Head(ctx, conn.OrgRoom, targetPath)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(head); done {
				return err
			}

			if head.Head.IsZero() {
				fmt.Printf("%s: no operations\n", targetPath)
				return nil
			}
			fmt.Printf("%s\t%s\t%d operations\n", targetPath, head.Head, head.Count)
			return nil
		},
	}
}
