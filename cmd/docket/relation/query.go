// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package relation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
)

type listParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Type   string `flag:"type,t" desc:"filter by resource type ID"`
	Holder string `flag:"holder" desc:"filter by holder user ID"`
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List inventory relations",
		Usage:   "docket relation list [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			var typeID ref.TypeID
			if params.Type != "" {
				parsed, err := ref.ParseTypeID(params.Type)
				if err != nil {
					return cli.Validation("%s", err)
				}
				typeID = parsed
			}

			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			relations, err := conn.Catalog.ListRelations(ctx, conn.OrgRoom, typeID)
			if err != nil {
				return err
			}

			if params.Holder != "" {
				holder, err := ref.ParseUserID(params.Holder)
				if err != nil {
					return cli.Validation("%s", err)
				}
				filtered := relations[:0]
				for _, r := range relations {
					if r.Holder == holder {
						filtered = append(filtered, r)
					}
				}
				relations = filtered
			}

			if done, err := params.EmitJSON(relations); done {
				return err
			}

			if len(relations) == 0 {
				logger.Info("no relations found")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tHOLDER\tKIND\tAVAILABLE\tCAPACITY")
			for i := range relations {
				r := &relations[i]
				available, capacity := formatStock(&relations[i])
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.ResourceTypeID, r.Holder, r.RelationType, available, capacity)
			}
			return tw.Flush()
		},
	}
}

func formatStock(r *schema.RelationContent) (string, string) {
	if r.Infinite() {
		return "∞", "∞"
	}
	return fmt.Sprintf("%d", r.Available), fmt.Sprintf("%d", r.Capacity)
}
