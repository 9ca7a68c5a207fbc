// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package resource

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

// --- list ---

type listParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Category string `flag:"category" desc:"filter by category"`
}

func listCommand() *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List resource types in the org room",
		Usage:   "docket resource list [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			types, err := conn.Catalog.ListTypes(ctx, conn.OrgRoom)
			if err != nil {
				return err
			}

			if params.Category != "" {
				filtered := types[:0]
				for _, t := range types {
					if t.Category == params.Category {
						filtered = append(filtered, t)
					}
				}
				types = filtered
			}

			if done, err := params.EmitJSON(types); done {
				return err
			}

			if len(types) == 0 {
				logger.Info("no resource types defined")
				return nil
			}

			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tLEVEL\tPROPERTIES")
			for i := range types {
				t := &types[i]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Category, t.Level, typeFlags(t))
			}
			return tw.Flush()
		},
	}
}

// --- show ---

type showParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
}

// showResult pairs a type definition with its current relations so one
// command answers "what is this and who holds it".
type showResult struct {
	Type      *schema.ResourceTypeContent `json:"type"`
	Relations []schema.RelationContent    `json:"relations"`
}

func showCommand() *cli.Command {
	var params showParams

	return &cli.Command{
		Name:    "show",
		Summary: "Show a resource type and its relations",
		Usage:   "docket resource show <type-id> [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return cli.Validation("exactly one type ID is required")
			}
			typeID, err := ref.ParseTypeID(args[0])
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

			resourceType, err := conn.Catalog.GetType(ctx, conn.OrgRoom, typeID)
			if err != nil {
				return cli.NotFound("%s", err)
			}
			relations, err := conn.Catalog.ListRelations(ctx, conn.OrgRoom, typeID)
			if err != nil {
				return err
			}

			result := showResult{Type: resourceType, Relations: relations}
			if done, err := params.EmitJSON(result); done {
				return err
			}

			fmt.Printf("%s\t%s\t%s\t%s\n", resourceType.ID, resourceType.Name, resourceType.Level, typeFlags(resourceType))
			if len(relations) == 0 {
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "\nRELATION\tHOLDER\tKIND\tAVAILABLE\tCAPACITY")
			for i := range relations {
				r := &relations[i]
				if r.Infinite() {
					fmt.Fprintf(tw, "%s\t%s\t%s\t∞\t∞\n", r.ID, r.Holder, r.RelationType)
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", r.ID, r.Holder, r.RelationType, r.Available, r.Capacity)
			}
			return tw.Flush()
		},
	}
}
