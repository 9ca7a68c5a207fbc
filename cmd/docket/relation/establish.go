// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package relation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	"github.com/docket-foundation/docket/lib/catalog"
	"github.com/docket-foundation/docket/lib/ref"
	"github.com/docket-foundation/docket/lib/schema"
)

type establishParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Holder       string `flag:"holder"   desc:"holder's Matrix user ID"`
	Type         string `flag:"type,t"   desc:"resource type ID"`
	RelationType string `flag:"kind"     desc:"relation kind (owns, administers, draws_from)" default:"holds"`
	Capacity     int64  `flag:"capacity" desc:"maximum inventory (-1 for unbounded)"`
}

func establishCommand() *cli.Command {
	var params establishParams

	return &cli.Command{
		Name:    "establish",
		Summary: "Establish a holder's relation to a resource type",
		Description: `Establish an inventory relation.

The relation starts with available equal to capacity. Establishing a
relation that already exists is a no-op returning the existing record,
so callers can run this idempotently from provisioning scripts.`,
		Usage: "docket relation establish --holder @USER --type TYPE [flags]",
		Examples: []cli.Example{
			{
				Description: "Give the front desk 20 bus vouchers",
				Command:     "docket relation establish --holder @frontdesk:docket.example --type rst-0a1b2c3d --capacity 20",
			},
			{
				Description: "Unbounded draw-from relation",
				Command:     "docket relation establish --holder @finance:docket.example --type rst-11223344 --kind draws_from --capacity -1",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if params.Holder == "" || params.Type == "" {
				return cli.Validation("--holder and --type are required")
			}
			holder, err := ref.ParseUserID(params.Holder)
			if err != nil {
				return cli.Validation("%s", err)
			}
			typeID, err := ref.ParseTypeID(params.Type)
			if err != nil {
				return cli.Validation("%s", err)
			}
			if params.Capacity < 0 && params.Capacity != schema.InfiniteCapacity {
				return cli.Validation("--capacity must be >= 0, or %d for unbounded", schema.InfiniteCapacity)
			}

			ctx, cancel := context.WithTimeout(ctx, commandTimeout)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			established, created, err := conn.Catalog.EstablishRelation(
				ctx, conn.OrgRoom, holder, typeID, params.RelationType, params.Capacity, conn.Actor)
			if err != nil {
				if catalog.IsNotFound(err) {
					return cli.NotFound("%s", err)
				}
				return err
			}

			if done, err := params.EmitJSON(established); done {
				return err
			}

			if created {
				fmt.Printf("%s established for %s\n", established.ID, established.Holder)
			} else {
				fmt.Printf("%s already exists for %s\n", established.ID, established.Holder)
			}
			return nil
		},
	}
}
