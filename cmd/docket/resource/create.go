// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	"github.com/docket-foundation/docket/lib/catalog"
	"github.com/docket-foundation/docket/lib/schema"
)

type createParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Name           string   `flag:"name,n"          desc:"human-readable type name"`
	Category       string   `flag:"category"        desc:"category (transportation, financial, housing, ...)"`
	Unit           string   `flag:"unit"            desc:"unit of allocation (voucher, dollar, hour)"`
	Fungible       bool     `flag:"fungible"        desc:"units are interchangeable" default:"true"`
	Perishable     bool     `flag:"perishable"      desc:"allocations expire"`
	TTLDays        int      `flag:"ttl-days"        desc:"allocation lifetime in days (perishable types)"`
	Infinite       bool     `flag:"infinite"        desc:"skip inventory tracking entirely"`
	Replenishes    bool     `flag:"replenishes"     desc:"inventory resets on a replenishment cycle"`
	ReplenishCycle string   `flag:"replenish-cycle" desc:"cycle label (monthly, quarterly)"`
	Tags           []string `flag:"tag"             desc:"freeform tags (repeatable)"`
	Level          string   `flag:"level"           desc:"definition level" default:"org"`
	Controllers    []string `flag:"controller"      desc:"control grant, role:NAME or user:@ID (repeatable)"`
	Allocators     []string `flag:"allocator"       desc:"allocate grant, role:NAME or user:@ID (repeatable)"`
	Viewers        []string `flag:"viewer"          desc:"view grant, role:NAME or user:@ID (repeatable)"`
}

func createCommand() *cli.Command {
	var params createParams

	return &cli.Command{
		Name:    "create",
		Summary: "Define a new resource type",
		Description: `Define a resource type in the org room.

Permission grants default to empty lists, which means viewing is open
to the room and control/allocation fall back to the org_admin role.
Grants are given as role:NAME or user:@ID and may be repeated.`,
		Usage: "docket resource create --name NAME [flags]",
		Examples: []cli.Example{
			{
				Description: "A fungible voucher pool controlled by supervisors",
				Command:     "docket resource create --name 'Bus Voucher' --category transportation --unit voucher --controller role:supervisor --allocator role:case_manager",
			},
			{
				Description: "A perishable benefit that expires after 30 days",
				Command:     "docket resource create --name 'Meal Ticket' --perishable --ttl-days 30",
			},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if params.Name == "" {
				return cli.Validation("--name is required")
			}
			if params.Perishable && params.TTLDays <= 0 {
				return cli.Validation("--perishable requires --ttl-days > 0")
			}

			controllers, err := parseGrants(params.Controllers)
			if err != nil {
				return cli.Validation("%s", err)
			}
			allocators, err := parseGrants(params.Allocators)
			if err != nil {
				return cli.Validation("%s", err)
			}
			viewers, err := parseGrants(params.Viewers)
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

			definition := catalog.TypeDefinition{
				Name:           params.Name,
				Category:       params.Category,
				Unit:           params.Unit,
				Fungible:       params.Fungible,
				Perishable:     params.Perishable,
				TTLDays:        params.TTLDays,
				Infinite:       params.Infinite,
				Replenishes:    params.Replenishes,
				ReplenishCycle: params.ReplenishCycle,
				Tags:           params.Tags,
				Permissions: schema.Permissions{
					Controllers: controllers,
					Allocators:  allocators,
					Viewers:     viewers,
				},
			}

			created, err := conn.Catalog.CreateType(ctx, conn.OrgRoom, definition, params.Level, conn.Actor)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(created); done {
				return err
			}

			fmt.Printf("%s\t%s\n", created.ID, created.Name)
			return nil
		},
	}
}
