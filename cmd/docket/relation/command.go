// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package relation

import (
	"time"

	"github.com/docket-foundation/docket/cmd/docket/cli"
)

const commandTimeout = 60 * time.Second

// Command returns the "relation" subcommand group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "relation",
		Summary: "Inventory relation commands",
		Description: `Manage inventory relations.

A relation records that a holder (a staff member or desk) carries
inventory of a resource type: how much they can hold and how much is
available right now. Relation IDs are derived from the holder and
type, so establishing the same relation twice returns the existing
one.`,
		Subcommands: []*cli.Command{
			establishCommand(),
			listCommand(),
			restockCommand(),
		},
	}
}
