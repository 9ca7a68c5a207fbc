// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package allocation

import (
	"time"

	"github.com/docket-foundation/docket/cmd/docket/cli"
)

const commandTimeout = 60 * time.Second

// Command returns the "allocation" subcommand group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "allocation",
		Summary: "Resource allocation commands",
		Description: `Allocate resources to cases and settle the results.

An allocation draws inventory from a relation and attaches it to a
case. It stays active until a settlement records what happened:
consumed, returned (inventory restored), or revoked. Perishable
allocations expire on their own; "sweep" marks the ones past their
deadline.`,
		Subcommands: []*cli.Command{
			createCommand(),
			settleCommand(),
			listCommand(),
			sweepCommand(),
		},
	}
}
