// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package roster

import (
	"time"

	"github.com/docket-foundation/docket/cmd/docket/cli"
)

const commandTimeout = 60 * time.Second

// Command returns the "roster" subcommand group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "roster",
		Summary: "Organization roster commands",
		Description: `Manage the organization's staff roster.

The roster records who works in the org and in what role. Roles drive
permission checks: a grant naming role:supervisor matches anyone whose
roster entry carries that role. Roster entries are intent — room
membership is the enforcement; "docket case repair" reconciles the
two.`,
		Subcommands: []*cli.Command{
			addCommand(),
			removeCommand(),
			listCommand(),
		},
	}
}
