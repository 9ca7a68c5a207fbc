// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package caseload

import (
	"time"

	"github.com/docket-foundation/docket/cmd/docket/cli"
)

const commandTimeout = 60 * time.Second

// Command returns the "case" subcommand group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "case",
		Summary: "Case assignment commands",
		Description: `Manage which staff carry which cases.

The assignment registry in the org room records intent; membership in
the case room is the enforcement. Transfers invite the new primary
before rewriting the registry, so the case is never orphaned
mid-handoff. "create" provisions the case room itself with record
types locked to staff; "sync" inserts default assignments for cases
the registry missed; "repair" re-invites staff whose membership
drifted from the registry.`,
		Subcommands: []*cli.Command{
			createCommand(),
			assignCommand(),
			transferCommand(),
			listCommand(),
			syncCommand(),
			repairCommand(),
		},
	}
}
