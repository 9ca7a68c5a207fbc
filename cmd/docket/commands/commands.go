// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete docket CLI command tree. It
// exists as its own package so integration tests can construct and
// exercise the tree without going through main.
package commands

import (
	allocationcmd "github.com/docket-foundation/docket/cmd/docket/allocation"
	caseloadcmd "github.com/docket-foundation/docket/cmd/docket/caseload"
	"github.com/docket-foundation/docket/cmd/docket/cli"
	indexcmd "github.com/docket-foundation/docket/cmd/docket/index"
	ledgercmd "github.com/docket-foundation/docket/cmd/docket/ledger"
	relationcmd "github.com/docket-foundation/docket/cmd/docket/relation"
	resourcecmd "github.com/docket-foundation/docket/cmd/docket/resource"
	rostercmd "github.com/docket-foundation/docket/cmd/docket/roster"
)

// Root builds and returns the complete docket CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "docket",
		Description: `Docket: resource governance for human-services organizations.

Define resource types, hold inventory in relations, allocate to cases,
and track every change in an append-only operation ledger — all stored
in Matrix rooms.`,
		Subcommands: []*cli.Command{
			cli.LoginCommand(),
			cli.WhoAmICommand(),
			resourcecmd.Command(),
			relationcmd.Command(),
			allocationcmd.Command(),
			rostercmd.Command(),
			caseloadcmd.Command(),
			ledgercmd.Command(),
			indexcmd.Command(),
		},
	}
}
