// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"log/slog"
	"time"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	"github.com/docket-foundation/docket/lib/config"
	"github.com/docket-foundation/docket/lib/registryindex"
)

const commandTimeout = 120 * time.Second

// Command returns the "index" subcommand group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "index",
		Summary: "Local read-model commands",
		Description: `Maintain and query the local SQLite read model.

The index is a projection of room state, rebuildable at any time; the
rooms stay the source of truth. "rebuild" refreshes it from the
homeserver; "watch" keeps following /sync after a rebuild so the
projection stays current. The query subcommands read the local file
without touching the network, so they work offline and stay fast on
large orgs.`,
		Subcommands: []*cli.Command{
			rebuildCommand(),
			watchCommand(),
			typesCommand(),
			allocationsCommand(),
			assignmentsCommand(),
		},
	}
}

// openIndex opens the configured index database.
func openIndex(cfg *config.Config, logger *slog.Logger) (*registryindex.Index, error) {
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	return registryindex.Open(registryindex.Config{
		Path:     cfg.Index.Path,
		PoolSize: cfg.Index.PoolSize,
		Logger:   logger,
	})
}
