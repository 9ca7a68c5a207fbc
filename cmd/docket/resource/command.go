// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package resource

import (
	"fmt"
	"strings"
	"time"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	"github.com/docket-foundation/docket/lib/schema"
)

// commandTimeout bounds every homeserver round-trip batch a resource
// command performs.
const commandTimeout = 60 * time.Second

// Command returns the "resource" subcommand group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "resource",
		Summary: "Resource type management commands",
		Description: `Define and manage resource types.

A resource type describes something the organization tracks and
allocates: bus vouchers, emergency funds, staff hours. Each type
carries permission grants naming who may control it, allocate from it,
and view it.`,
		Subcommands: []*cli.Command{
			createCommand(),
			listCommand(),
			showCommand(),
			permissionsCommand(),
			replenishCommand(),
			promoteCommand(),
		},
	}
}

// parseGrants converts "role:NAME" / "user:@ID" strings from repeated
// flags into schema grants.
func parseGrants(raw []string) ([]schema.Grant, error) {
	var grants []schema.Grant
	for _, entry := range raw {
		kind, id, found := strings.Cut(entry, ":")
		if !found || (kind != "role" && kind != "user") {
			return nil, fmt.Errorf("grant %q: expected role:NAME or user:@ID", entry)
		}
		if kind == "user" && !strings.HasPrefix(id, "@") {
			return nil, fmt.Errorf("grant %q: user IDs start with @", entry)
		}
		if id == "" {
			return nil, fmt.Errorf("grant %q: empty principal", entry)
		}
		grants = append(grants, schema.Grant{Kind: kind, ID: id})
	}
	return grants, nil
}

// typeFlags renders the boolean properties of a type for table output.
func typeFlags(content *schema.ResourceTypeContent) string {
	var flags []string
	if content.Fungible {
		flags = append(flags, "fungible")
	}
	if content.Perishable {
		flags = append(flags, fmt.Sprintf("perishable(%dd)", content.TTLDays))
	}
	if content.Infinite {
		flags = append(flags, "infinite")
	}
	if content.Replenishes {
		flags = append(flags, "replenishes")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
