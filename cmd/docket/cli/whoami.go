// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// whoamiParams holds the parameters for the whoami command.
type whoamiParams struct {
	ConnectionConfig
	JSONOutput
}

// whoamiResult is the JSON shape of the whoami output.
type whoamiResult struct {
	UserID  string `json:"user_id"`
	OrgRoom string `json:"org_room"`
	Role    string `json:"role"`
}

// WhoAmICommand returns the "whoami" command, which verifies the saved
// session against the homeserver and reports the operator's identity
// and roster role.
func WhoAmICommand() *Command {
	var params whoamiParams

	return &Command{
		Name:    "whoami",
		Summary: "Show the logged-in operator and their roster role",
		Usage:   "docket whoami [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) > 0 {
				return Validation("unexpected argument: %s", args[0])
			}

			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			conn, err := params.Connect(ctx, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			// Round-trip through the homeserver so a revoked token is
			// reported here rather than by the next real command.
			userID, err := conn.Session.WhoAmI(ctx)
			if err != nil {
				return Internal("session verification failed: %w", err)
			}

			result := whoamiResult{
				UserID:  userID.String(),
				OrgRoom: conn.OrgRoom.String(),
				Role:    conn.Actor.Role,
			}
			if done, err := params.EmitJSON(result); done {
				return err
			}

			fmt.Printf("%s (role %q) in %s\n", result.UserID, result.Role, result.OrgRoom)
			return nil
		},
	}
}
