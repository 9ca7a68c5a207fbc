// Copyright 2026 The Docket Authors
// SPDX-License-Identifier: Apache-2.0

package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/docket-foundation/docket/cmd/docket/cli"
	"github.com/docket-foundation/docket/lib/ref"
)

// offlineParams are the shared flags for query subcommands, which read
// the local database without a homeserver session.
type offlineParams struct {
	cli.ConnectionConfig
	cli.JSONOutput
	Room string `flag:"room" desc:"room ID to query (default: org.room from config)"`
}

// roomID resolves the room to query. Offline commands cannot resolve
// aliases, so an alias-form org.room needs an explicit --room.
func (p *offlineParams) roomID() (ref.RoomID, error) {
	raw := p.Room
	if raw == "" {
		cfg, err := p.LoadConfig()
		if err != nil {
			return ref.RoomID{}, err
		}
		raw = cfg.Org.Room
	}
	if strings.HasPrefix(raw, "#") {
		return ref.RoomID{}, fmt.Errorf("org.room is an alias (%s); offline queries need a room ID — pass --room", raw)
	}
	return ref.ParseRoomID(raw)
}

// --- types ---

type typesParams struct {
	offlineParams
}

func typesCommand() *cli.Command {
	var params typesParams

	return &cli.Command{
		Name:    "types",
		Summary: "List resource types from the local index",
		Usage:   "docket index types [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			roomID, err := params.roomID()
			if err != nil {
				return cli.Validation("%s", err)
			}
			idx, err := openIndex(cfg, logger)
			if err != nil {
				return err
			}
			defer idx.Close()

			types, err := idx.ResourceTypes(ctx, roomID)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(types); done {
				return err
			}

			if len(types) == 0 {
				logger.Info("index has no resource types for this room (run \"docket index rebuild\")")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tLEVEL")
			for i := range types {
				t := &types[i]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.Category, t.Level)
			}
			return tw.Flush()
		},
	}
}

// --- allocations ---

type allocationsParams struct {
	offlineParams
	Case   string `flag:"case,c"   desc:"filter by case room ID"`
	Status string `flag:"status,s" desc:"filter by status"`
}

func allocationsCommand() *cli.Command {
	var params allocationsParams

	return &cli.Command{
		Name:    "allocations",
		Summary: "List allocations from the local index",
		Usage:   "docket index allocations [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			roomID, err := params.roomID()
			if err != nil {
				return cli.Validation("%s", err)
			}
			var caseID ref.RoomID
			if params.Case != "" {
				caseID, err = ref.ParseRoomID(params.Case)
				if err != nil {
					return cli.Validation("%s", err)
				}
			}
			idx, err := openIndex(cfg, logger)
			if err != nil {
				return err
			}
			defer idx.Close()

			allocations, err := idx.Allocations(ctx, roomID, caseID, params.Status)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(allocations); done {
				return err
			}

			if len(allocations) == 0 {
				logger.Info("no allocations in index")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "ID\tCASE\tTYPE\tQTY\tSTATUS")
			for i := range allocations {
				a := &allocations[i]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", a.ID, a.CaseID, a.ResourceTypeID, a.Quantity, a.Status)
			}
			return tw.Flush()
		},
	}
}

// --- assignments ---

type assignmentsParams struct {
	offlineParams
	Staff string `flag:"staff" desc:"filter by primary staff user ID"`
}

func assignmentsCommand() *cli.Command {
	var params assignmentsParams

	return &cli.Command{
		Name:    "assignments",
		Summary: "List case assignments from the local index",
		Usage:   "docket index assignments [flags]",
		Params:  func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			cfg, err := params.LoadConfig()
			if err != nil {
				return err
			}
			roomID, err := params.roomID()
			if err != nil {
				return cli.Validation("%s", err)
			}
			var staff ref.UserID
			if params.Staff != "" {
				staff, err = ref.ParseUserID(params.Staff)
				if err != nil {
					return cli.Validation("%s", err)
				}
			}
			idx, err := openIndex(cfg, logger)
			if err != nil {
				return err
			}
			defer idx.Close()

			assignments, err := idx.Assignments(ctx, roomID, staff)
			if err != nil {
				return err
			}

			if done, err := params.EmitJSON(assignments); done {
				return err
			}

			if len(assignments) == 0 {
				logger.Info("no assignments in index")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(tw, "CASE\tPRIMARY\tCLIENT\tTRANSFERABLE")
			for i := range assignments {
				a := &assignments[i]
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", a.CaseID, a.PrimaryStaff, a.ClientName, a.Transferable)
			}
			return tw.Flush()
		},
	}
}
