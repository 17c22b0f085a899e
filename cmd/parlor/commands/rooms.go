// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/parlor/cmd/parlor/cli"
	"github.com/bureau-foundation/parlor/lib/ref"
	"github.com/bureau-foundation/parlor/repository"
)

func roomsCommand(env *Environment) *cli.Command {
	var (
		configPath string
		limit      int
	)

	return &cli.Command{
		Name:    "rooms",
		Summary: "List the homeserver's public rooms",
		Usage:   "parlor rooms [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("rooms", &configPath)
			flagSet.IntVarP(&limit, "limit", "n", repository.DefaultPublicRoomsLimit, "maximum number of rooms")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			if limit <= 0 {
				return cli.Validation("--limit must be positive, got %d", limit)
			}
			app, err := env.open(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			rooms, err := app.repositories.Rooms.PublicRooms(ctx, limit)
			if err != nil {
				return cli.Domain(err)
			}
			newPrinter(env.Stdout, env.now()).rooms(rooms)
			return nil
		},
	}
}

func joinCommand(env *Environment) *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "join",
		Summary: "Join a room by ID or alias",
		Usage:   "parlor join <room-id-or-alias> [flags]",
		Examples: []cli.Example{
			{Command: "parlor join '#lobby:example.org'"},
			{Command: "parlor join '!abc123:example.org'"},
		},
		Flags: func() *pflag.FlagSet {
			return newFlagSet("join", &configPath)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one room\n\nUsage: parlor join <room-id-or-alias> [flags]")
			}
			room, err := ref.ParseRoomReference(args[0])
			if err != nil {
				return cli.Validation("%w", err)
			}

			app, err := env.open(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			roomID, err := app.repositories.Rooms.JoinRoom(ctx, room)
			if err != nil {
				return cli.Domain(err)
			}
			fmt.Fprintf(env.Stdout, "Joined %s\n", roomID)
			return nil
		},
	}
}

func messagesCommand(env *Environment) *cli.Command {
	var (
		configPath string
		limit      int
		all        bool
	)

	return &cli.Command{
		Name:    "messages",
		Summary: "Show the latest events of a room",
		Description: `Show the most recent events of a room, oldest first.

Bookkeeping events (receipts, reactions, power levels and the like)
are hidden unless --all is given.`,
		Usage: "parlor messages <room-id> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("messages", &configPath)
			flagSet.IntVarP(&limit, "limit", "n", repository.DefaultRoomMessagesLimit, "maximum number of events to fetch")
			flagSet.BoolVar(&all, "all", false, "include bookkeeping events")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one room ID\n\nUsage: parlor messages <room-id> [flags]")
			}
			roomID, err := ref.ParseRoomID(args[0])
			if err != nil {
				return cli.Validation("%w", err)
			}
			if limit <= 0 {
				return cli.Validation("--limit must be positive, got %d", limit)
			}

			app, err := env.open(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			events, err := app.repositories.Messages.RoomMessages(ctx, roomID, limit)
			if err != nil {
				return cli.Domain(err)
			}
			newPrinter(env.Stdout, env.now()).timeline(events, all)
			return nil
		},
	}
}
