// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/parlor/cmd/parlor/cli"
)

func loginCommand(env *Environment) *cli.Command {
	var (
		configPath   string
		homeserver   string
		passwordFile string
	)

	return &cli.Command{
		Name:    "login",
		Summary: "Log in to a Matrix homeserver",
		Description: `Log in with a username and password and store the session.

The access token is encrypted with a device key held in the keystore
and written to the session database in the data directory. The
password is never stored.

The password is read from --password-file if given ("-" reads one line
from stdin), otherwise prompted for on the terminal.`,
		Usage: "parlor login <username> [flags]",
		Examples: []cli.Example{
			{
				Description: "Log in interactively (prompts for password)",
				Command:     "parlor login alice --homeserver https://matrix.example.org",
			},
			{
				Description: "Log in with the password from a file",
				Command:     "parlor login alice --password-file ~/.secrets/matrix",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("login", &configPath)
			flagSet.StringVar(&homeserver, "homeserver", "", "homeserver URL (default: homeserver from the configuration)")
			flagSet.StringVar(&passwordFile, "password-file", "", "file containing the password, or - for stdin (default: prompt)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Validation("expected exactly one username\n\nUsage: parlor login <username> [flags]")
			}
			username := args[0]

			app, err := env.open(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			if homeserver == "" {
				homeserver = app.config.Homeserver
			}
			if homeserver == "" {
				return cli.Validation("no homeserver: pass --homeserver or set homeserver in the configuration")
			}

			password, err := cli.ReadPassword(passwordFile, env.Stderr)
			if err != nil {
				return err
			}
			defer password.Close()

			if err := app.repositories.Auth.Login(ctx, homeserver, username, password); err != nil {
				return cli.Domain(err)
			}

			userID, _ := app.sessions.UserID()
			fmt.Fprintf(env.Stderr, "Logged in as %s\n", userID)
			return nil
		},
	}
}

func logoutCommand(env *Environment) *cli.Command {
	var configPath string

	return &cli.Command{
		Name:    "logout",
		Summary: "Log out and forget the stored session",
		Description: `Invalidate the access token on the homeserver and delete the stored
session. The local session is removed even if the homeserver cannot
be reached.`,
		Usage: "parlor logout [flags]",
		Flags: func() *pflag.FlagSet {
			return newFlagSet("logout", &configPath)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			app, err := env.open(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.repositories.Auth.Logout(ctx); err != nil {
				return cli.Domain(err)
			}
			fmt.Fprintln(env.Stderr, "Logged out")
			return nil
		},
	}
}

func statusCommand(env *Environment) *cli.Command {
	var (
		configPath string
		verify     bool
	)

	return &cli.Command{
		Name:    "status",
		Summary: "Show the stored session",
		Description: `Show whether a session is stored, and for which user and homeserver.
Exits 1 when not logged in. With --verify, the token is also checked
against the homeserver.`,
		Usage: "parlor status [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := newFlagSet("status", &configPath)
			flagSet.BoolVar(&verify, "verify", false, "check the token with the homeserver")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Validation("unexpected argument: %s", args[0])
			}
			app, err := env.open(configPath)
			if err != nil {
				return err
			}
			defer app.Close()

			printer := newPrinter(env.Stdout, env.now())
			userID, _ := app.sessions.UserID()
			homeserver, _ := app.sessions.HomeserverURL()

			if !app.sessions.IsLoggedIn() {
				printer.field("Status", "not logged in")
				if userID != "" {
					printer.field("Last user", userID)
				}
				return &cli.ExitError{Code: 1}
			}

			printer.field("Status", "logged in")
			printer.field("User", userID)
			printer.field("Homeserver", homeserver)

			if verify {
				verified, err := app.repositories.Auth.WhoAmI(ctx)
				if err != nil {
					return cli.Domain(err)
				}
				printer.field("Verified", verified.String())
			}
			return nil
		},
	}
}
