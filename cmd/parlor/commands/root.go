// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the parlor command tree. Each command
// loads the configuration, opens the session store, and calls one
// repository operation; rendering of rooms and timelines lives in
// render.go.
package commands

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/parlor/cmd/parlor/cli"
	"github.com/bureau-foundation/parlor/lib/config"
	"github.com/bureau-foundation/parlor/lib/session"
	"github.com/bureau-foundation/parlor/repository"
)

// Environment carries the process-level dependencies of the command
// tree. Tests substitute buffers and a fixed clock.
type Environment struct {
	Stdout io.Writer
	Stderr io.Writer

	// Now returns the current time, for relative timestamps.
	Now func() time.Time
}

// DefaultEnvironment writes to the process's stdout and stderr.
func DefaultEnvironment() *Environment {
	return &Environment{Stdout: os.Stdout, Stderr: os.Stderr, Now: time.Now}
}

// Root returns the parlor command tree.
func Root(env *Environment) *cli.Command {
	return &cli.Command{
		Name:    "parlor",
		Summary: "A command-line Matrix client",
		Description: `parlor is a command-line client for the Matrix client-server API.

Log in once; the access token is stored encrypted under the data
directory and sent with every later command until you log out or the
homeserver rejects it.`,
		Output: env.Stderr,
		Subcommands: []*cli.Command{
			loginCommand(env),
			logoutCommand(env),
			statusCommand(env),
			roomsCommand(env),
			joinCommand(env),
			messagesCommand(env),
		},
		Examples: []cli.Example{
			{
				Description: "Log in and list the public rooms",
				Command:     "parlor login alice --homeserver https://matrix.example.org && parlor rooms",
			},
			{
				Description: "Read the last 20 events of a room",
				Command:     "parlor messages '!lobby:example.org' --limit 20",
			},
		},
	}
}

// newFlagSet returns a flag set carrying the --config flag every
// command accepts.
func newFlagSet(name string, configPath *string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(configPath, "config", "", "configuration file (default: $"+config.EnvironmentVariable+", else built-in defaults)")
	return flagSet
}

// app is what a command runs against: configuration, logger, the open
// session store, and the repositories over it.
type app struct {
	config       *config.Config
	logger       *slog.Logger
	sessions     *session.Manager
	repositories *repository.Repositories
}

func (env *Environment) open(configPath string) (*app, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, cli.Validation("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Validation("invalid configuration: %w", err)
	}

	logger := cli.NewCommandLogger(env.Stderr, cfg.LogLevel())

	sessions, err := session.Open(session.Config{
		DataDirectory:     cfg.DataDirectory,
		KeystoreDirectory: cfg.Keystore.Directory,
		IdentityFile:      cfg.Keystore.IdentityFile,
		KeyName:           cfg.Keystore.KeyName,
		Logger:            logger,
	})
	if err != nil {
		return nil, cli.Internal("opening session store: %w", err)
	}

	return &app{
		config:   cfg,
		logger:   logger,
		sessions: sessions,
		repositories: repository.New(repository.Config{
			Sessions:   sessions,
			HTTPClient: &http.Client{Timeout: cfg.RequestTimeout()},
			Logger:     logger,
		}),
	}, nil
}

func (a *app) Close() {
	if err := a.sessions.Close(); err != nil {
		a.logger.Warn("closing session store failed", "error", err)
	}
}

func (env *Environment) now() time.Time {
	if env.Now == nil {
		return time.Now()
	}
	return env.Now()
}
