// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"fmt"

	"github.com/bureau-foundation/parlor/lib/ref"
	"github.com/bureau-foundation/parlor/lib/secret"
	"github.com/bureau-foundation/parlor/messaging"
)

// Auth logs in and out.
type Auth struct {
	*backend
}

// Login authenticates against homeserverURL and persists the session.
// Request failures are returned as *messaging.DomainError. If the
// server accepted the credentials but the session could not be saved,
// the storage error is returned wrapped and nothing is persisted.
//
// The password buffer is read but not closed.
func (a *Auth) Login(ctx context.Context, homeserverURL, username string, password *secret.Buffer) error {
	client, err := a.clientFor(homeserverURL)
	if err != nil {
		return err
	}

	response, err := client.Login(ctx, username, password)
	if err != nil {
		return a.fail("login", err)
	}

	if err := a.sessions.Login(client.HomeserverURL(), response.UserID.String(), response.AccessToken); err != nil {
		return fmt.Errorf("repository: saving session: %w", err)
	}
	return nil
}

// Logout ends the session. The server is asked to invalidate the token
// first; whether or not that succeeds, the local session is cleared.
// Always returns nil.
func (a *Auth) Logout(ctx context.Context) error {
	a.revoke(ctx)
	a.sessions.Logout()
	return nil
}

func (a *Auth) revoke(ctx context.Context) {
	if _, ok := a.sessions.CurrentToken(); !ok {
		return
	}
	client, err := a.client()
	if err != nil {
		return
	}
	if err := client.Logout(ctx); err != nil {
		a.logger.Warn("server-side logout failed, clearing local session anyway",
			"kind", messaging.Classify(err).Kind.String(),
			"error", err,
		)
	}
}

// WhoAmI asks the homeserver who the stored token belongs to.
func (a *Auth) WhoAmI(ctx context.Context) (ref.UserID, error) {
	client, err := a.client()
	if err != nil {
		return ref.UserID{}, err
	}
	response, err := client.WhoAmI(ctx)
	if err != nil {
		return ref.UserID{}, a.fail("whoami", err)
	}
	return response.UserID, nil
}
