// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package repository is the contract surface between the session core
// and anything that displays Matrix data. Each repository turns one
// user action into one homeserver request over a shared authenticated
// HTTP client and reports failures as [*messaging.DomainError].
//
// The repositories hold no state of their own. The homeserver to talk
// to and the token to present are read from [Sessions] on every call,
// so a login or logout takes effect for the next request without
// rebuilding anything.
package repository

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bureau-foundation/parlor/messaging"
)

// DefaultTimeout bounds each request when Config.HTTPClient is nil.
const DefaultTimeout = 30 * time.Second

// Sessions is the session state the repositories read and update.
// *session.Manager implements it.
type Sessions interface {
	messaging.TokenSource
	HomeserverURL() (string, bool)
	Login(homeserverURL, userID, token string) error
	Logout()
	Expire()
}

// Config holds the parameters for [New].
type Config struct {
	// Sessions supplies the token and homeserver. Required.
	Sessions Sessions

	// HTTPClient provides the timeout and base transport. Its
	// Transport is wrapped with a [messaging.Transport]; the client
	// itself is not modified. If nil, a client with DefaultTimeout
	// over http.DefaultTransport is used.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Repositories groups the three repositories. They share one
// authenticated HTTP client.
type Repositories struct {
	Auth     *Auth
	Rooms    *Rooms
	Messages *Messages
}

// New builds the repositories. Panics if config.Sessions is nil.
func New(config Config) *Repositories {
	if config.Sessions == nil {
		panic("repository: Sessions is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base := config.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: DefaultTimeout}
	}
	authenticated := &http.Client{
		Transport:     messaging.NewTransport(config.Sessions, base.Transport, logger),
		CheckRedirect: base.CheckRedirect,
		Jar:           base.Jar,
		Timeout:       base.Timeout,
	}

	shared := &backend{
		sessions:   config.Sessions,
		httpClient: authenticated,
		logger:     logger,
	}
	return &Repositories{
		Auth:     &Auth{backend: shared},
		Rooms:    &Rooms{backend: shared},
		Messages: &Messages{backend: shared},
	}
}

// backend is the plumbing every repository shares.
type backend struct {
	sessions   Sessions
	httpClient *http.Client
	logger     *slog.Logger
}

// client returns a client for the stored homeserver. Without one there
// is no session to speak of, which is reported as SessionExpired so the
// caller sends the user to log in.
func (b *backend) client() (*messaging.Client, error) {
	homeserverURL, ok := b.sessions.HomeserverURL()
	if !ok {
		return nil, messaging.NewDomainError(messaging.KindSessionExpired, "", nil)
	}
	return b.clientFor(homeserverURL)
}

func (b *backend) clientFor(homeserverURL string) (*messaging.Client, error) {
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: homeserverURL,
		HTTPClient:    b.httpClient,
		Logger:        b.logger,
	})
	if err != nil {
		return nil, messaging.NewDomainError(messaging.KindUnknown,
			fmt.Sprintf("Invalid homeserver URL %q", homeserverURL), err)
	}
	return client, nil
}

// fail classifies err, logs it, and expires the stored token when the
// server has rejected it.
func (b *backend) fail(action string, err error) error {
	domainErr := messaging.Classify(err)
	b.logger.Warn(action+" failed",
		"kind", domainErr.Kind.String(),
		"status", domainErr.StatusCode,
		"error", err,
	)
	if domainErr.Kind == messaging.KindSessionExpired {
		b.sessions.Expire()
	}
	return domainErr
}
