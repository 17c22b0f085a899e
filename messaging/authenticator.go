// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"log/slog"
	"net/http"
)

// TokenSource supplies the current access token. *session.Manager
// implements it.
type TokenSource interface {
	CurrentToken() (string, bool)
}

// Outcome records what [Authenticator.Authenticate] did with a request.
type Outcome int

const (
	// OutcomeAttached: a bearer token was added.
	OutcomeAttached Outcome = iota
	// OutcomeLoginExempt: the request targets the login endpoint and
	// was left untouched.
	OutcomeLoginExempt
	// OutcomeExplicit: the caller already set Authorization.
	OutcomeExplicit
	// OutcomeNoToken: no token is stored. The request goes out
	// unauthenticated and the server's 401 reports the expired session.
	OutcomeNoToken
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAttached:
		return "attached"
	case OutcomeLoginExempt:
		return "login_exempt"
	case OutcomeExplicit:
		return "explicit"
	case OutcomeNoToken:
		return "no_token"
	default:
		return "unknown"
	}
}

// Authenticator decides whether a request carries credentials. It has
// no state of its own and reads the token once per call, so it is safe
// for any number of concurrent requests.
type Authenticator struct {
	tokens TokenSource
}

// NewAuthenticator returns an authenticator reading from tokens.
func NewAuthenticator(tokens TokenSource) *Authenticator {
	return &Authenticator{tokens: tokens}
}

// Authenticate returns the request to send. The input request is never
// modified; when a token is attached the result is a clone carrying
// exactly one Authorization header.
func (a *Authenticator) Authenticate(request *http.Request) (*http.Request, Outcome) {
	if IsLoginPath(request.URL.Path) {
		return request, OutcomeLoginExempt
	}
	// Presence decides, not value: an explicitly empty header is the
	// caller's choice too.
	if len(request.Header.Values("Authorization")) > 0 {
		return request, OutcomeExplicit
	}

	token, ok := a.tokens.CurrentToken()
	if !ok {
		return request, OutcomeNoToken
	}

	authenticated := request.Clone(request.Context())
	if authenticated.Header == nil {
		authenticated.Header = make(http.Header)
	}
	authenticated.Header.Set("Authorization", "Bearer "+token)
	return authenticated, OutcomeAttached
}

// Transport is an http.RoundTripper that authenticates each request
// before handing it to Base.
type Transport struct {
	Authenticator *Authenticator

	// Base performs the request. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	// Logger receives a debug line for requests sent without a token.
	// If nil, nothing is logged.
	Logger *slog.Logger
}

// NewTransport returns a Transport over base that attaches tokens from
// tokens.
func NewTransport(tokens TokenSource, base http.RoundTripper, logger *slog.Logger) *Transport {
	return &Transport{Authenticator: NewAuthenticator(tokens), Base: base, Logger: logger}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	authenticated, outcome := t.Authenticator.Authenticate(request)
	if outcome == OutcomeNoToken && t.Logger != nil {
		t.Logger.Debug("sending request without access token",
			"method", request.Method,
			"path", request.URL.Path,
		)
	}

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(authenticated)
}
