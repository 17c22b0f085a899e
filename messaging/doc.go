// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging is parlor's authenticated request pipeline to a
// Matrix homeserver.
//
// [Client] wraps the client-server endpoints parlor uses: login,
// whoami, public room directory, room history and join. It does not
// hold a token. Credentials are attached by [Transport], an
// http.RoundTripper that runs [Authenticator.Authenticate] on every
// outgoing request: the login endpoint is never given a token, an
// explicit Authorization header is left alone, and otherwise the
// current token from a [TokenSource] is attached as a bearer token. A
// missing token is not an error here; the homeserver answers 401 and
// that surfaces as an expired session.
//
// Failures come back as [*MatrixError] (the server answered with a
// non-2xx status), [*TransportError] (no response at all) or
// [*ResponseError] (a 2xx body that did not decode). [Classify] maps any
// of these to a [*DomainError]: a stable [ErrorKind] and a message
// suitable for showing to a user. The original error stays reachable
// through Unwrap for diagnostics but never appears in the message.
//
// Request URLs are built by string concatenation onto the homeserver
// base URL, with path segments escaped by url.PathEscape. This avoids
// url.URL re-encoding room IDs and aliases that contain reserved
// characters.
package messaging
