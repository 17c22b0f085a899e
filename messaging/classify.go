// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorKind is the stable category of a failed request.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidCredentials
	KindRateLimited
	KindServerUnavailable
	KindSessionExpired
	KindForbidden
	KindNotFound
	KindNetworkUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindRateLimited:
		return "rate_limited"
	case KindServerUnavailable:
		return "server_unavailable"
	case KindSessionExpired:
		return "session_expired"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindNetworkUnavailable:
		return "network_unavailable"
	default:
		return "unknown"
	}
}

// DomainError is a classified request failure. Message is ready to
// display; the underlying error is available through Unwrap and never
// leaks into Message.
type DomainError struct {
	Kind    ErrorKind
	Message string

	// StatusCode is the HTTP status, or 0 if no response was received.
	StatusCode int

	// RetryAfter is the server's backoff hint for KindRateLimited, or 0.
	RetryAfter time.Duration

	cause error
}

func (e *DomainError) Error() string { return e.Message }

func (e *DomainError) Unwrap() error { return e.cause }

// Equal compares everything except the cause.
func (e *DomainError) Equal(other *DomainError) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Kind == other.Kind &&
		e.Message == other.Message &&
		e.StatusCode == other.StatusCode &&
		e.RetryAfter == other.RetryAfter
}

// IsKind reports whether err is a *DomainError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Kind == kind
}

// NewDomainError builds a DomainError outside the HTTP path, for
// example when there is no stored homeserver to send a request to.
func NewDomainError(kind ErrorKind, message string, cause error) *DomainError {
	if message == "" {
		message = defaultMessage(kind)
	}
	return &DomainError{Kind: kind, Message: message, cause: cause}
}

const (
	messageCancelled          = "Request cancelled"
	messageUnexpectedResponse = "Unexpected response from server"
	messageUnexpectedError    = "Something went wrong. Please try again"
)

func defaultMessage(kind ErrorKind) string {
	switch kind {
	case KindInvalidCredentials:
		return "Invalid username or password"
	case KindRateLimited:
		return "Too many requests. Please try again later"
	case KindServerUnavailable:
		return "Server error. Please try again later"
	case KindSessionExpired:
		return "Session expired. Please log in again"
	case KindForbidden:
		return "You don't have permission to do that"
	case KindNotFound:
		return "Not found"
	case KindNetworkUnavailable:
		return "Network error. Check your connection"
	default:
		return messageUnexpectedError
	}
}

// ClassifyStatus maps a non-2xx response to a DomainError. path decides
// what 401 and 403 mean: on the login endpoint they reject the
// credentials just offered, elsewhere they reject the stored session.
// Only the status decides: an M_LIMIT_EXCEEDED code on a status other
// than 429 is not rate limiting. cause is retained for diagnostics.
func ClassifyStatus(path string, status int, cause error) *DomainError {
	result := &DomainError{StatusCode: status, cause: cause}

	switch {
	case status == http.StatusTooManyRequests:
		result.Kind = KindRateLimited
		result.RetryAfter = retryAfter(cause)
	case (status == http.StatusUnauthorized || status == http.StatusForbidden) && IsLoginPath(path):
		result.Kind = KindInvalidCredentials
	case status == http.StatusUnauthorized:
		result.Kind = KindSessionExpired
	case status == http.StatusForbidden:
		result.Kind = KindForbidden
	case status == http.StatusNotFound:
		result.Kind = KindNotFound
	case status == http.StatusInternalServerError ||
		status == http.StatusBadGateway ||
		status == http.StatusServiceUnavailable:
		result.Kind = KindServerUnavailable
	default:
		result.Kind = KindUnknown
		result.Message = fmt.Sprintf("Unexpected server response (HTTP %d)", status)
		return result
	}

	result.Message = defaultMessage(result.Kind)
	return result
}

// Classify maps any error returned by [Client] to a DomainError. A
// *DomainError is returned unchanged, so classifying twice is safe.
func Classify(err error) *DomainError {
	if err == nil {
		return nil
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}

	// Cancellation is checked before the transport case: a cancelled
	// request is also a request without a response, but it is the
	// caller's decision, not a network problem.
	if errors.Is(err, context.Canceled) {
		return &DomainError{Kind: KindUnknown, Message: messageCancelled, cause: err}
	}

	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return ClassifyStatus(matrixErr.Path, matrixErr.StatusCode, err)
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) || errors.Is(err, context.DeadlineExceeded) {
		return &DomainError{Kind: KindNetworkUnavailable, Message: defaultMessage(KindNetworkUnavailable), cause: err}
	}

	var responseErr *ResponseError
	if errors.As(err, &responseErr) {
		return &DomainError{Kind: KindUnknown, Message: messageUnexpectedResponse, StatusCode: responseErr.StatusCode, cause: err}
	}

	return &DomainError{Kind: KindUnknown, Message: messageUnexpectedError, cause: err}
}

func retryAfter(cause error) time.Duration {
	var matrixErr *MatrixError
	if errors.As(cause, &matrixErr) && matrixErr.RetryAfterMS > 0 {
		return time.Duration(matrixErr.RetryAfterMS) * time.Millisecond
	}
	return 0
}

const clientPathPrefix = "/_matrix/client/"

// IsLoginPath reports whether path is the password login endpoint,
// /_matrix/client/<version>/login, optionally below a base path.
// Sub-paths such as /login/sso/redirect do not match.
func IsLoginPath(path string) bool {
	rest, ok := strings.CutSuffix(path, "/login")
	if !ok {
		return false
	}
	index := strings.LastIndex(rest, clientPathPrefix)
	if index < 0 {
		return false
	}
	version := rest[index+len(clientPathPrefix):]
	return version != "" && !strings.Contains(version, "/")
}
