// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"errors"
	"fmt"
)

// MatrixError is a non-2xx response from the homeserver. Callers
// extract it with errors.As:
//
//	var matrixErr *MatrixError
//	if errors.As(err, &matrixErr) && matrixErr.Code == ErrCodeForbidden { ... }
type MatrixError struct {
	// Code is the Matrix error code (e.g., "M_FORBIDDEN"). Responses
	// whose body is not a Matrix error document get ErrCodeUnknown.
	Code string `json:"errcode"`

	// Message is the server's description. Diagnostic only; never
	// shown to users as is.
	Message string `json:"error"`

	// RetryAfterMS is the server's backoff hint on M_LIMIT_EXCEEDED,
	// from the body or, failing that, the Retry-After header.
	RetryAfterMS int64 `json:"retry_after_ms,omitempty"`

	StatusCode int    `json:"-"`
	Method     string `json:"-"`
	Path       string `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s %s: %s (%d): %s", e.Method, e.Path, e.Code, e.StatusCode, e.Message)
}

// TransportError is a request that produced no HTTP response: refused
// connection, DNS failure, TLS failure, timeout or cancellation.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("matrix: %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ResponseError is a 2xx response whose body could not be read or
// decoded.
type ResponseError struct {
	Method     string
	Path       string
	StatusCode int
	Err        error
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("matrix: %s %s: malformed %d response: %v", e.Method, e.Path, e.StatusCode, e.Err)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// Standard Matrix error codes.
const (
	ErrCodeForbidden       = "M_FORBIDDEN"
	ErrCodeUnknownToken    = "M_UNKNOWN_TOKEN"
	ErrCodeMissingToken    = "M_MISSING_TOKEN"
	ErrCodeNotFound        = "M_NOT_FOUND"
	ErrCodeLimitExceeded   = "M_LIMIT_EXCEEDED"
	ErrCodeUnrecognized    = "M_UNRECOGNIZED"
	ErrCodeUnknown         = "M_UNKNOWN"
	ErrCodeInvalidParam    = "M_INVALID_PARAM"
	ErrCodeUserDeactivated = "M_USER_DEACTIVATED"
)

// IsMatrixError checks whether err is a *MatrixError with the given code.
func IsMatrixError(err error, code string) bool {
	var matrixErr *MatrixError
	if errors.As(err, &matrixErr) {
		return matrixErr.Code == code
	}
	return false
}
