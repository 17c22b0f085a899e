// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/parlor/messaging"
)

// ErrorCategory classifies command errors so that scripts can decide
// whether to retry, fix their input, or re-authenticate without parsing
// message text. Each category maps to its own exit code.
type ErrorCategory string

const (
	// CategoryValidation: the caller provided invalid input. Fix the
	// input and retry.
	CategoryValidation ErrorCategory = "validation"

	// CategoryAuthentication: credentials were rejected or the stored
	// session is no longer valid. Log in again.
	CategoryAuthentication ErrorCategory = "authentication"

	// CategoryNotFound: a referenced room does not exist.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryForbidden: the user lacks permission.
	CategoryForbidden ErrorCategory = "forbidden"

	// CategoryTransient: network error, server error or rate limit.
	// Back off and retry.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal: an unexpected failure, including local storage
	// errors. Report rather than retry.
	CategoryInternal ErrorCategory = "internal"
)

// ExitCode returns the process exit code for the category.
func (c ErrorCategory) ExitCode() int {
	switch c {
	case CategoryValidation:
		return 2
	case CategoryAuthentication:
		return 3
	case CategoryTransient:
		return 4
	default:
		return 1
	}
}

// ToolError is a categorized error returned by CLI commands. It wraps
// the underlying error, preserving the chain for errors.Is and
// errors.As. Use the constructors rather than building one directly.
type ToolError struct {
	Category ErrorCategory
	Err      error
}

// Error returns the underlying message. The category is not included.
func (e *ToolError) Error() string { return e.Err.Error() }

func (e *ToolError) Unwrap() error { return e.Err }

// Validation creates a validation error: the caller provided bad input.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error: an unexpected failure or I/O error.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}

// Domain wraps an error returned by a repository. A classified
// request failure keeps its display message and is categorized by
// kind; anything else is internal.
func Domain(err error) *ToolError {
	var domainErr *messaging.DomainError
	if !errors.As(err, &domainErr) {
		return &ToolError{Category: CategoryInternal, Err: err}
	}
	return &ToolError{Category: categoryForKind(domainErr.Kind), Err: domainErr}
}

func categoryForKind(kind messaging.ErrorKind) ErrorCategory {
	switch kind {
	case messaging.KindInvalidCredentials, messaging.KindSessionExpired:
		return CategoryAuthentication
	case messaging.KindForbidden:
		return CategoryForbidden
	case messaging.KindNotFound:
		return CategoryNotFound
	case messaging.KindRateLimited, messaging.KindServerUnavailable, messaging.KindNetworkUnavailable:
		return CategoryTransient
	default:
		return CategoryInternal
	}
}

// ExitError signals a non-zero exit code without printing an extra
// error message. The command has already written its own output.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// ExitCode returns the process exit code for err: the ExitError code,
// the ToolError category code, or 1.
func ExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Category.ExitCode()
	}
	return 1
}
