// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestClassifyStatus(t *testing.T) {
	const roomsPath = "/_matrix/client/v3/publicRooms"

	tests := []struct {
		name   string
		path   string
		status int
		want   ErrorKind
	}{
		{"401 on login", LoginPath, 401, KindInvalidCredentials},
		{"403 on login", LoginPath, 403, KindInvalidCredentials},
		{"401 elsewhere", roomsPath, 401, KindSessionExpired},
		{"403 elsewhere", roomsPath, 403, KindForbidden},
		{"404", roomsPath, 404, KindNotFound},
		{"429", roomsPath, 429, KindRateLimited},
		{"429 on login", LoginPath, 429, KindRateLimited},
		{"500", roomsPath, 500, KindServerUnavailable},
		{"502", roomsPath, 502, KindServerUnavailable},
		{"503", roomsPath, 503, KindServerUnavailable},
		{"504", roomsPath, 504, KindUnknown},
		{"400", roomsPath, 400, KindUnknown},
		{"418", roomsPath, 418, KindUnknown},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := ClassifyStatus(test.path, test.status, nil)
			if result.Kind != test.want {
				t.Errorf("Kind = %v, want %v", result.Kind, test.want)
			}
			if result.Message == "" {
				t.Error("empty message")
			}
			if result.StatusCode != test.status {
				t.Errorf("StatusCode = %d", result.StatusCode)
			}
		})
	}
}

func TestClassifyStatus_UnknownStatusMessage(t *testing.T) {
	result := ClassifyStatus("/_matrix/client/v3/publicRooms", 418, nil)
	if result.Message != "Unexpected server response (HTTP 418)" {
		t.Errorf("Message = %q", result.Message)
	}
}

func TestClassify(t *testing.T) {
	secretText := "internal detail: goroutine 17 [running]"

	tests := []struct {
		name        string
		err         error
		wantKind    ErrorKind
		wantMessage string
	}{
		{
			name:     "matrix error on login",
			err:      fmt.Errorf("messaging: login failed: %w", &MatrixError{Code: "M_FORBIDDEN", Message: secretText, StatusCode: 403, Method: "POST", Path: LoginPath}),
			wantKind: KindInvalidCredentials,
		},
		{
			name:     "limit code without 429",
			err:      &MatrixError{Code: ErrCodeLimitExceeded, Message: secretText, StatusCode: 400, Path: "/_matrix/client/v3/publicRooms"},
			wantKind: KindUnknown,
		},
		{
			name:     "limit code on login 401",
			err:      &MatrixError{Code: ErrCodeLimitExceeded, Message: secretText, StatusCode: 401, Path: LoginPath},
			wantKind: KindInvalidCredentials,
		},
		{
			name:     "unknown token",
			err:      &MatrixError{Code: "M_UNKNOWN_TOKEN", Message: secretText, StatusCode: 401, Path: "/_matrix/client/v3/account/whoami"},
			wantKind: KindSessionExpired,
		},
		{
			name: "connection refused",
			err: &TransportError{Method: "GET", Path: "/x", Err: &url.Error{
				Op: "Get", URL: "https://matrix.example.org/x",
				Err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New(secretText)},
			}},
			wantKind:    KindNetworkUnavailable,
			wantMessage: "Network error. Check your connection",
		},
		{
			name:     "dns failure",
			err:      &TransportError{Method: "GET", Path: "/x", Err: &net.DNSError{Err: "no such host", Name: "matrix.invalid", IsNotFound: true}},
			wantKind: KindNetworkUnavailable,
		},
		{
			name:     "deadline",
			err:      &TransportError{Method: "GET", Path: "/x", Err: &url.Error{Op: "Get", URL: "u", Err: context.DeadlineExceeded}},
			wantKind: KindNetworkUnavailable,
		},
		{
			name:        "cancelled",
			err:         &TransportError{Method: "GET", Path: "/x", Err: &url.Error{Op: "Get", URL: "u", Err: context.Canceled}},
			wantKind:    KindUnknown,
			wantMessage: "Request cancelled",
		},
		{
			name:        "malformed body",
			err:         &ResponseError{Method: "GET", Path: "/x", StatusCode: 200, Err: errors.New(secretText)},
			wantKind:    KindUnknown,
			wantMessage: "Unexpected response from server",
		},
		{
			name:     "anything else",
			err:      errors.New(secretText),
			wantKind: KindUnknown,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := Classify(test.err)
			if result.Kind != test.wantKind {
				t.Errorf("Kind = %v, want %v", result.Kind, test.wantKind)
			}
			if test.wantMessage != "" && result.Message != test.wantMessage {
				t.Errorf("Message = %q, want %q", result.Message, test.wantMessage)
			}
			if strings.Contains(result.Message, "goroutine") || strings.Contains(result.Message, "internal detail") {
				t.Errorf("Message leaks the cause: %q", result.Message)
			}
			if !errors.Is(result, test.err) {
				t.Error("cause not reachable through Unwrap")
			}
		})
	}
}

func TestClassify_RateLimitRetryAfter(t *testing.T) {
	result := Classify(&MatrixError{Code: ErrCodeLimitExceeded, StatusCode: 429, RetryAfterMS: 2500, Path: "/_matrix/client/v3/join/x"})
	if result.Kind != KindRateLimited {
		t.Fatalf("Kind = %v", result.Kind)
	}
	if result.RetryAfter != 2500*time.Millisecond {
		t.Errorf("RetryAfter = %v", result.RetryAfter)
	}
}

func TestClassify_Idempotent(t *testing.T) {
	inputs := []error{
		&MatrixError{Code: "M_UNKNOWN_TOKEN", StatusCode: 401, Path: "/_matrix/client/v3/publicRooms"},
		&MatrixError{Code: ErrCodeLimitExceeded, StatusCode: 429, RetryAfterMS: 100, Path: LoginPath},
		&TransportError{Method: "GET", Path: "/x", Err: errors.New("connection refused")},
		&ResponseError{StatusCode: 200, Err: errors.New("bad json")},
	}
	for _, input := range inputs {
		first := Classify(input)
		second := Classify(input)
		if first == second {
			t.Error("Classify returned a shared value; want a fresh value per call")
		}
		if !first.Equal(second) {
			t.Errorf("Classify(%v) not stable: %+v vs %+v", input, first, second)
		}

		// A DomainError passes through unchanged.
		if again := Classify(first); again != first {
			t.Error("classifying a DomainError produced a new value")
		}
	}
}

func TestClassify_Nil(t *testing.T) {
	if Classify(nil) != nil {
		t.Error("Classify(nil) != nil")
	}
}

func TestIsKind(t *testing.T) {
	wrapped := fmt.Errorf("repository: %w", NewDomainError(KindSessionExpired, "", nil))
	if !IsKind(wrapped, KindSessionExpired) {
		t.Error("IsKind did not see through wrapping")
	}
	if IsKind(wrapped, KindForbidden) {
		t.Error("IsKind matched the wrong kind")
	}
	if IsKind(errors.New("plain"), KindUnknown) {
		t.Error("IsKind matched a non-domain error")
	}
}

func TestDomainError_Equal(t *testing.T) {
	a := &DomainError{Kind: KindNotFound, Message: "Not found", StatusCode: 404, cause: errors.New("one")}
	b := &DomainError{Kind: KindNotFound, Message: "Not found", StatusCode: 404, cause: errors.New("two")}
	if !a.Equal(b) {
		t.Error("errors differing only in cause are not Equal")
	}
	c := &DomainError{Kind: KindNotFound, Message: "Not found", StatusCode: 410}
	if a.Equal(c) {
		t.Error("errors with different status are Equal")
	}
	var nilErr *DomainError
	if a.Equal(nilErr) || !nilErr.Equal(nil) {
		t.Error("nil handling")
	}
}
