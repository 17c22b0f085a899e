// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
)

type staticTokens struct {
	token string
	ok    bool
}

func (s staticTokens) CurrentToken() (string, bool) { return s.token, s.ok }

func TestIsLoginPath(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/_matrix/client/v3/login", true},
		{"/_matrix/client/r0/login", true},
		{"/matrix/_matrix/client/v3/login", true},
		{"/_matrix/client/v3/login/sso/redirect", false},
		{"/_matrix/client/v3/logout", false},
		{"/_matrix/client//login", false},
		{"/_matrix/client/v3/rooms/!login:example.org/messages", false},
		{"/_matrix/client/v3/join/#login:example.org", false},
		{"/login", false},
	}
	for _, test := range tests {
		if got := IsLoginPath(test.path); got != test.want {
			t.Errorf("IsLoginPath(%q) = %v, want %v", test.path, got, test.want)
		}
	}
}

func newRequest(t *testing.T, path string) *http.Request {
	t.Helper()
	request, err := http.NewRequest(http.MethodGet, "https://matrix.example.org"+path, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return request
}

func TestAuthenticate(t *testing.T) {
	withToken := staticTokens{token: "syt_token", ok: true}
	noToken := staticTokens{}

	t.Run("login path is never modified", func(t *testing.T) {
		request := newRequest(t, LoginPath)
		result, outcome := NewAuthenticator(withToken).Authenticate(request)
		if outcome != OutcomeLoginExempt {
			t.Errorf("outcome = %v", outcome)
		}
		if result != request || result.Header.Get("Authorization") != "" {
			t.Error("login request was modified")
		}
	})

	t.Run("explicit authorization wins", func(t *testing.T) {
		request := newRequest(t, "/_matrix/client/v3/account/whoami")
		request.Header.Set("Authorization", "Bearer caller-supplied")
		result, outcome := NewAuthenticator(withToken).Authenticate(request)
		if outcome != OutcomeExplicit {
			t.Errorf("outcome = %v", outcome)
		}
		if result != request {
			t.Error("request with explicit auth was replaced")
		}
		if values := result.Header.Values("Authorization"); len(values) != 1 || values[0] != "Bearer caller-supplied" {
			t.Errorf("Authorization = %v", values)
		}
	})

	t.Run("explicit empty authorization wins", func(t *testing.T) {
		request := newRequest(t, "/_matrix/client/v3/publicRooms")
		request.Header["Authorization"] = []string{""}
		result, outcome := NewAuthenticator(withToken).Authenticate(request)
		if outcome != OutcomeExplicit {
			t.Errorf("outcome = %v, want explicit", outcome)
		}
		if values := result.Header.Values("Authorization"); len(values) != 1 || values[0] != "" {
			t.Errorf("Authorization = %q, want the caller's empty value", values)
		}
	})

	t.Run("nil header", func(t *testing.T) {
		request := &http.Request{
			Method: http.MethodGet,
			URL:    &url.URL{Scheme: "https", Host: "matrix.example.org", Path: "/_matrix/client/v3/publicRooms"},
		}
		result, outcome := NewAuthenticator(withToken).Authenticate(request)
		if outcome != OutcomeAttached {
			t.Errorf("outcome = %v", outcome)
		}
		if got := result.Header.Get("Authorization"); got != "Bearer syt_token" {
			t.Errorf("Authorization = %q", got)
		}
		if request.Header != nil {
			t.Error("original request was mutated")
		}
	})

	t.Run("no token passes through unmodified", func(t *testing.T) {
		request := newRequest(t, "/_matrix/client/v3/publicRooms")
		result, outcome := NewAuthenticator(noToken).Authenticate(request)
		if outcome != OutcomeNoToken {
			t.Errorf("outcome = %v", outcome)
		}
		if result != request || result.Header.Get("Authorization") != "" {
			t.Error("request without a token was modified")
		}
	})

	t.Run("token is attached exactly once", func(t *testing.T) {
		request := newRequest(t, "/_matrix/client/v3/publicRooms")
		result, outcome := NewAuthenticator(withToken).Authenticate(request)
		if outcome != OutcomeAttached {
			t.Errorf("outcome = %v", outcome)
		}
		if values := result.Header.Values("Authorization"); len(values) != 1 || values[0] != "Bearer syt_token" {
			t.Errorf("Authorization = %v, want exactly [Bearer syt_token]", values)
		}
		if request.Header.Get("Authorization") != "" {
			t.Error("original request was mutated")
		}
	})
}

// rotatingTokens returns a different token on every read.
type rotatingTokens struct {
	counter atomic.Int64
}

func (r *rotatingTokens) CurrentToken() (string, bool) {
	return "token-" + string(rune('a'+r.counter.Add(1)%26)), true
}

func TestTransport_ConcurrentRequests(t *testing.T) {
	var (
		mutex   sync.Mutex
		headers []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		values := request.Header.Values("Authorization")
		if len(values) != 1 {
			t.Errorf("request carried %d Authorization headers", len(values))
		}
		mutex.Lock()
		headers = append(headers, request.Header.Get("Authorization"))
		mutex.Unlock()
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	tokens := &rotatingTokens{}
	client := &http.Client{Transport: NewTransport(tokens, server.Client().Transport, nil)}

	const requests = 32
	var wait sync.WaitGroup
	for range requests {
		wait.Add(1)
		go func() {
			defer wait.Done()
			response, err := client.Get(server.URL + "/_matrix/client/v3/account/whoami")
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			response.Body.Close()
		}()
	}
	wait.Wait()

	if len(headers) != requests {
		t.Fatalf("server saw %d requests, want %d", len(headers), requests)
	}
	if tokens.counter.Load() != requests {
		t.Errorf("token read %d times, want one read per request", tokens.counter.Load())
	}
}

func TestTransport_LoginNeverCarriesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if auth := request.Header.Get("Authorization"); auth != "" {
			t.Errorf("login request carried Authorization %q", auth)
		}
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{Transport: NewTransport(staticTokens{token: "stale", ok: true}, nil, nil)}
	response, err := client.Post(server.URL+LoginPath, "application/json", nil)
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	response.Body.Close()
}
