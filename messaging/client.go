// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bureau-foundation/parlor/lib/netutil"
	"github.com/bureau-foundation/parlor/lib/ref"
	"github.com/bureau-foundation/parlor/lib/secret"
)

// LoginPath is the password login endpoint.
const LoginPath = "/_matrix/client/v3/login"

// DeviceDisplayName is sent as the initial device name on login.
const DeviceDisplayName = "parlor"

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// HomeserverURL is the base URL of the homeserver (e.g.,
	// "https://matrix.example.org"). A trailing slash is ignored.
	HomeserverURL string

	// HTTPClient is used for all requests. Use one whose transport is a
	// [Transport] to send authenticated requests. If nil,
	// http.DefaultClient is used and no token is ever attached.
	HTTPClient *http.Client

	// Logger is used for structured logging. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Client calls the Matrix client-server API on one homeserver.
// Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for config.HomeserverURL.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL is required")
	}

	parsed, err := url.Parse(config.HomeserverURL)
	if err != nil {
		return nil, fmt.Errorf("messaging: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("messaging: HomeserverURL %q must use http or https", config.HomeserverURL)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("messaging: HomeserverURL %q has no host", config.HomeserverURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.HomeserverURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// HomeserverURL returns the normalized base URL.
func (c *Client) HomeserverURL() string {
	return c.baseURL
}

// Login authenticates with username and password. The password buffer
// is read but not closed; the caller retains ownership.
func (c *Client) Login(ctx context.Context, username string, password *secret.Buffer) (*AuthResponse, error) {
	if username == "" {
		return nil, fmt.Errorf("messaging: username is required for login")
	}
	if password == nil {
		return nil, fmt.Errorf("messaging: password is required for login")
	}

	// Password is converted to string at the JSON serialization boundary.
	request := LoginRequest{
		Type:                     "m.login.password",
		Identifier:               LoginIdentifier{Type: "m.id.user", User: username},
		Password:                 password.String(),
		InitialDeviceDisplayName: DeviceDisplayName,
	}

	var response AuthResponse
	if err := c.do(ctx, http.MethodPost, LoginPath, nil, request, &response); err != nil {
		return nil, fmt.Errorf("messaging: login failed: %w", err)
	}
	if response.AccessToken == "" || response.UserID.IsZero() {
		return nil, fmt.Errorf("messaging: login failed: %w", &ResponseError{
			Method:     http.MethodPost,
			Path:       LoginPath,
			StatusCode: http.StatusOK,
			Err:        fmt.Errorf("response has no access_token or user_id"),
		})
	}

	c.logger.Info("logged in to matrix",
		"user_id", response.UserID,
		"device_id", response.DeviceID,
	)
	return &response, nil
}

// Logout invalidates the access token on the server.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/_matrix/client/v3/logout", nil, struct{}{}, nil); err != nil {
		return fmt.Errorf("messaging: logout failed: %w", err)
	}
	return nil
}

// WhoAmI returns the user the current token belongs to.
func (c *Client) WhoAmI(ctx context.Context) (*WhoAmIResponse, error) {
	var response WhoAmIResponse
	if err := c.do(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", nil, nil, &response); err != nil {
		return nil, fmt.Errorf("messaging: whoami failed: %w", err)
	}
	return &response, nil
}

// PublicRooms lists the homeserver's public room directory. limit <= 0
// uses the server default.
func (c *Client) PublicRooms(ctx context.Context, limit int) (*PublicRoomsResponse, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var response PublicRoomsResponse
	if err := c.do(ctx, http.MethodGet, "/_matrix/client/v3/publicRooms", query, nil, &response); err != nil {
		return nil, fmt.Errorf("messaging: public rooms failed: %w", err)
	}
	return &response, nil
}

// RoomMessages fetches a page of room history.
func (c *Client) RoomMessages(ctx context.Context, roomID ref.RoomID, options RoomMessagesOptions) (*RoomMessagesResponse, error) {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/messages", url.PathEscape(roomID.String()))

	query := url.Values{}
	if options.From != "" {
		query.Set("from", options.From)
	}
	direction := options.Direction
	if direction == "" {
		direction = "b"
	}
	query.Set("dir", direction)
	if options.Limit > 0 {
		query.Set("limit", strconv.Itoa(options.Limit))
	}

	var response RoomMessagesResponse
	if err := c.do(ctx, http.MethodGet, path, query, nil, &response); err != nil {
		return nil, fmt.Errorf("messaging: room messages for %s failed: %w", roomID, err)
	}
	return &response, nil
}

// JoinRoom joins a room by ID or alias and returns the joined room ID.
func (c *Client) JoinRoom(ctx context.Context, room ref.RoomReference) (ref.RoomID, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(room.String())

	var response JoinRoomResponse
	if err := c.do(ctx, http.MethodPost, path, nil, struct{}{}, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: join room %s failed: %w", room, err)
	}

	c.logger.Info("joined room", "room", room.String(), "room_id", response.RoomID)
	return response.RoomID, nil
}

// do sends one request. A non-2xx status returns *MatrixError, a failed
// dispatch *TransportError, and an undecodable 2xx body *ResponseError.
// result may be nil when the response body is not needed.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, requestBody, result any) error {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return newMatrixError(method, path, response)
	}

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return &ResponseError{Method: method, Path: path, StatusCode: response.StatusCode, Err: err}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(responseBody, result); err != nil {
		return &ResponseError{Method: method, Path: path, StatusCode: response.StatusCode, Err: err}
	}
	return nil
}

func newMatrixError(method, path string, response *http.Response) *MatrixError {
	body := netutil.ErrorBody(response.Body)

	matrixErr := &MatrixError{}
	if err := json.Unmarshal(body, matrixErr); err != nil || matrixErr.Code == "" {
		// Proxies and load balancers answer with HTML or plain text.
		matrixErr = &MatrixError{Code: ErrCodeUnknown, Message: strings.TrimSpace(string(body))}
	}
	matrixErr.StatusCode = response.StatusCode
	matrixErr.Method = method
	matrixErr.Path = path

	if matrixErr.RetryAfterMS == 0 {
		if seconds, err := strconv.Atoi(response.Header.Get("Retry-After")); err == nil && seconds > 0 {
			matrixErr.RetryAfterMS = int64(seconds) * 1000
		}
	}
	return matrixErr
}
