// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/bureau-foundation/parlor/lib/ref"
)

// LoginRequest is the body of POST /_matrix/client/v3/login for the
// m.login.password flow.
type LoginRequest struct {
	Type                     string          `json:"type"`
	Identifier               LoginIdentifier `json:"identifier"`
	Password                 string          `json:"password"`
	InitialDeviceDisplayName string          `json:"initial_device_display_name,omitempty"`
}

// LoginIdentifier identifies the account logging in.
type LoginIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

// AuthResponse is returned by Login.
type AuthResponse struct {
	UserID      ref.UserID `json:"user_id"`
	AccessToken string     `json:"access_token"`
	DeviceID    string     `json:"device_id"`
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// PublicRoomsResponse is returned by PublicRooms.
type PublicRoomsResponse struct {
	Chunk                  []PublicRoom `json:"chunk"`
	NextBatch              string       `json:"next_batch,omitempty"`
	PrevBatch              string       `json:"prev_batch,omitempty"`
	TotalRoomCountEstimate int          `json:"total_room_count_estimate,omitempty"`
}

// PublicRoom is one entry in the room directory.
type PublicRoom struct {
	RoomID           ref.RoomID `json:"room_id"`
	Name             string     `json:"name,omitempty"`
	Topic            string     `json:"topic,omitempty"`
	CanonicalAlias   string     `json:"canonical_alias,omitempty"`
	NumJoinedMembers int        `json:"num_joined_members"`
	AvatarURL        string     `json:"avatar_url,omitempty"`
	WorldReadable    bool       `json:"world_readable"`
	GuestCanJoin     bool       `json:"guest_can_join"`
	JoinRule         string     `json:"join_rule,omitempty"`
}

// DisplayName returns the room name, falling back to the room ID.
func (r PublicRoom) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.RoomID.String()
}

// DisplayTopic returns the topic or a placeholder.
func (r PublicRoom) DisplayTopic() string {
	if r.Topic != "" {
		return r.Topic
	}
	return "No description"
}

// RoomMessagesOptions controls pagination for RoomMessages.
type RoomMessagesOptions struct {
	From      string // pagination token; empty means the live end of the timeline
	Direction string // "b" (older) or "f" (newer); defaults to "b"
	Limit     int    // max events; 0 uses the server default
}

// RoomMessagesResponse is returned by RoomMessages. With Direction "b",
// Chunk is newest first.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end,omitempty"`
	Chunk []Event `json:"chunk"`
}

// JoinRoomResponse is returned by the join endpoint.
type JoinRoomResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}
