// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package repository

import (
	"context"
	"slices"

	"github.com/bureau-foundation/parlor/lib/ref"
	"github.com/bureau-foundation/parlor/messaging"
)

const (
	DefaultPublicRoomsLimit  = 20
	DefaultRoomMessagesLimit = 50
)

// Rooms browses the public room directory and joins rooms.
type Rooms struct {
	*backend
}

// PublicRooms returns up to limit entries from the homeserver's room
// directory. limit <= 0 uses DefaultPublicRoomsLimit.
func (r *Rooms) PublicRooms(ctx context.Context, limit int) ([]messaging.PublicRoom, error) {
	if limit <= 0 {
		limit = DefaultPublicRoomsLimit
	}
	client, err := r.client()
	if err != nil {
		return nil, err
	}
	response, err := client.PublicRooms(ctx, limit)
	if err != nil {
		return nil, r.fail("public rooms", err)
	}
	return response.Chunk, nil
}

// JoinRoom joins room and returns the ID of the joined room, which
// differs from the argument when room is an alias.
func (r *Rooms) JoinRoom(ctx context.Context, room ref.RoomReference) (ref.RoomID, error) {
	client, err := r.client()
	if err != nil {
		return ref.RoomID{}, err
	}
	roomID, err := client.JoinRoom(ctx, room)
	if err != nil {
		return ref.RoomID{}, r.fail("join room", err)
	}
	return roomID, nil
}

// Messages reads room timelines.
type Messages struct {
	*backend
}

// RoomMessages returns the most recent limit events of roomID, oldest
// first. limit <= 0 uses DefaultRoomMessagesLimit.
func (m *Messages) RoomMessages(ctx context.Context, roomID ref.RoomID, limit int) ([]messaging.Event, error) {
	if limit <= 0 {
		limit = DefaultRoomMessagesLimit
	}
	client, err := m.client()
	if err != nil {
		return nil, err
	}
	response, err := client.RoomMessages(ctx, roomID, messaging.RoomMessagesOptions{
		Direction: "b",
		Limit:     limit,
	})
	if err != nil {
		return nil, m.fail("room messages", err)
	}

	// Backwards pagination returns newest first.
	events := response.Chunk
	slices.Reverse(events)
	return events, nil
}
