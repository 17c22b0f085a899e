// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable Matrix identifiers: user
// IDs, room IDs, room aliases and event IDs. Values are parsed once at
// the boundary (command-line arguments, server responses) and carried
// as typed values afterwards, so a room alias cannot be passed where a
// user ID is expected.
//
// JSON marshaling uses the canonical string form via
// encoding.TextMarshaler. An empty JSON string unmarshals to the zero
// value.
package ref

import (
	"fmt"
	"strings"
)

// UserID is a Matrix user ID such as "@alice:example.org".
type UserID struct {
	id string
}

// ParseUserID validates a raw user ID.
func ParseUserID(raw string) (UserID, error) {
	if _, _, err := parsePrefixedID(raw, '@', "user ID"); err != nil {
		return UserID{}, err
	}
	return UserID{id: raw}, nil
}

// String returns the full user ID.
func (u UserID) String() string { return u.id }

// IsZero reports whether u is the zero value.
func (u UserID) IsZero() bool { return u.id == "" }

// Localpart returns the part between '@' and ':'. Empty for the zero
// value.
func (u UserID) Localpart() string {
	localpart, _, _ := parsePrefixedID(u.id, '@', "user ID")
	return localpart
}

// Server returns the server name after the first ':'.
func (u UserID) Server() string {
	_, server, _ := parsePrefixedID(u.id, '@', "user ID")
	return server
}

func (u UserID) MarshalText() ([]byte, error) { return []byte(u.id), nil }

func (u *UserID) UnmarshalText(data []byte) error {
	return unmarshalInto(data, u, ParseUserID)
}

// RoomID is a server-assigned room ID such as "!abc123:example.org".
type RoomID struct {
	id string
}

// ParseRoomID validates a raw room ID.
func ParseRoomID(raw string) (RoomID, error) {
	if _, _, err := parsePrefixedID(raw, '!', "room ID"); err != nil {
		return RoomID{}, err
	}
	return RoomID{id: raw}, nil
}

func (r RoomID) String() string { return r.id }
func (r RoomID) IsZero() bool   { return r.id == "" }

func (r RoomID) MarshalText() ([]byte, error) { return []byte(r.id), nil }

func (r *RoomID) UnmarshalText(data []byte) error {
	return unmarshalInto(data, r, ParseRoomID)
}

// RoomAlias is a human-readable room name such as "#lobby:example.org".
type RoomAlias struct {
	alias string
}

// ParseRoomAlias validates a raw room alias.
func ParseRoomAlias(raw string) (RoomAlias, error) {
	if _, _, err := parsePrefixedID(raw, '#', "room alias"); err != nil {
		return RoomAlias{}, err
	}
	return RoomAlias{alias: raw}, nil
}

func (a RoomAlias) String() string { return a.alias }
func (a RoomAlias) IsZero() bool   { return a.alias == "" }

func (a RoomAlias) MarshalText() ([]byte, error) { return []byte(a.alias), nil }

func (a *RoomAlias) UnmarshalText(data []byte) error {
	return unmarshalInto(data, a, ParseRoomAlias)
}

// RoomReference is either a room ID or a room alias: the two forms the
// join endpoint accepts.
type RoomReference struct {
	value string
}

// ParseRoomReference accepts "!id:server" or "#alias:server".
func ParseRoomReference(raw string) (RoomReference, error) {
	if strings.HasPrefix(raw, "#") {
		alias, err := ParseRoomAlias(raw)
		if err != nil {
			return RoomReference{}, err
		}
		return RoomReference{value: alias.String()}, nil
	}
	roomID, err := ParseRoomID(raw)
	if err != nil {
		return RoomReference{}, fmt.Errorf("expected a room ID (!id:server) or alias (#alias:server): %w", err)
	}
	return RoomReference{value: roomID.String()}, nil
}

func (r RoomReference) String() string { return r.value }
func (r RoomReference) IsZero() bool   { return r.value == "" }

// IsAlias reports whether the reference is a room alias.
func (r RoomReference) IsAlias() bool { return strings.HasPrefix(r.value, "#") }

// EventID is a timeline event ID. Room versions 4 and later use
// "$base64hash" with no server suffix, so the only check is the '$'
// sigil and a non-empty remainder.
type EventID struct {
	id string
}

// ParseEventID validates a raw event ID.
func ParseEventID(raw string) (EventID, error) {
	if len(raw) < 2 || raw[0] != '$' {
		return EventID{}, fmt.Errorf("invalid event ID %q: must be '$' followed by an opaque ID", raw)
	}
	return EventID{id: raw}, nil
}

func (e EventID) String() string { return e.id }
func (e EventID) IsZero() bool   { return e.id == "" }

func (e EventID) MarshalText() ([]byte, error) { return []byte(e.id), nil }

func (e *EventID) UnmarshalText(data []byte) error {
	return unmarshalInto(data, e, ParseEventID)
}

// EventType is a Matrix event type such as "m.room.message". It needs
// no validation; the named type keeps it from being confused with other
// strings.
type EventType string

func (t EventType) String() string { return string(t) }

// Event types the client renders.
const (
	EventRoomMessage EventType = "m.room.message"
	EventRoomMember  EventType = "m.room.member"
	EventRoomCreate  EventType = "m.room.create"
	EventRoomName    EventType = "m.room.name"
	EventRoomTopic   EventType = "m.room.topic"
	EventRoomAvatar  EventType = "m.room.avatar"
)

func unmarshalInto[T any](data []byte, target *T, parse func(string) (T, error)) error {
	if len(data) == 0 {
		var zero T
		*target = zero
		return nil
	}
	parsed, err := parse(string(data))
	if err != nil {
		return err
	}
	*target = parsed
	return nil
}

// parsePrefixedID splits "<sigil>localpart:server".
func parsePrefixedID(identifier string, sigil byte, kind string) (localpart, server string, err error) {
	if len(identifier) < 2 || identifier[0] != sigil {
		return "", "", fmt.Errorf("invalid %s %q: must start with %c", kind, identifier, sigil)
	}
	colonIndex := strings.IndexByte(identifier[1:], ':')
	if colonIndex < 0 {
		return "", "", fmt.Errorf("invalid %s %q: missing :server", kind, identifier)
	}
	colonIndex++
	if colonIndex < 2 {
		return "", "", fmt.Errorf("invalid %s %q: empty localpart", kind, identifier)
	}
	localpart = identifier[1:colonIndex]
	server = identifier[colonIndex+1:]
	if server == "" {
		return "", "", fmt.Errorf("invalid %s %q: empty server", kind, identifier)
	}
	return localpart, server, nil
}
