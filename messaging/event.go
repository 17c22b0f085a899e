// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"time"

	"github.com/bureau-foundation/parlor/lib/ref"
)

// Event is a Matrix timeline event.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           ref.EventType  `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
}

// Timestamp returns the origin server time.
func (e Event) Timestamp() time.Time {
	return time.UnixMilli(e.OriginServerTS)
}

// SenderLocalpart returns the sender without '@' and server, for
// compact display.
func (e Event) SenderLocalpart() string {
	return e.Sender.Localpart()
}

// IsTextMessage reports whether e is an m.text message.
func (e Event) IsTextMessage() bool {
	return e.Type == ref.EventRoomMessage && e.contentString("msgtype") == "m.text"
}

// Visible reports whether a timeline view shows e. Receipts, reactions,
// redactions, power levels and other bookkeeping events are hidden.
func (e Event) Visible() bool {
	switch e.Type {
	case ref.EventRoomMessage, ref.EventRoomMember, ref.EventRoomName,
		ref.EventRoomTopic, ref.EventRoomAvatar, ref.EventRoomCreate:
		return true
	default:
		return false
	}
}

// Body renders e as one line of text.
func (e Event) Body() string {
	switch e.Type {
	case ref.EventRoomMessage:
		body := e.contentString("body")
		switch e.contentString("msgtype") {
		case "m.text":
			if body == "" {
				return "[Empty message]"
			}
			return body
		case "m.image":
			return "Image"
		case "m.file":
			return "File"
		case "m.video":
			return "Video"
		case "m.audio":
			return "Audio"
		default:
			if body == "" {
				return "[Unknown message type]"
			}
			return body
		}
	case ref.EventRoomMember:
		switch e.contentString("membership") {
		case "join":
			return e.SenderLocalpart() + " joined the room"
		case "leave":
			return e.SenderLocalpart() + " left the room"
		case "invite":
			return e.SenderLocalpart() + " was invited"
		default:
			return "[Membership event]"
		}
	case ref.EventRoomCreate:
		return "[Room created]"
	case ref.EventRoomName:
		return "Room name changed to: " + e.contentString("name")
	case ref.EventRoomTopic:
		return "Room topic: " + e.contentString("topic")
	default:
		return "[System event: " + e.Type.String() + "]"
	}
}

func (e Event) contentString(key string) string {
	value, _ := e.Content[key].(string)
	return value
}
