package models

import (
	"encoding/json"
	"time"
)

// Outbound frame types.
const (
	FrameConnected      = "connected"
	FrameMessageHistory = "message_history"
	FrameRoomJoined     = "room_joined"
	FrameRoomLeft       = "room_left"
	FrameMessage        = "message"
	FrameCode           = "code"
	FrameSystem         = "system"
	FrameError          = "error"
)

// Inbound frame types.
const (
	InboundJoinRoom  = "join_room"
	InboundLeaveRoom = "leave_room"
	InboundMessage   = "message"
	InboundCode      = "code"
)

// Frame is every server-to-client message. Unused fields are omitted on the wire.
type Frame struct {
	Type      string     `json:"type"`
	ID        string     `json:"id,omitempty"`
	RoomID    string     `json:"roomId,omitempty"`
	User      *Author    `json:"user,omitempty"`
	Text      string     `json:"text,omitempty"`
	Code      string     `json:"code,omitempty"`
	Language  string     `json:"language,omitempty"`
	Message   string     `json:"message,omitempty"`
	Messages  *[]Frame   `json:"messages,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// InboundFrame is a client-to-server message. Text is kept raw so a non-string value
// can be rejected with an error frame instead of failing the whole decode.
type InboundFrame struct {
	Type     string          `json:"type"`
	RoomID   string          `json:"roomId"`
	Text     json.RawMessage `json:"text"`
	Code     string          `json:"code"`
	Language string          `json:"language"`
}

// TextValue returns the text field when it is a non-empty JSON string.
func (f InboundFrame) TextValue() (string, bool) {
	if len(f.Text) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(f.Text, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

// ConnectedFrame acknowledges a successful handshake.
func ConnectedFrame() Frame {
	return Frame{Type: FrameConnected, Message: "Connected successfully"}
}

// HistoryFrame wraps replayed messages, oldest first.
func HistoryFrame(msgs []Message) Frame {
	frames := make([]Frame, 0, len(msgs))
	for _, m := range msgs {
		frames = append(frames, m.ToFrame())
	}
	return Frame{Type: FrameMessageHistory, Messages: &frames}
}

// RoomJoinedFrame acknowledges a join.
func RoomJoinedFrame(roomID string) Frame {
	return Frame{Type: FrameRoomJoined, RoomID: roomID, Message: "Joined room successfully"}
}

// RoomLeftFrame acknowledges a leave.
func RoomLeftFrame() Frame {
	return Frame{Type: FrameRoomLeft, Message: "Left room successfully"}
}

// ErrorFrame reports an application-level failure to the acting peer.
func ErrorFrame(msg string) Frame {
	return Frame{Type: FrameError, Message: msg}
}
