package models

import "time"

// MessageKind distinguishes user chat, shared code and membership notices.
type MessageKind string

const (
	KindText   MessageKind = "text"
	KindCode   MessageKind = "code"
	KindSystem MessageKind = "system"
)

// DefaultCodeLanguage is used when a code share carries no language.
const DefaultCodeLanguage = "plaintext"

// Author carries the display fields of a message's author.
type Author struct {
	ID       string  `db:"id" json:"_id"`
	Username string  `db:"username" json:"username"`
	Avatar   *string `db:"avatar" json:"avatar,omitempty"`
}

// Message represents a persisted room message. AuthorID is nil exactly for system messages.
type Message struct {
	ID           string      `db:"id" json:"id"`
	RoomID       string      `db:"room_id" json:"room_id"`
	AuthorID     *string     `db:"user_id" json:"user_id"`
	Kind         MessageKind `db:"kind" json:"kind"`
	Body         string      `db:"body" json:"body"`
	CodeLanguage *string     `db:"code_language" json:"code_language"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`

	AuthorUsername *string `db:"author_username" json:"author_username,omitempty"`
	AuthorAvatar   *string `db:"author_avatar" json:"author_avatar,omitempty"`
}

// NewMessage is the input for persisting a message.
type NewMessage struct {
	RoomID       string
	AuthorID     *string
	Kind         MessageKind
	Body         string
	CodeLanguage *string
}

// Author resolves the joined author columns, nil for system messages.
func (m Message) Author() *Author {
	if m.AuthorID == nil {
		return nil
	}
	a := &Author{ID: *m.AuthorID, Avatar: m.AuthorAvatar}
	if m.AuthorUsername != nil {
		a.Username = *m.AuthorUsername
	}
	return a
}

// ToFrame renders the message in its outbound wire shape.
func (m Message) ToFrame() Frame {
	switch m.Kind {
	case KindSystem:
		return Frame{Type: FrameSystem, ID: m.ID, Text: m.Body, Timestamp: &m.CreatedAt}
	case KindCode:
		lang := DefaultCodeLanguage
		if m.CodeLanguage != nil && *m.CodeLanguage != "" {
			lang = *m.CodeLanguage
		}
		return Frame{Type: FrameCode, ID: m.ID, User: m.Author(), Code: m.Body, Language: lang, Timestamp: &m.CreatedAt}
	default:
		return Frame{Type: FrameMessage, ID: m.ID, User: m.Author(), Text: m.Body, Timestamp: &m.CreatedAt}
	}
}
