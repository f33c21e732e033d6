package models

import "time"

// RoomSettings holds per-room sharing and visibility switches.
type RoomSettings struct {
	CanAnyoneShare bool `db:"can_anyone_share" json:"can_anyone_share"`
	IsLocked       bool `db:"is_locked" json:"is_locked"`
	IsAnonymous    bool `db:"is_anonymous" json:"is_anonymous"`
}

// Room is a chat room. The realtime layer only reads it.
type Room struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	JoinCode   string    `db:"join_code" json:"join_code"`
	OwnerID    string    `db:"created_by" json:"owner_id"`
	Avatar     *string   `db:"avatar" json:"avatar,omitempty"`
	IsArchived bool      `db:"is_archived" json:"is_archived"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	MemberIDs  []string  `db:"-" json:"member_ids"`

	RoomSettings
}

// HasMember reports whether userID is on the room's member list.
func (r Room) HasMember(userID string) bool {
	for _, id := range r.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// CanShareCode reports whether userID may post code snippets.
func (r Room) CanShareCode(userID string) bool {
	return r.CanAnyoneShare || r.OwnerID == userID
}
