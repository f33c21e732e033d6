package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"roomchat-service/internal/models"
)

var ErrRoomNotFound = errors.New("room not found")

// RoomRepository abstracts room lookups.
type RoomRepository interface {
	FindRoom(ctx context.Context, roomID string) (models.Room, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// FindRoom fetches a room with its member list. Ids that are not UUIDs cannot exist.
func (r *RoomRepo) FindRoom(ctx context.Context, roomID string) (models.Room, error) {
	if _, err := uuid.Parse(roomID); err != nil {
		return models.Room{}, ErrRoomNotFound
	}

	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT id, name, join_code, created_by, avatar, can_anyone_share, is_locked, is_anonymous, is_archived, created_at FROM rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, err
	}

	if err := r.db.SelectContext(ctx, &room.MemberIDs, `SELECT user_id FROM room_members WHERE room_id=$1 ORDER BY joined_at ASC`, roomID); err != nil {
		return models.Room{}, err
	}
	return room, nil
}
