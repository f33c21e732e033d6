package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"roomchat-service/internal/models"
)

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)
	RecentMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const createMessageQuery = `WITH ins AS (
        INSERT INTO messages (id, room_id, user_id, kind, body, code_language) VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, room_id, user_id, kind, body, code_language, created_at
    )
    SELECT ins.id, ins.room_id, ins.user_id, ins.kind, ins.body, ins.code_language, ins.created_at,
        u.username AS author_username, u.avatar AS author_avatar
    FROM ins LEFT JOIN users u ON u.id = ins.user_id`

const recentMessagesQuery = `SELECT m.id, m.room_id, m.user_id, m.kind, m.body, m.code_language, m.created_at,
        u.username AS author_username, u.avatar AS author_avatar
    FROM messages m
    LEFT JOIN users u ON u.id = m.user_id
    WHERE m.room_id=$1
    ORDER BY m.created_at DESC
    LIMIT $2`

// CreateMessage stores a message and returns it with the author's display fields.
func (r *MessageRepo) CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	var created models.Message
	err := r.db.GetContext(ctx, &created, createMessageQuery,
		uuid.NewString(), msg.RoomID, msg.AuthorID, string(msg.Kind), msg.Body, msg.CodeLanguage)
	return created, err
}

// RecentMessages returns up to limit messages of a room, newest first.
func (r *MessageRepo) RecentMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	msgs := []models.Message{}
	err := r.db.SelectContext(ctx, &msgs, recentMessagesQuery, roomID, limit)
	return msgs, err
}
