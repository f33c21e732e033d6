package ws

import (
	"context"
	"log/slog"
	"slices"

	"roomchat-service/internal/models"
	"roomchat-service/internal/repositories"
)

// DefaultHistoryLimit is how many messages a joining client receives.
const DefaultHistoryLimit = 50

// HistoryCache is the optional read-through cache in front of the message store.
// Implementations hold newest-first lists.
type HistoryCache interface {
	Recent(ctx context.Context, roomID string, limit int) ([]models.Message, bool, error)
	Fill(ctx context.Context, roomID string, newestFirst []models.Message) error
	Append(ctx context.Context, msg models.Message) error
}

// HistoryLoader returns a room's recent messages in chronological order.
type HistoryLoader struct {
	messages repositories.MessageRepository
	cache    HistoryCache
	logger   *slog.Logger
}

// NewHistoryLoader creates a loader. cache may be nil.
func NewHistoryLoader(messages repositories.MessageRepository, cache HistoryCache, logger *slog.Logger) *HistoryLoader {
	return &HistoryLoader{messages: messages, cache: cache, logger: logger}
}

// LoadRecent returns at most limit messages of roomID, oldest first. Cache errors fall
// back to the store.
func (l *HistoryLoader) LoadRecent(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	if l.cache != nil {
		cached, ok, err := l.cache.Recent(ctx, roomID, limit)
		if err != nil {
			l.logger.Warn("history cache read failed", "room_id", roomID, "error", err)
		} else if ok {
			return chronological(cached), nil
		}
	}

	newestFirst, err := l.messages.RecentMessages(ctx, roomID, limit)
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		if err := l.cache.Fill(ctx, roomID, newestFirst); err != nil {
			l.logger.Warn("history cache fill failed", "room_id", roomID, "error", err)
		}
	}
	return chronological(newestFirst), nil
}

// Remember pushes a freshly persisted message into the cache.
func (l *HistoryLoader) Remember(ctx context.Context, msg models.Message) {
	if l.cache == nil {
		return
	}
	if err := l.cache.Append(ctx, msg); err != nil {
		l.logger.Warn("history cache append failed", "room_id", msg.RoomID, "error", err)
	}
}

func chronological(newestFirst []models.Message) []models.Message {
	out := slices.Clone(newestFirst)
	if out == nil {
		out = []models.Message{}
	}
	slices.Reverse(out)
	return out
}
