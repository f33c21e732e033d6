package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"roomchat-service/internal/models"
)

const defaultTTL = time.Hour

// HistoryCache keeps the newest messages of each room in a capped Redis list, newest first.
// A room's list only exists once it has been filled from the store, so appends never
// create a partial history. Redis drops empty lists, so rooms without messages are never
// cached and always read through.
type HistoryCache struct {
	client   *redis.Client
	capacity int
	ttl      time.Duration
}

// NewHistoryCache builds a cache holding up to capacity messages per room.
func NewHistoryCache(client *redis.Client, capacity int) *HistoryCache {
	return &HistoryCache{client: client, capacity: capacity, ttl: defaultTTL}
}

func roomKey(roomID string) string {
	return fmt.Sprintf("roomchat:room:%s:recent", roomID)
}

// Recent returns up to limit cached messages, newest first. ok is false on a miss.
func (c *HistoryCache) Recent(ctx context.Context, roomID string, limit int) ([]models.Message, bool, error) {
	if limit > c.capacity {
		return nil, false, nil
	}

	raw, err := c.client.LRange(ctx, roomKey(roomID), 0, int64(limit-1)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}

	msgs := make([]models.Message, 0, len(raw))
	for _, item := range raw {
		var m models.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			return nil, false, fmt.Errorf("decode cached message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, true, nil
}

// Fill replaces a room's cached list with msgs, which must be newest first.
func (c *HistoryCache) Fill(ctx context.Context, roomID string, msgs []models.Message) error {
	key := roomKey(roomID)
	if len(msgs) > c.capacity {
		msgs = msgs[:c.capacity]
	}

	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		values = append(values, b)
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) > 0 {
			pipe.RPush(ctx, key, values...)
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	return err
}

// Append records a newly persisted message if the room is already cached.
func (c *HistoryCache) Append(ctx context.Context, msg models.Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := roomKey(msg.RoomID)
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPushX(ctx, key, b)
		pipe.LTrim(ctx, key, 0, int64(c.capacity-1))
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	return err
}
