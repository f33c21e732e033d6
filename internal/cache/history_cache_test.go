package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat-service/internal/models"
)

func newTestCache(t *testing.T, capacity int) (*HistoryCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewHistoryCache(rdb, capacity), mr
}

func textMessage(roomID string, n int) models.Message {
	author := "u1"
	username := "alice"
	return models.Message{
		ID:             fmt.Sprintf("m%d", n),
		RoomID:         roomID,
		AuthorID:       &author,
		AuthorUsername: &username,
		Kind:           models.KindText,
		Body:           fmt.Sprintf("hello %d", n),
		CreatedAt:      time.Unix(int64(n), 0).UTC(),
	}
}

func TestRecentMissBeforeFill(t *testing.T) {
	c, _ := newTestCache(t, 5)

	msgs, ok, err := c.Recent(context.Background(), "r1", 5)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, msgs)
}

func TestFillThenRecentKeepsOrderAndAuthor(t *testing.T) {
	c, mr := newTestCache(t, 5)
	ctx := context.Background()

	newestFirst := []models.Message{textMessage("r1", 3), textMessage("r1", 2), textMessage("r1", 1)}
	require.NoError(t, c.Fill(ctx, "r1", newestFirst))
	assert.True(t, mr.Exists(roomKey("r1")))

	msgs, ok, err := c.Recent(ctx, "r1", 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m3", msgs[0].ID)
	assert.Equal(t, "m1", msgs[2].ID)
	require.NotNil(t, msgs[0].Author())
	assert.Equal(t, "alice", msgs[0].Author().Username)
}

func TestAppendTrimsToCapacity(t *testing.T) {
	c, _ := newTestCache(t, 3)
	ctx := context.Background()

	require.NoError(t, c.Fill(ctx, "r1", []models.Message{textMessage("r1", 3), textMessage("r1", 2), textMessage("r1", 1)}))
	require.NoError(t, c.Append(ctx, textMessage("r1", 4)))

	msgs, ok, err := c.Recent(ctx, "r1", 3)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"m4", "m3", "m2"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
}

func TestAppendDoesNotCreatePartialHistory(t *testing.T) {
	c, mr := newTestCache(t, 3)
	ctx := context.Background()

	require.NoError(t, c.Append(ctx, textMessage("r2", 1)))
	assert.False(t, mr.Exists(roomKey("r2")))

	_, ok, err := c.Recent(ctx, "r2", 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecentLimitAboveCapacityIsMiss(t *testing.T) {
	c, _ := newTestCache(t, 2)
	ctx := context.Background()

	require.NoError(t, c.Fill(ctx, "r1", []models.Message{textMessage("r1", 2), textMessage("r1", 1)}))

	_, ok, err := c.Recent(ctx, "r1", 10)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFillEmptyLeavesRoomUncached(t *testing.T) {
	c, mr := newTestCache(t, 2)
	ctx := context.Background()

	require.NoError(t, c.Fill(ctx, "r1", nil))
	assert.False(t, mr.Exists(roomKey("r1")))
}
