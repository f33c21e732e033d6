package ws

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roomchat-service/internal/logging"
	"roomchat-service/internal/mocks"
	"roomchat-service/internal/models"
)

type fakeCache struct {
	recent    []models.Message
	hit       bool
	readErr   error
	filled    map[string][]models.Message
	appended  []models.Message
	fillCalls int
}

func (c *fakeCache) Recent(context.Context, string, int) ([]models.Message, bool, error) {
	return c.recent, c.hit, c.readErr
}

func (c *fakeCache) Fill(_ context.Context, roomID string, msgs []models.Message) error {
	if c.filled == nil {
		c.filled = make(map[string][]models.Message)
	}
	c.filled[roomID] = msgs
	c.fillCalls++
	return nil
}

func (c *fakeCache) Append(_ context.Context, msg models.Message) error {
	c.appended = append(c.appended, msg)
	return nil
}

func newestFirst() []models.Message {
	return []models.Message{
		{ID: "m3", RoomID: "r1", Kind: models.KindSystem, Body: "third"},
		{ID: "m2", RoomID: "r1", Kind: models.KindSystem, Body: "second"},
		{ID: "m1", RoomID: "r1", Kind: models.KindSystem, Body: "first"},
	}
}

func ids(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestLoadRecentReturnsChronological(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	repo.On("RecentMessages", mock.Anything, "r1", 50).Return(newestFirst(), nil).Once()
	loader := NewHistoryLoader(repo, nil, logging.Discard())

	msgs, err := loader.LoadRecent(context.Background(), "r1", 50)

	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(msgs))
	repo.AssertExpectations(t)
}

func TestLoadRecentDefaultsLimit(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	repo.On("RecentMessages", mock.Anything, "r1", DefaultHistoryLimit).Return([]models.Message{}, nil).Once()
	loader := NewHistoryLoader(repo, nil, logging.Discard())

	msgs, err := loader.LoadRecent(context.Background(), "r1", 0)

	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)
	repo.AssertExpectations(t)
}

func TestLoadRecentStoreError(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	repo.On("RecentMessages", mock.Anything, "r1", 50).Return(nil, assert.AnError).Once()
	loader := NewHistoryLoader(repo, &fakeCache{}, logging.Discard())

	_, err := loader.LoadRecent(context.Background(), "r1", 50)

	assert.ErrorIs(t, err, assert.AnError)
}

func TestLoadRecentCacheHitSkipsStore(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	cache := &fakeCache{recent: newestFirst(), hit: true}
	loader := NewHistoryLoader(repo, cache, logging.Discard())

	msgs, err := loader.LoadRecent(context.Background(), "r1", 50)

	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(msgs))
	assert.Equal(t, []string{"m3", "m2", "m1"}, ids(cache.recent), "cache slice must not be mutated")
	repo.AssertNotCalled(t, "RecentMessages", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoadRecentCacheMissFills(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	repo.On("RecentMessages", mock.Anything, "r1", 50).Return(newestFirst(), nil).Once()
	cache := &fakeCache{}
	loader := NewHistoryLoader(repo, cache, logging.Discard())

	msgs, err := loader.LoadRecent(context.Background(), "r1", 50)

	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(msgs))
	assert.Equal(t, []string{"m3", "m2", "m1"}, ids(cache.filled["r1"]))
}

func TestLoadRecentCacheErrorFallsBack(t *testing.T) {
	repo := new(mocks.MessageRepositoryMock)
	repo.On("RecentMessages", mock.Anything, "r1", 50).Return(newestFirst(), nil).Once()
	loader := NewHistoryLoader(repo, &fakeCache{readErr: assert.AnError}, logging.Discard())

	msgs, err := loader.LoadRecent(context.Background(), "r1", 50)

	require.NoError(t, err)
	assert.Len(t, msgs, 3)
	repo.AssertExpectations(t)
}

func TestRouterRemembersPersistedMessages(t *testing.T) {
	f := newFixture(t)
	cache := &fakeCache{}
	f.router.history = NewHistoryLoader(f.store, cache, logging.Discard())
	f.room(sharedRoom())
	a, _ := f.connect("A", "alice")

	f.join(t, a, "r1")
	f.send(t, a, map[string]any{"type": "message", "text": "hello"})

	require.Len(t, cache.appended, 2)
	assert.Equal(t, "alice joined the room", cache.appended[0].Body)
	assert.Equal(t, "hello", cache.appended[1].Body)
	assert.Equal(t, 1, cache.fillCalls)
}
