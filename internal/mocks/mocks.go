package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"roomchat-service/internal/auth"
	"roomchat-service/internal/models"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) FindRoom(ctx context.Context, roomID string) (models.Room, error) {
	args := m.Called(ctx, roomID)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, msg)
	var created models.Message
	if val := args.Get(0); val != nil {
		created = val.(models.Message)
	}
	return created, args.Error(1)
}

func (m *MessageRepositoryMock) RecentMessages(ctx context.Context, roomID string, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

type TokenVerifierMock struct {
	mock.Mock
}

func (m *TokenVerifierMock) Verify(ctx context.Context, token string) (auth.Identity, error) {
	args := m.Called(ctx, token)
	var id auth.Identity
	if val := args.Get(0); val != nil {
		id = val.(auth.Identity)
	}
	return id, args.Error(1)
}
