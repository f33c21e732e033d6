package ws

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"roomchat-service/internal/logging"
	"roomchat-service/internal/mocks"
	"roomchat-service/internal/models"
)

var errBrokenPipe = errors.New("broken pipe")

type fakeTransport struct {
	mu          sync.Mutex
	frames      [][]byte
	pings       int
	closed      bool
	closeCode   int
	closeReason string
	failWrites  bool
	failPings   bool
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites || f.closed {
		return errBrokenPipe
	}
	f.frames = append(f.frames, append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) WriteControl(messageType int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch messageType {
	case websocket.PingMessage:
		if f.failPings {
			return errBrokenPipe
		}
		f.pings++
	case websocket.CloseMessage:
		if len(data) >= 2 {
			f.closeCode = int(binary.BigEndian.Uint16(data))
			f.closeReason = string(data[2:])
		}
	}
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) raw() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.frames...)
}

func (f *fakeTransport) decoded(t *testing.T) []models.Frame {
	t.Helper()
	var out []models.Frame
	for _, data := range f.raw() {
		var frame models.Frame
		require.NoError(t, json.Unmarshal(data, &frame))
		out = append(out, frame)
	}
	return out
}

func (f *fakeTransport) types(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, frame := range f.decoded(t) {
		out = append(out, frame.Type)
	}
	return out
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

func (f *fakeTransport) closeInfo() (bool, int, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed, f.closeCode, f.closeReason
}

func (f *fakeTransport) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

// memoryMessages is an in-memory message store that assigns increasing timestamps.
type memoryMessages struct {
	mu         sync.Mutex
	seq        int
	rooms      map[string][]models.Message
	usernames  map[string]string
	failCreate error
	base       time.Time
}

func newMemoryMessages() *memoryMessages {
	return &memoryMessages{
		rooms:     make(map[string][]models.Message),
		usernames: map[string]string{"A": "alice", "B": "bob"},
		base:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *memoryMessages) CreateMessage(_ context.Context, nm models.NewMessage) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return models.Message{}, s.failCreate
	}
	s.seq++
	msg := models.Message{
		ID:           fmt.Sprintf("m%d", s.seq),
		RoomID:       nm.RoomID,
		AuthorID:     nm.AuthorID,
		Kind:         nm.Kind,
		Body:         nm.Body,
		CodeLanguage: nm.CodeLanguage,
		CreatedAt:    s.base.Add(time.Duration(s.seq) * time.Second),
	}
	if nm.AuthorID != nil {
		if name, ok := s.usernames[*nm.AuthorID]; ok {
			msg.AuthorUsername = &name
		}
	}
	s.rooms[nm.RoomID] = append(s.rooms[nm.RoomID], msg)
	return msg, nil
}

func (s *memoryMessages) RecentMessages(_ context.Context, roomID string, limit int) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.rooms[roomID]
	out := make([]models.Message, 0, limit)
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (s *memoryMessages) setFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreate = err
}

func (s *memoryMessages) bodies(roomID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, m := range s.rooms[roomID] {
		out = append(out, m.Body)
	}
	return out
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	registry *Registry
	rooms    *RoomIndex
	router   *Router
	roomRepo *mocks.RoomRepositoryMock
	store    *memoryMessages
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logging.Discard()
	clk := &clock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	registry := NewRegistry()
	registry.now = clk.Now
	rooms := NewRoomIndex()
	store := newMemoryMessages()
	roomRepo := new(mocks.RoomRepositoryMock)

	router := NewRouter(RouterDeps{
		Registry:    registry,
		Rooms:       rooms,
		Broadcaster: NewBroadcaster(rooms, logger),
		History:     NewHistoryLoader(store, nil, logger),
		RoomRepo:    roomRepo,
		MessageRepo: store,
		Logger:      logger,
	})
	return &fixture{registry: registry, rooms: rooms, router: router, roomRepo: roomRepo, store: store, clock: clk}
}

func (f *fixture) room(room models.Room) {
	f.roomRepo.On("FindRoom", mock.Anything, room.ID).Return(room, nil)
}

func (f *fixture) connect(userID, username string) (*Conn, *fakeTransport) {
	tr := &fakeTransport{}
	c := f.registry.Register(tr, ConnInfo{
		ConnID:      "conn-" + userID + "-" + fmt.Sprint(f.registry.Len()),
		UserID:      userID,
		Username:    username,
		ConnectedAt: f.clock.Now(),
	})
	return c, tr
}

func (f *fixture) send(t *testing.T, c *Conn, frame map[string]any) {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	f.router.HandleFrame(context.Background(), c, raw)
}

func (f *fixture) join(t *testing.T, c *Conn, roomID string) {
	t.Helper()
	f.send(t, c, map[string]any{"type": "join_room", "roomId": roomID})
}

func sharedRoom() models.Room {
	return models.Room{ID: "r1", Name: "pairing", OwnerID: "A", MemberIDs: []string{"A", "B"}}
}
