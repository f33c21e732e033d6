package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"roomchat-service/internal/models"
	"roomchat-service/internal/observability"
	"roomchat-service/internal/repositories"
	"roomchat-service/internal/telemetry"
)

const cleanupTimeout = 5 * time.Second

// Error frame texts.
const (
	errRoomNotFound  = "Room not found"
	errNotMember     = "Not a member of this room"
	errNotInRoom     = "Not in a room"
	errInvalidText   = "Invalid message"
	errInvalidCode   = "Invalid code"
	errOwnerOnly     = "Only room owner can share code"
	errJoinFailed    = "Failed to join room"
	errSendFailed    = "Failed to send message"
	errCodeShareFail = "Failed to share code"
)

var tracer = otel.Tracer("roomchat-service/ws")

// Router validates inbound frames, applies room membership changes, persists messages and
// hands them to the broadcaster.
type Router struct {
	registry     *Registry
	rooms        *RoomIndex
	broadcaster  *Broadcaster
	history      *HistoryLoader
	roomRepo     repositories.RoomRepository
	messageRepo  repositories.MessageRepository
	audit        *telemetry.AuditEmitter
	logger       *slog.Logger
	locks        *roomLocks
	historyLimit int
}

// RouterDeps are the collaborators of a Router.
type RouterDeps struct {
	Registry     *Registry
	Rooms        *RoomIndex
	Broadcaster  *Broadcaster
	History      *HistoryLoader
	RoomRepo     repositories.RoomRepository
	MessageRepo  repositories.MessageRepository
	Audit        *telemetry.AuditEmitter
	Logger       *slog.Logger
	HistoryLimit int
}

// NewRouter creates a Router.
func NewRouter(deps RouterDeps) *Router {
	limit := deps.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Router{
		registry:     deps.Registry,
		rooms:        deps.Rooms,
		broadcaster:  deps.Broadcaster,
		history:      deps.History,
		roomRepo:     deps.RoomRepo,
		messageRepo:  deps.MessageRepo,
		audit:        deps.Audit,
		logger:       deps.Logger,
		locks:        newRoomLocks(),
		historyLimit: limit,
	}
}

// HandleFrame processes one raw inbound frame from c. Any frame counts as activity, even
// one that is then dropped.
func (rt *Router) HandleFrame(ctx context.Context, c *Conn, raw []byte) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.gone {
		return
	}

	rt.registry.Touch(c)

	var frame models.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		rt.logger.Warn("dropping malformed frame", "conn_id", c.ID(), "error", err)
		return
	}

	switch frame.Type {
	case models.InboundJoinRoom, models.InboundLeaveRoom, models.InboundMessage, models.InboundCode:
	default:
		rt.logger.Warn("dropping unknown frame type", "conn_id", c.ID(), "type", frame.Type)
		return
	}

	ctx, span := tracer.Start(ctx, "ws."+frame.Type)
	span.SetAttributes(attribute.String("conn_id", c.ID()), attribute.String("user_id", c.Info.UserID))
	defer span.End()
	observability.IncWSMessage(frame.Type)

	switch frame.Type {
	case models.InboundJoinRoom:
		rt.joinRoom(ctx, c, frame.RoomID)
	case models.InboundLeaveRoom:
		rt.leaveRoom(ctx, c)
	case models.InboundMessage:
		rt.sendText(ctx, c, frame)
	case models.InboundCode:
		rt.shareCode(ctx, c, frame)
	}
}

func (rt *Router) joinRoom(ctx context.Context, c *Conn, roomID string) {
	room, err := rt.roomRepo.FindRoom(ctx, roomID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		rt.reply(c, models.ErrorFrame(errRoomNotFound))
		return
	}
	if err != nil {
		rt.logger.Error("room lookup failed", "room_id", roomID, "conn_id", c.ID(), "error", err)
		rt.reply(c, models.ErrorFrame(errJoinFailed))
		return
	}
	if !room.HasMember(c.Info.UserID) {
		rt.reply(c, models.ErrorFrame(errNotMember))
		return
	}

	if _, ok := rt.registry.RoomOf(c); ok {
		rt.leaveRoom(ctx, c)
	}

	unlock := rt.locks.Lock(room.ID)
	defer unlock()

	history, err := rt.history.LoadRecent(ctx, room.ID, rt.historyLimit)
	if err != nil {
		rt.logger.Error("history load failed", "room_id", room.ID, "conn_id", c.ID(), "error", err)
		rt.reply(c, models.ErrorFrame(errJoinFailed))
		return
	}

	rt.registry.SetRoom(c, room.ID)
	rt.rooms.Join(room.ID, c)
	rt.reply(c, models.HistoryFrame(history))
	rt.announce(ctx, room.ID, fmt.Sprintf("%s joined the room", c.Info.Username), nil)
	rt.reply(c, models.RoomJoinedFrame(room.ID))

	rt.logger.Info("user joined room", "user_id", c.Info.UserID, "room_id", room.ID, "conn_id", c.ID())
}

// leaveRoom is a no-op when c is not in a room.
func (rt *Router) leaveRoom(ctx context.Context, c *Conn) {
	roomID, ok := rt.registry.RoomOf(c)
	if !ok {
		return
	}

	rt.detach(ctx, c, roomID, nil)
	rt.reply(c, models.RoomLeftFrame())

	rt.logger.Info("user left room", "user_id", c.Info.UserID, "room_id", roomID, "conn_id", c.ID())
}

// detach removes c from roomID and tells the remaining members.
func (rt *Router) detach(ctx context.Context, c *Conn, roomID string, exclude *Conn) {
	unlock := rt.locks.Lock(roomID)
	defer unlock()

	rt.rooms.Leave(roomID, c)
	rt.registry.ClearRoom(c)
	rt.announce(ctx, roomID, fmt.Sprintf("%s left the room", c.Info.Username), exclude)
}

func (rt *Router) sendText(ctx context.Context, c *Conn, frame models.InboundFrame) {
	roomID, ok := rt.registry.RoomOf(c)
	if !ok {
		rt.reply(c, models.ErrorFrame(errNotInRoom))
		return
	}
	text, ok := frame.TextValue()
	if !ok {
		rt.reply(c, models.ErrorFrame(errInvalidText))
		return
	}

	unlock := rt.locks.Lock(roomID)
	defer unlock()

	msg, err := rt.persist(ctx, c, models.NewMessage{
		RoomID:   roomID,
		AuthorID: &c.Info.UserID,
		Kind:     models.KindText,
		Body:     text,
	})
	if err != nil {
		rt.logger.Error("persist message failed", "room_id", roomID, "conn_id", c.ID(), "error", err)
		rt.reply(c, models.ErrorFrame(errSendFailed))
		return
	}
	rt.broadcaster.Broadcast(roomID, msg.ToFrame(), nil)
}

func (rt *Router) shareCode(ctx context.Context, c *Conn, frame models.InboundFrame) {
	roomID, ok := rt.registry.RoomOf(c)
	if !ok {
		rt.reply(c, models.ErrorFrame(errNotInRoom))
		return
	}

	room, err := rt.roomRepo.FindRoom(ctx, roomID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		rt.reply(c, models.ErrorFrame(errRoomNotFound))
		return
	}
	if err != nil {
		rt.logger.Error("room lookup failed", "room_id", roomID, "conn_id", c.ID(), "error", err)
		rt.reply(c, models.ErrorFrame(errCodeShareFail))
		return
	}
	if !room.CanShareCode(c.Info.UserID) {
		rt.audit.CodeShareDenied(ctx, roomID, c.Info.UserID, c.Info.RequestID)
		rt.reply(c, models.ErrorFrame(errOwnerOnly))
		return
	}
	if frame.Code == "" {
		rt.reply(c, models.ErrorFrame(errInvalidCode))
		return
	}

	language := frame.Language
	if language == "" {
		language = models.DefaultCodeLanguage
	}

	unlock := rt.locks.Lock(roomID)
	defer unlock()

	msg, err := rt.persist(ctx, c, models.NewMessage{
		RoomID:       roomID,
		AuthorID:     &c.Info.UserID,
		Kind:         models.KindCode,
		Body:         frame.Code,
		CodeLanguage: &language,
	})
	if err != nil {
		rt.logger.Error("persist code failed", "room_id", roomID, "conn_id", c.ID(), "error", err)
		rt.reply(c, models.ErrorFrame(errCodeShareFail))
		return
	}
	rt.broadcaster.Broadcast(roomID, msg.ToFrame(), nil)
}

// announce persists a system message and broadcasts it. The caller holds the room lock.
// A failed insert is logged and nothing is broadcast.
func (rt *Router) announce(ctx context.Context, roomID, text string, exclude *Conn) {
	msg, err := rt.persist(ctx, nil, models.NewMessage{
		RoomID: roomID,
		Kind:   models.KindSystem,
		Body:   text,
	})
	if err != nil {
		rt.logger.Error("persist system message failed", "room_id", roomID, "error", err)
		return
	}
	rt.broadcaster.Broadcast(roomID, msg.ToFrame(), exclude)
}

func (rt *Router) persist(ctx context.Context, author *Conn, nm models.NewMessage) (models.Message, error) {
	msg, err := rt.messageRepo.CreateMessage(ctx, nm)
	if err != nil {
		return models.Message{}, err
	}
	if author != nil && msg.AuthorUsername == nil {
		name := author.Info.Username
		msg.AuthorUsername = &name
	}
	rt.history.Remember(ctx, msg)
	return msg, nil
}

func (rt *Router) reply(c *Conn, frame models.Frame) {
	if err := c.SendFrame(frame); err != nil {
		rt.logger.Warn("reply failed", "conn_id", c.ID(), "type", frame.Type, "error", err)
	}
}

// Disconnect closes c with code and reason, leaves its room with a notice to the remaining
// members and unregisters it. Only the first call per connection has effect.
func (rt *Router) Disconnect(ctx context.Context, c *Conn, code int, reason string) {
	c.disconnectOnce.Do(func() {
		if err := c.CloseWith(code, reason); err != nil {
			rt.logger.Debug("close failed", "conn_id", c.ID(), "error", err)
		}

		c.opMu.Lock()
		defer c.opMu.Unlock()
		c.gone = true

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()

		if roomID, ok := rt.registry.RoomOf(c); ok {
			rt.detach(ctx, c, roomID, c)
		}
		rt.registry.Unregister(c)

		rt.logger.Info("websocket disconnected", "user_id", c.Info.UserID, "conn_id", c.ID(), "code", code, "reason", reason)
	})
}
