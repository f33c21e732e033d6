package ws

import (
	"context"
	"log/slog"
	"time"

	"roomchat-service/internal/repositories"
	"roomchat-service/internal/telemetry"
)

// Options tunes the hub.
type Options struct {
	HeartbeatInterval time.Duration
	ClientTimeout     time.Duration
	HistoryLimit      int
}

// Hub owns the live connection state of the process: sessions, room subscriptions, the
// frame router and the heartbeat.
type Hub struct {
	registry  *Registry
	rooms     *RoomIndex
	router    *Router
	heartbeat *Heartbeat
}

// RoomStats describes live activity in one room.
type RoomStats struct {
	RoomID            string `json:"room_id"`
	ActiveConnections int    `json:"active_connections"`
}

// NewHub wires the hub. historyCache may be nil.
func NewHub(roomRepo repositories.RoomRepository, messageRepo repositories.MessageRepository, historyCache HistoryCache, audit *telemetry.AuditEmitter, logger *slog.Logger, opts Options) *Hub {
	registry := NewRegistry()
	rooms := NewRoomIndex()
	router := NewRouter(RouterDeps{
		Registry:     registry,
		Rooms:        rooms,
		Broadcaster:  NewBroadcaster(rooms, logger),
		History:      NewHistoryLoader(messageRepo, historyCache, logger),
		RoomRepo:     roomRepo,
		MessageRepo:  messageRepo,
		Audit:        audit,
		Logger:       logger,
		HistoryLimit: opts.HistoryLimit,
	})
	return &Hub{
		registry:  registry,
		rooms:     rooms,
		router:    router,
		heartbeat: NewHeartbeat(registry, router, opts.HeartbeatInterval, opts.ClientTimeout, logger),
	}
}

// Start launches the heartbeat.
func (h *Hub) Start(ctx context.Context) {
	h.heartbeat.Start(ctx)
}

// Shutdown stops the heartbeat and closes every connection.
func (h *Hub) Shutdown(ctx context.Context) {
	h.heartbeat.Shutdown(ctx)
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	return h.registry.Len()
}

// ActiveRooms lists rooms with at least one live connection.
func (h *Hub) ActiveRooms() []RoomStats {
	ids := h.rooms.ActiveRoomIDs()
	out := make([]RoomStats, 0, len(ids))
	for _, id := range ids {
		out = append(out, RoomStats{RoomID: id, ActiveConnections: h.rooms.Count(id)})
	}
	return out
}

// RoomStats returns live activity for roomID. Idle rooms report zero connections.
func (h *Hub) RoomStats(roomID string) RoomStats {
	return RoomStats{RoomID: roomID, ActiveConnections: h.rooms.Count(roomID)}
}
