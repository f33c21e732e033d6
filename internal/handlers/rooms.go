package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roomchat-service/internal/ws"
)

// LiveStats is the read side of the websocket hub.
type LiveStats interface {
	ConnectionCount() int
	ActiveRooms() []ws.RoomStats
	RoomStats(roomID string) ws.RoomStats
}

// RoomStatsHandler exposes live room activity.
type RoomStatsHandler struct {
	stats LiveStats
}

// NewRoomStatsHandler constructs a RoomStatsHandler.
func NewRoomStatsHandler(stats LiveStats) *RoomStatsHandler {
	return &RoomStatsHandler{stats: stats}
}

// ListActiveRooms lists rooms with live connections.
func (h *RoomStatsHandler) ListActiveRooms(c *gin.Context) {
	rooms := h.stats.ActiveRooms()
	c.JSON(http.StatusOK, gin.H{
		"rooms":       rooms,
		"connections": h.stats.ConnectionCount(),
	})
}

// GetRoomStats reports live connections for one room.
func (h *RoomStatsHandler) GetRoomStats(c *gin.Context) {
	roomID := c.Param("room_id")
	if roomID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	c.JSON(http.StatusOK, h.stats.RoomStats(roomID))
}
