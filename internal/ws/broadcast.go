package ws

import (
	"encoding/json"
	"log/slog"

	"roomchat-service/internal/observability"
)

// Broadcaster fans a payload out to every connection in a room.
type Broadcaster struct {
	rooms  *RoomIndex
	logger *slog.Logger
}

// NewBroadcaster creates a broadcaster over rooms.
func NewBroadcaster(rooms *RoomIndex, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{rooms: rooms, logger: logger}
}

// Broadcast serializes payload once and writes it to every member of roomID except
// exclude. A failed write drops that recipient's transport; its read loop then runs the
// normal disconnect. It returns the number of successful deliveries.
func (b *Broadcaster) Broadcast(roomID string, payload any, exclude *Conn) int {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("broadcast marshal failed", "room_id", roomID, "error", err)
		return 0
	}

	delivered := 0
	for _, member := range b.rooms.MembersOf(roomID) {
		if member == exclude || !member.Writable() {
			continue
		}
		if err := member.Send(data); err != nil {
			b.logger.Warn("websocket write error", "room_id", roomID, "conn_id", member.ID(), "error", err)
			observability.IncWSDeliveryError()
			publishWSEvent(member.Info, roomID, "ws_error", err.Error())
			member.abort()
			continue
		}
		delivered++
	}
	return delivered
}
