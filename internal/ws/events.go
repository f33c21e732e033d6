package ws

import (
	"context"
	"time"

	"roomchat-service/internal/observability"
)

const eventKind = "room"

// publishWSEvent emits a connection lifecycle event and counts it.
func publishWSEvent(info ConnInfo, roomID, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        eventKind,
			"resource_id": roomID,
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": time.Since(info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"username":  info.Username,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}

	headers := observability.BuildHeaders(info.RequestID, info.TraceID)
	_ = observability.PublishEvent(context.Background(), observability.WSRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
	observability.IncWSEvent(eventKind, event)
}
