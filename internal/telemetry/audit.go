package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// AuditRoutingKey is where audit envelopes are published.
const AuditRoutingKey = "audit.roomchat"

// Audit levels.
const (
	LevelInfo = "info"
	LevelWarn = "warn"
)

// Audit actions.
const (
	ActionGeneric           = "generic"
	ActionHandshakeRejected = "ws.handshake_rejected"
	ActionCodeShareDenied   = "room.code_share_denied"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// AuditEmitter publishes security-relevant decisions of the realtime service.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	logger      *slog.Logger
	now         func() time.Time
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string `json:"level"`
	Action string `json:"action"`
	Text   string `json:"text"`
	RoomID string `json:"room_id,omitempty"`
	IP     string `json:"ip,omitempty"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, logger *slog.Logger) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		logger:      logger,
		now:         time.Now,
	}
}

// Emit publishes a free-form audit record. A nil emitter is valid and does nothing.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, requestID string, userID *string) {
	e.publish(ctx, requestID, userID, AuditPayload{Level: level, Action: ActionGeneric, Text: text})
}

// HandshakeRejected records a websocket upgrade refused for a missing or bad token.
func (e *AuditEmitter) HandshakeRejected(ctx context.Context, reason, requestID, ip string) {
	e.publish(ctx, requestID, nil, AuditPayload{
		Level:  LevelWarn,
		Action: ActionHandshakeRejected,
		Text:   reason,
		IP:     ip,
	})
}

// CodeShareDenied records a code snippet refused by the room's share policy.
func (e *AuditEmitter) CodeShareDenied(ctx context.Context, roomID, userID, requestID string) {
	e.publish(ctx, requestID, &userID, AuditPayload{
		Level:  LevelWarn,
		Action: ActionCodeShareDenied,
		Text:   fmt.Sprintf("user %s may not share code in room %s", userID, roomID),
		RoomID: roomID,
	})
}

func (e *AuditEmitter) publish(ctx context.Context, requestID string, userID *string, payload AuditPayload) {
	if e == nil || e.publisher == nil {
		return
	}

	e.logger.Debug("audit emit", "action", payload.Action, "level", payload.Level, "request_id", requestID)
	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		UserID:        userID,
		Payload:       payload,
	}

	headers := map[string]string{"x-request-id": requestID, "x-audit-action": payload.Action}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		e.logger.Warn("audit publish failed", "action", payload.Action, "error", err)
	}
}
