package ws

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"roomchat-service/internal/auth"
	"roomchat-service/internal/models"
	"roomchat-service/internal/observability"
	"roomchat-service/internal/telemetry"
)

const maxFrameSize = 1 << 20

// TokenVerifier resolves an access token to an identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// WebSocketHandler upgrades HTTP requests and runs the read loop of each connection.
type WebSocketHandler struct {
	hub      *Hub
	verifier TokenVerifier
	audit    *telemetry.AuditEmitter
	logger   *slog.Logger
}

// NewWebSocketHandler constructs a WebSocketHandler.
func NewWebSocketHandler(hub *Hub, verifier TokenVerifier, audit *telemetry.AuditEmitter, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, verifier: verifier, audit: audit, logger: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, authenticates it and serves frames until it closes.
// A missing or invalid token closes the socket with a policy violation before any frame
// is read.
func (h *WebSocketHandler) Handle(c *gin.Context) {
	baseCtx := c.Request.Context()
	ctx, span := tracer.Start(baseCtx, "ws.handshake")

	token := tokenFromRequest(c.Request)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.End()
		return
	}

	requestID := observability.RequestIDFromRequest(c.Request)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	identity, err := h.verifier.Verify(ctx, token)
	if err != nil {
		reason := "Invalid token"
		if token == "" {
			reason = "Authentication required"
		}
		ip := observability.IPFromRequest(c.Request)
		h.logger.Warn("websocket auth failed", "reason", reason, "ip", ip)
		msg := websocket.FormatCloseMessage(ClosePolicyViolation, reason)
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		h.audit.HandshakeRejected(ctx, reason, requestID, ip)
		observability.IncWSEvent(eventKind, "ws_auth_failed")
		span.End()
		return
	}

	conn.SetReadLimit(maxFrameSize)
	info := ConnInfo{
		ConnID:      uuid.NewString(),
		UserID:      identity.UserID,
		Username:    identity.Username,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := h.hub.registry.Register(conn, info)
	conn.SetPongHandler(func(string) error {
		h.hub.registry.Touch(client)
		return nil
	})

	publishWSEvent(info, "", "ws_connect", "")
	h.logger.Info("websocket connected", "user_id", info.UserID, "username", info.Username, "conn_id", info.ConnID)
	if err := client.SendFrame(models.ConnectedFrame()); err != nil {
		h.logger.Warn("connected ack failed", "conn_id", info.ConnID, "error", err)
	}
	span.End()

	h.serve(baseCtx, client, conn)
}

func (h *WebSocketHandler) serve(ctx context.Context, client *Conn, conn *websocket.Conn) {
	var closeReason string
	defer func() {
		roomID, _ := h.hub.registry.RoomOf(client)
		h.hub.router.Disconnect(ctx, client, CloseNormal, "")
		publishWSEvent(client.Info, roomID, "ws_disconnect", closeReason)
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if client.Writable() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				roomID, _ := h.hub.registry.RoomOf(client)
				publishWSEvent(client.Info, roomID, "ws_error", closeReason)
			}
			return
		}
		h.hub.router.HandleFrame(ctx, client, raw)
	}
}

// tokenFromRequest reads the access token from the token query parameter, falling back to
// a bearer Authorization header.
func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
