package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"roomchat-service/internal/telemetry"
)

// DebugDeps are the collaborators of the debug routes.
type DebugDeps struct {
	Audit *telemetry.AuditEmitter
	Stats LiveStats
	// PublisherMode describes the event sink ("amqp" or "noop").
	PublisherMode string
}

// RegisterDebugRoutes wires debug-only endpoints when enabled.
func RegisterDebugRoutes(router gin.IRouter, deps DebugDeps, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if deps.Audit == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		deps.Audit.Emit(c.Request.Context(), telemetry.LevelInfo, "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok", "publisher": deps.PublisherMode})
	})

	router.GET("/debug/ws", func(c *gin.Context) {
		if deps.Stats == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "hub not configured"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"connections": deps.Stats.ConnectionCount(),
			"rooms":       deps.Stats.ActiveRooms(),
		})
	})
}
