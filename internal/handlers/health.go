package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger checks a backing store, usually *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports process and database health.
type HealthHandler struct {
	db    Pinger
	stats LiveStats
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db Pinger, stats LiveStats) *HealthHandler {
	return &HealthHandler{db: db, stats: stats}
}

// Health answers 200 when the database responds and 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, database, code := "ok", "connected", http.StatusOK
	if err := h.db.PingContext(ctx); err != nil {
		status, database, code = "degraded", "disconnected", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":      status,
		"database":    database,
		"connections": h.stats.ConnectionCount(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}
