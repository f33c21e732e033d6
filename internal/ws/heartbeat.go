package ws

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Default heartbeat timings.
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultClientTimeout     = 60 * time.Second
)

// Disconnector runs the full cleanup of a connection.
type Disconnector interface {
	Disconnect(ctx context.Context, c *Conn, code int, reason string)
}

// Heartbeat periodically evicts idle connections and pings the rest.
type Heartbeat struct {
	registry *Registry
	disc     Disconnector
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	running  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewHeartbeat creates a monitor. Non-positive durations take the defaults.
func NewHeartbeat(registry *Registry, disc Disconnector, interval, timeout time.Duration, logger *slog.Logger) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	if timeout <= 0 {
		timeout = DefaultClientTimeout
	}
	return &Heartbeat{
		registry: registry,
		disc:     disc,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the sweep loop until Shutdown or ctx is done.
func (h *Heartbeat) Start(ctx context.Context) {
	if h.running.Swap(true) {
		return
	}
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stop:
				return
			case <-ticker.C:
				h.sweep(ctx)
			}
		}
	}()
}

func (h *Heartbeat) sweep(ctx context.Context) {
	evicted := 0
	for c := range h.registry.SnapshotStale(h.timeout) {
		h.logger.Info("evicting idle connection", "conn_id", c.ID(), "user_id", c.Info.UserID)
		h.disc.Disconnect(ctx, c, CloseTimeout, "timeout")
		evicted++
	}

	for _, c := range h.registry.All() {
		if err := c.Ping(); err != nil {
			h.logger.Warn("ping failed", "conn_id", c.ID(), "error", err)
		}
	}

	if evicted > 0 {
		h.logger.Debug("heartbeat sweep", "evicted", evicted, "remaining", h.registry.Len())
	}
}

// Shutdown stops the timer, waits for a running sweep and closes every remaining
// connection as going away.
func (h *Heartbeat) Shutdown(ctx context.Context) {
	h.stopOnce.Do(func() { close(h.stop) })
	if h.running.Load() {
		select {
		case <-h.done:
		case <-ctx.Done():
		}
	}

	for _, c := range h.registry.All() {
		h.disc.Disconnect(ctx, c, CloseServerShutdown, "server shutdown")
	}
}
