package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of HTTP requests processed by the chat service.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_connections",
			Help: "Number of authenticated websocket connections.",
		},
	)
	wsActiveRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_ws_active_rooms",
			Help: "Number of rooms with at least one live connection.",
		},
	)
	wsMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_messages_total",
			Help: "Total number of websocket frames handled, by type.",
		},
		[]string{"type"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_ws_events_total",
			Help: "Total number of websocket lifecycle events.",
		},
		[]string{"kind", "event"},
	)
	wsDeliveryErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_ws_delivery_errors_total",
			Help: "Total number of failed writes to individual room members.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsActiveRooms,
		wsMessagesTotal,
		wsEventsTotal,
		wsDeliveryErrorsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func SetWSActive(n int) {
	wsActiveConnections.Set(float64(n))
}

func SetWSActiveRooms(n int) {
	wsActiveRooms.Set(float64(n))
}

func IncWSMessage(frameType string) {
	wsMessagesTotal.WithLabelValues(frameType).Inc()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncWSDeliveryError() {
	wsDeliveryErrorsTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
