package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"roomchat-service/internal/auth"
	"roomchat-service/internal/cache"
	"roomchat-service/internal/config"
	"roomchat-service/internal/db"
	"roomchat-service/internal/handlers"
	"roomchat-service/internal/logging"
	"roomchat-service/internal/middleware"
	"roomchat-service/internal/observability"
	"roomchat-service/internal/rabbitmq"
	"roomchat-service/internal/repositories"
	"roomchat-service/internal/telemetry"
	"roomchat-service/internal/ws"
)

const serviceName = "roomchat-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, IsDev: cfg.IsDev()})
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}

	database, err := db.Connect(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	var historyCache ws.HistoryCache
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, history cache disabled", "addr", cfg.RedisAddr, "error", err)
			_ = rdb.Close()
			rdb = nil
		} else {
			historyCache = cache.NewHistoryCache(rdb, cfg.HistoryLimit)
			logger.Info("history cache enabled", "addr", cfg.RedisAddr)
		}
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	observability.SetPublisher(publisher)
	logger.Info("event publisher ready", "mode", rabbitmq.PublisherMode(publisher), "noop_reason", rabbitmq.PublisherNoopReason(publisher))
	audit := telemetry.NewAuditEmitter(publisher, telemetry.AuditRoutingKey, serviceName, cfg.Env, logger)

	verifier := auth.NewJWTVerifier(cfg.AccessTokenSecret)
	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	hub := ws.NewHub(roomRepo, messageRepo, historyCache, audit, logger, ws.Options{
		HeartbeatInterval: cfg.HeartbeatInterval,
		ClientTimeout:     cfg.ClientTimeout,
		HistoryLimit:      cfg.HistoryLimit,
	})
	hub.Start(ctx)

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)
	health := handlers.NewHealthHandler(database, hub)
	roomStats := handlers.NewRoomStatsHandler(hub)
	wsHandler := ws.NewWebSocketHandler(hub, verifier, audit, logger)

	router.GET("/healthz", health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", wsHandler.Handle)
	router.GET("/ws/rooms", authMiddleware, roomStats.ListActiveRooms)
	router.GET("/ws/rooms/:room_id", authMiddleware, roomStats.GetRoomStats)
	handlers.RegisterDebugRoutes(router, handlers.DebugDeps{
		Audit:         audit,
		Stats:         hub,
		PublisherMode: rabbitmq.PublisherMode(publisher),
	}, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		hub.Shutdown(shutdownCtx)
		if tErr := shutdownTracer(shutdownCtx); tErr != nil {
			logger.Warn("tracer shutdown failed", "error", tErr)
		}
		if pErr := publisher.Close(); pErr != nil {
			logger.Warn("publisher close failed", "error", pErr)
		}
		if rdb != nil {
			_ = rdb.Close()
		}
		return err
	})

	return g.Wait()
}
