package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"fixora-chat-service/internal/auth"
	"fixora-chat-service/internal/chat"
	"fixora-chat-service/internal/config"
	"fixora-chat-service/internal/db"
	"fixora-chat-service/internal/handlers"
	"fixora-chat-service/internal/middleware"
	"fixora-chat-service/internal/observability"
	"fixora-chat-service/internal/rabbitmq"
	"fixora-chat-service/internal/repositories"
	"fixora-chat-service/internal/telemetry"
	"fixora-chat-service/internal/ws"
)

const serviceName = "fixora-chat-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.Environment)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer shutdownTracing(ctx)

	database, err := db.Connect(cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	busPublisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		logger.Warn("ops event bus disabled", zap.Error(err))
	} else {
		observability.SetPublisher(busPublisher)
		defer busPublisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, cfg.AuditRouting, serviceName, cfg.Environment, logger)

	roomRepo := repositories.NewRoomRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	bookingRepo := repositories.NewBookingRepo(database)
	userRepo := repositories.NewUserRepo(database)

	hub := ws.NewHub(logger)
	service := chat.NewService(roomRepo, messageRepo, bookingRepo, userRepo, hub, logger)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		bridge := ws.NewBridge(rdb, hub, uuid.NewString(), logger)
		hub.SetBridge(bridge)
		go bridge.Listen(ctx)
		logger.Info("fanout bridge enabled", zap.String("redis", cfg.RedisAddr))
	}

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	wsHandler := ws.NewHandler(hub, service, verifier, logger)
	chatHandler := handlers.NewChatHandler(service, audit, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/chat/booking/:booking_id", authMiddleware, chatHandler.GetOrCreateRoom)
	router.GET("/chat/rooms", authMiddleware, chatHandler.ListRooms)
	router.GET("/chat/rooms/:room_id/messages", authMiddleware, chatHandler.GetMessages)
	router.POST("/chat/rooms/:room_id/messages", authMiddleware, chatHandler.PostMessage)
	router.PATCH("/chat/rooms/:room_id/read", authMiddleware, chatHandler.MarkRead)
	router.DELETE("/chat/rooms/:room_id", authMiddleware, chatHandler.DeleteRoom)

	router.GET("/ws", wsHandler.Handle)

	handlers.RegisterDebugRoutes(router, service, audit, cfg.Debug)

	logger.Info("chat service listening", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
