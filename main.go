package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/auth"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/chat"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/config"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/db"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/handlers"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/middleware"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/observability"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/rabbitmq"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/repositories"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/telemetry"
	"github.com/Shadi-ibr7/SecondLife-Exchange-sub002/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.InitTracing(ctx, "exchange-chat", cfg.OTLPAddr)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	if publisher, err := observability.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange); err != nil {
		log.Printf("event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(publisher)
		defer publisher.Close()
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer auditPublisher.Close()
	audit := telemetry.NewAuditEmitter(auditPublisher, "audit.exchange_chat", "exchange-chat", cfg.Environment)

	exchangeRepo := repositories.NewExchangeRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	service := chat.NewService(messageRepo, exchangeRepo)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)

	hub := ws.NewHub()
	presence := ws.NewPresence(hub, cfg.TypingTTL, cfg.TypingDebounce)
	go presence.Run(ctx, cfg.PresenceSweep)

	timeouts := ws.Timeouts{
		WriteWait:  cfg.WSWriteWait,
		PongWait:   cfg.WSPongWait,
		PingPeriod: cfg.PingPeriod(),
	}
	chatWS := ws.NewChatWebSocketHandler(hub, presence, service, verifier, cfg.WSSendBuffer, timeouts)
	chatHandler := handlers.NewChatHandler(service, hub, audit)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("exchange-chat"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.GET("/exchanges/:exchange_id/messages", authMiddleware, chatHandler.GetMessages)
	router.POST("/exchanges/:exchange_id/messages", authMiddleware, chatHandler.PostMessage)
	router.GET("/ws/exchanges/:exchange_id", chatWS.Handle)

	router.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
