package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	grpcclient "messaging-service/internal/grpc"
	"messaging-service/internal/handlers"
	"messaging-service/internal/logging"
	"messaging-service/internal/middleware"
	"messaging-service/internal/notify"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/services"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

const (
	auditRoutingKey = "audit.chat"
	shutdownTimeout = 15 * time.Second
)

type stores struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	pointers repositories.ReadPointerRepository
	markers  repositories.ClearMarkerRepository
	close    func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment, logger)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}

	validator, closeAuth, err := buildValidator(cfg)
	if err != nil {
		logger.Fatal("failed to connect to identity service", zap.Error(err))
	}

	workflow, closeWorkflow, err := buildWorkflow(cfg, logger)
	if err != nil {
		logger.Fatal("failed to connect to workflow service", zap.Error(err))
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	observability.SetPublisher(publisher)
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.ServiceName, cfg.Environment, logger)

	notifier, closeNotifier := buildNotifier(ctx, cfg, logger)

	reads := services.NewReadTracker(st.chats, st.messages, st.pointers)
	conversations := services.NewConversations(st.chats, st.messages, st.markers, workflow)
	messages := services.NewMessages(st.chats, st.messages)
	visibility := services.NewVisibility(st.chats, st.messages, st.markers, reads)

	hub := ws.NewHub(logger)
	dispatcher := ws.NewDispatcher(hub, conversations, messages, reads, notifier, audit, logger)

	chatHandler := handlers.NewChatHandler(conversations, visibility, reads, dispatcher, audit, logger)
	wsHandler := ws.NewWebSocketHandler(dispatcher, validator, logger)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(cfg.CORSOrigins))
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	auth := middleware.AuthMiddleware(validator)
	chatHandler.Register(router, auth)
	router.GET("/ws", wsHandler.Handle)
	handlers.RegisterDebugRoutes(router, auth, hub, audit, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		hub.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for name, closeFn := range map[string]func() error{
		"publisher": publisher.Close,
		"notifier":  closeNotifier,
		"workflow":  closeWorkflow,
		"auth":      closeAuth,
		"store":     st.close,
		"tracing":   func() error { return shutdownTracing(closeCtx) },
	} {
		if err := closeFn(); err != nil {
			logger.Warn("close failed", zap.String("component", name), zap.Error(err))
		}
	}
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (stores, error) {
	if cfg.Store.Driver == config.DriverMemory {
		logger.Warn("using in-memory store, data is lost on restart")
		mem := repositories.NewMemoryStore()
		return stores{chats: mem, messages: mem, pointers: mem, markers: mem, close: func() error { return nil }}, nil
	}

	database, err := db.Connect(ctx, cfg.Store.DSN, cfg.Store.ConnectAttempts, logger)
	if err != nil {
		return stores{}, err
	}
	readState := repositories.NewReadStateRepo(database)
	return stores{
		chats:    repositories.NewChatRepo(database),
		messages: repositories.NewMessageRepo(database),
		pointers: readState,
		markers:  readState,
		close:    database.Close,
	}, nil
}

func buildValidator(cfg config.Config) (middleware.TokenValidator, func() error, error) {
	if cfg.Auth.GRPCAddr == "" {
		return auth.NewJWTValidator(cfg.Auth.JWTSecret), func() error { return nil }, nil
	}
	conn, err := grpcclient.Dial(cfg.Auth.GRPCAddr)
	if err != nil {
		return nil, nil, err
	}
	return grpcclient.NewAuthClient(conn), conn.Close, nil
}

func buildWorkflow(cfg config.Config, logger *zap.Logger) (services.WorkflowClient, func() error, error) {
	if cfg.WorkflowGRPCAddr == "" {
		logger.Warn("no workflow service configured, every pair may converse")
		return services.DirectWorkflow{}, func() error { return nil }, nil
	}
	conn, err := grpcclient.Dial(cfg.WorkflowGRPCAddr)
	if err != nil {
		return nil, nil, err
	}
	return grpcclient.NewWorkflowClient(conn), conn.Close, nil
}

func buildNotifier(ctx context.Context, cfg config.Config, logger *zap.Logger) (notify.Notifier, func() error) {
	if cfg.Redis.Addr == "" {
		logger.Info("offline notifier disabled")
		return notify.Noop{}, func() error { return nil }
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not reachable, offline notices will fail until it is", zap.Error(err))
	}
	return notify.NewRedisNotifier(rdb), rdb.Close
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-Request-ID", "X-Device-Id")
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	return cors.New(corsCfg)
}
