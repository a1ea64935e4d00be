package main

import (
	"context"
	"errors"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	grpcserver "messaging-service/internal/grpc"
	"messaging-service/internal/handlers"
	"messaging-service/internal/logger"
	"messaging-service/internal/messaging"
	natsbus "messaging-service/internal/nats"
	"messaging-service/internal/notifications"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/tracing"
	"messaging-service/internal/ws"
)

const auditRoutingKey = "audit.messaging"

// eventPublisher is satisfied by both bus backends.
type eventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		stdlog.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.String("environment", cfg.Environment), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Options{
		Enabled:     cfg.TracingEnabled,
		Endpoint:    cfg.TracingEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	}, log)
	if err != nil {
		log.Fatal("failed to set up tracing", zap.Error(err))
	}

	readiness := map[string]handlers.ReadinessCheck{}

	conversations, notificationStore, database, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open stores", zap.Error(err))
	}
	if database != nil {
		readiness["db"] = database.PingContext
	}

	publisher := openEventBus(cfg, log, readiness)
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.ServiceName, cfg.Environment, log)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	registry := presence.NewRegistry(log)
	notifier := notifications.NewService(notificationStore, registry, log)
	engine := messaging.NewEngine(conversations, registry, notifier, log, messaging.Options{
		MaxMessageLength: cfg.MaxMessageLength,
		CommandRate:      cfg.WSCommandRate,
		CommandBurst:     cfg.WSCommandBurst,
		FanoutTimeout:    cfg.FanoutTimeout,
	})
	hub := ws.NewHub()
	wsHandler := ws.NewHandler(engine, verifier, hub, log, ws.Options{
		SendBuffer:     cfg.WSSendBuffer,
		AuthTimeout:    cfg.WSAuthTimeout,
		AllowedOrigins: cfg.CORSOrigins,
	})

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		log.Fatal("failed to create upload dir", zap.String("dir", cfg.UploadDir), zap.Error(err))
	}

	router := newRouter(cfg, log, routes{
		verifier:      verifier,
		conversations: handlers.NewConversationHandler(conversations, audit),
		notifications: handlers.NewNotificationHandler(notifier, audit),
		uploads:       handlers.NewUploadHandler(cfg.UploadDir, cfg.UploadMaxBytes, cfg.PublicBaseURL, audit),
		health:        handlers.NewHealthHandler(readiness),
		ws:            wsHandler,
		presence:      registry,
		audit:         audit,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           withEdge(router, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	healthSrv := grpcserver.NewHealthServer(cfg.ServiceName, log)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		log.Fatal("failed to listen for grpc", zap.String("port", cfg.GRPCPort), zap.Error(err))
	}
	go func() {
		if err := healthSrv.Serve(lis); err != nil {
			log.Error("grpc server stopped", zap.Error(err))
		}
	}()

	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreBackend), zap.String("event_bus", cfg.EventBus))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	healthSrv.SetNotServing()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	hub.CloseAll()
	if err := engine.Drain(shutdownCtx); err != nil {
		log.Warn("notification fan-out did not drain", zap.Error(err))
	}
	healthSrv.Stop(shutdownCtx)

	observability.SetPublisher(nil)
	if err := publisher.Close(); err != nil {
		log.Warn("event bus close", zap.Error(err))
	}
	if database != nil {
		if err := database.Close(); err != nil {
			log.Warn("db close", zap.Error(err))
		}
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
	log.Info("stopped")
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (repositories.ConversationStore, repositories.NotificationStore, *sqlx.DB, error) {
	switch cfg.StoreBackend {
	case "postgres":
		database, err := db.Connect(ctx, cfg.DBDSN, log)
		if err != nil {
			return nil, nil, nil, err
		}
		return repositories.NewPostgresConversationStore(database), repositories.NewPostgresNotificationStore(database), database, nil
	case "memory", "":
		log.Warn("using in-memory stores, data is lost on restart")
		return repositories.NewMemoryConversationStore(), repositories.NewMemoryNotificationStore(), nil, nil
	default:
		return nil, nil, nil, errors.New("unknown STORE_BACKEND " + cfg.StoreBackend)
	}
}

func openEventBus(cfg *config.Config, log *zap.Logger, readiness map[string]handlers.ReadinessCheck) eventPublisher {
	switch cfg.EventBus {
	case "amqp":
		p := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
		log.Info("event bus", zap.String("mode", rabbitmq.PublisherMode(p)), zap.String("noop_reason", rabbitmq.PublisherNoopReason(p)))
		if rabbitmq.PublisherMode(p) == "amqp" {
			readiness["amqp"] = func(context.Context) error { return rabbitmq.Healthy(p) }
		}
		return p
	case "nats":
		p, err := natsbus.Connect(cfg.NATSURL, "upflyover", log)
		if err != nil {
			log.Warn("nats unavailable, using noop", zap.Error(err))
			return rabbitmq.NewNoopPublisher(err.Error(), log)
		}
		readiness["nats"] = func(context.Context) error {
			if !p.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		}
		return p
	default:
		return rabbitmq.NewNoopPublisher("event bus disabled", log)
	}
}
