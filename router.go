package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/handlers"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

type routes struct {
	verifier      auth.Verifier
	conversations *handlers.ConversationHandler
	notifications *handlers.NotificationHandler
	uploads       *handlers.UploadHandler
	health        *handlers.HealthHandler
	ws            *ws.Handler
	presence      handlers.PresenceLister
	audit         *telemetry.AuditEmitter
}

func newRouter(cfg *config.Config, log *zap.Logger, r routes) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		observability.HTTPMetricsMiddleware(),
		middleware.AccessLog(log),
	)

	router.GET("/health", r.health.Health)
	router.GET("/ready", r.health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.Group("/uploads", middleware.AttachmentHeaders()).Static("/", cfg.UploadDir)
	router.GET("/ws", r.ws.Handle)

	api := router.Group("/api", middleware.AuthMiddleware(r.verifier))
	api.GET("/conversations", r.conversations.ListConversations)
	api.GET("/conversations/:id/messages", r.conversations.GetMessages)
	api.POST("/conversations/groups", r.conversations.CreateGroup)
	api.POST("/messages/upload", r.uploads.Upload)
	api.GET("/notifications", r.notifications.List)
	api.GET("/notifications/unread-count", r.notifications.UnreadCount)
	api.POST("/notifications/read-all", r.notifications.MarkAllRead)
	api.POST("/notifications/:id/read", r.notifications.MarkRead)

	internal := router.Group("/internal", middleware.ServiceTokenMiddleware(cfg.InternalAPIToken))
	internal.POST("/notifications", r.notifications.InternalNotify)

	handlers.RegisterDebugRoutes(router, r.presence, r.audit, cfg.DebugRoutes)
	return router
}

// withEdge adds CORS and per-IP rate limiting in front of the gin engine.
func withEdge(next http.Handler, cfg *config.Config) http.Handler {
	h := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-ID", "X-Device-Id", "X-Internal-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	})(next)
	if cfg.HTTPRateLimit > 0 {
		h = httprate.LimitByIP(cfg.HTTPRateLimit, cfg.HTTPRateWindow)(h)
	}
	return h
}
