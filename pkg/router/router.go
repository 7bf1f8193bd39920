package router

import (
	"net/http"
	"slices"
	"time"

	convapi "provider-messaging/backend/conversation/api"
	"provider-messaging/backend/pkg/config"
	"provider-messaging/backend/pkg/di"
	"provider-messaging/backend/pkg/errors"
	"provider-messaging/backend/pkg/logger"
	"provider-messaging/backend/pkg/middleware"
	userapi "provider-messaging/backend/user/api"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Router is the main router for the application
type Router struct {
	Engine    *gin.Engine
	Container *di.Container
	Logger    *logger.Logger
	Config    *config.Config
}

// New creates the engine with the middleware every request goes through.
func New(container *di.Container) *Router {
	logger.SetGlobal(container.Logger)
	cfg := container.Config

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
		container.Logger.Warn("invalid trusted proxies, trusting none", "error", err.Error())
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(middleware.RequestIDMiddleware())
	// the logger reads the request id, and the error handler reads the logger
	engine.Use(logger.Middleware(container.Logger))
	engine.Use(otelgin.Middleware(cfg.Observability.ServiceName))
	engine.Use(errors.ErrorHandler())
	engine.Use(errors.RecoveryWithLogger())
	engine.Use(corsMiddleware(cfg.Security.AllowedOrigins))
	engine.Use(maxBodySize(cfg.Security.MaxBodySize))

	engine.NoRoute(func(c *gin.Context) {
		_ = c.Error(errors.NewNotFoundError("NOT_FOUND", "Resource not found"))
	})

	return &Router{
		Engine:    engine,
		Container: container,
		Logger:    container.Logger,
		Config:    cfg,
	}
}

// SetupRoutes registers all application routes. Schema validation is added
// first because gin only applies middleware to routes registered after it.
func (r *Router) SetupRoutes() {
	if r.Config.OpenAPISpec != "" {
		r.AddOpenAPIValidation(r.Config.OpenAPISpec)
	}

	healthHandler := r.Container.Health.Handler()
	r.Engine.GET("/health", healthHandler)
	r.Engine.GET("/api/health", healthHandler)

	limit := r.Container.RateLimiter.Middleware()
	v1 := r.Engine.Group("/api/v1")
	convapi.RegisterConversationRoutes(v1, r.Container.ConversationHandler, r.Container.JWTService, limit)
	userapi.RegisterUserRoutes(v1, r.Container.UserHandler, limit)
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        24 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func maxBodySize(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
