package di

import (
	"context"
	"fmt"
	"time"

	convapi "provider-messaging/backend/conversation/api"
	convrepo "provider-messaging/backend/conversation/repository"
	convsvc "provider-messaging/backend/conversation/service"
	"provider-messaging/backend/pkg/cache"
	"provider-messaging/backend/pkg/config"
	"provider-messaging/backend/pkg/health"
	"provider-messaging/backend/pkg/jwt"
	"provider-messaging/backend/pkg/logger"
	"provider-messaging/backend/pkg/middleware"
	"provider-messaging/backend/pkg/resilience"
	"provider-messaging/backend/pkg/storage"
	"provider-messaging/backend/shared/redis"
	userapi "provider-messaging/backend/user/api"
	userrepo "provider-messaging/backend/user/repository"
	usersvc "provider-messaging/backend/user/service"

	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Container holds all the dependencies for the application
type Container struct {
	Config              *config.Config
	DB                  *gorm.DB
	Logger              *logger.Logger
	JWTService          *jwt.Service
	UserService         *usersvc.UserService
	ConversationService *convsvc.ConversationService
	Attachments         convsvc.AttachmentResolver
	RateLimiter         *middleware.RateLimiter
	Health              *health.Checker
	ConversationHandler *convapi.ConversationHandler
	UserHandler         *userapi.UserHandler

	closers []func() error
}

// New wires the application on top of an open database. jwtSecret comes from
// the secrets manager rather than the config so it never sits in the env dump.
func New(ctx context.Context, db *gorm.DB, cfg *config.Config, log *logger.Logger, jwtSecret string) (*Container, error) {
	c := &Container{Config: cfg, DB: db, Logger: log}

	jwtService, err := jwt.NewService(jwtSecret, cfg.JWT.Expiry, cfg.JWT.VisitorExpiry)
	if err != nil {
		return nil, fmt.Errorf("jwt service: %w", err)
	}
	c.JWTService = jwtService

	c.Health = health.NewChecker(log, 30*time.Second)
	c.Health.RegisterDatabaseCheck(func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	profiles, err := c.profileCache(cfg, log)
	if err != nil {
		return nil, err
	}
	c.UserService = usersvc.NewUserService(userrepo.NewGormUserRepository(db), profiles, cfg.Cache.TTL, log)

	attachments, err := c.attachmentResolver(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.Attachments = attachments

	c.ConversationService = convsvc.NewConversationService(
		convrepo.NewGormConversationRepository(db),
		convrepo.NewGormMessageRepository(db),
		c.UserService,
		attachments,
		log,
		convsvc.Options{
			PageSize:         cfg.Messaging.ListPageSize,
			AnonymousName:    cfg.Messaging.AnonymousName,
			MaxContentLength: cfg.Messaging.MaxContentLength,
		},
	)

	c.RateLimiter = middleware.NewRateLimiter(log, middleware.RateLimiterOptions{
		Limit: rate.Limit(cfg.Security.RateLimit),
		Burst: cfg.Security.RateLimitBurst,
	})

	c.ConversationHandler = convapi.NewConversationHandler(c.ConversationService, jwtService)
	c.UserHandler = userapi.NewUserHandler(c.UserService)
	return c, nil
}

// profileCache prefers Redis, guarded by a circuit breaker, and falls back to
// the in-process cache.
func (c *Container) profileCache(cfg *config.Config, log *logger.Logger) (usersvc.ProfileCache, error) {
	if cfg.Cache.RedisEnabled {
		breaker := resilience.NewCircuitBreaker(resilience.DefaultConfig("redis"), log)
		client, err := redis.NewRedisClient(cfg.Cache.RedisURL, breaker)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		c.closers = append(c.closers, client.Close)
		c.Health.RegisterCacheCheck(client.Ping)
		log.Info("profile cache backed by redis")
		return client, nil
	}

	memory := cache.New(cache.Options{
		TTL:           cfg.Cache.TTL,
		PurgeInterval: cfg.Cache.PurgeWindow,
		MaxItems:      cfg.Cache.MaxSize,
	})
	c.closers = append(c.closers, func() error { memory.Close(); return nil })
	return cache.NewStore(memory), nil
}

func (c *Container) attachmentResolver(ctx context.Context, cfg *config.Config) (convsvc.AttachmentResolver, error) {
	switch cfg.Storage.Resolver {
	case "gcs":
		r, err := storage.NewGCSResolver(ctx, storage.GCSConfig{
			Bucket:          cfg.Storage.Bucket,
			CDNDomain:       cfg.Storage.CDNDomain,
			CredentialsFile: cfg.Storage.CredentialsFile,
			SignedURLTTL:    cfg.Storage.SignedURLTTL,
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, r.Close)
		return r, nil
	case "static", "":
		return storage.NewStaticResolver(cfg.Storage.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown attachment resolver %q", cfg.Storage.Resolver)
	}
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := userrepo.Migrate(db); err != nil {
		return fmt.Errorf("migrate users: %w", err)
	}
	if err := convrepo.Migrate(db); err != nil {
		return fmt.Errorf("migrate conversations: %w", err)
	}
	return nil
}

// Close releases external clients in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			c.Logger.Warn("close dependency", "error", err.Error())
		}
	}
}
