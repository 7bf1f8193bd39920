package middleware

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"provider-messaging/backend/pkg/errors"
	"provider-messaging/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiterOptions configures the rate limiter
type RateLimiterOptions struct {
	// Limit defines requests per second
	Limit rate.Limit
	// Burst defines maximum burst size allowed
	Burst int
	// ExpiryDuration defines how long to keep client state in memory
	ExpiryDuration time.Duration
	// KeyFunc extracts the limiting key from a request
	KeyFunc func(*gin.Context) string
}

// ClientKey limits authenticated accounts and visitors by identity, and
// everyone else by IP.
func ClientKey(c *gin.Context) string {
	if id, ok := UserID(c); ok {
		return fmt.Sprintf("user:%d", id)
	}
	if conv, ok := VisitorConversation(c); ok {
		return fmt.Sprintf("visitor:%d", conv)
	}
	return "ip:" + c.ClientIP()
}

func DefaultRateLimiterOptions() RateLimiterOptions {
	return RateLimiterOptions{
		Limit:          5,
		Burst:          10,
		ExpiryDuration: time.Hour,
		KeyFunc:        ClientKey,
	}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client token bucket.
type RateLimiter struct {
	mu      sync.Mutex
	options RateLimiterOptions
	clients map[string]*client
	logger  *logger.Logger
}

func NewRateLimiter(logger *logger.Logger, options RateLimiterOptions) *RateLimiter {
	defaults := DefaultRateLimiterOptions()
	if options.Limit <= 0 {
		options.Limit = defaults.Limit
	}
	if options.Burst <= 0 {
		options.Burst = defaults.Burst
	}
	if options.ExpiryDuration <= 0 {
		options.ExpiryDuration = defaults.ExpiryDuration
	}
	if options.KeyFunc == nil {
		options.KeyFunc = defaults.KeyFunc
	}
	return &RateLimiter{
		options: options,
		clients: make(map[string]*client),
		logger:  logger,
	}
}

// Middleware rejects clients over their budget with 429. Register it after
// the auth middleware so the key can use the caller's identity.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := r.options.KeyFunc(c)
		if !r.getLimiter(key).Allow() {
			r.logger.Warn("rate limit exceeded",
				"client", key,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)
			c.Header("Retry-After", "1")
			c.Header("X-RateLimit-Limit", strconv.Itoa(r.options.Burst))
			_ = c.Error(errors.NewTooManyRequestsError("RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later."))
			c.Abort()
			return
		}
		c.Next()
	}
}

func (r *RateLimiter) getLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, exists := r.clients[key]
	if !exists {
		limiter := rate.NewLimiter(r.options.Limit, r.options.Burst)
		r.clients[key] = &client{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Run drops idle clients every minute until ctx is done.
func (r *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *RateLimiter) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, v := range r.clients {
		if time.Since(v.lastSeen) > r.options.ExpiryDuration {
			delete(r.clients, k)
		}
	}
}
