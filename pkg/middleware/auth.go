package middleware

import (
	"strings"

	"provider-messaging/backend/pkg/errors"
	"provider-messaging/backend/pkg/jwt"
	"provider-messaging/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middlewares.
const (
	UserIDKey  = "userId"
	VisitorKey = "visitorConversationId"
)

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(header)
}

// authenticate validates the bearer token if one is present and stores the
// caller identity. It reports false after aborting the request.
func authenticate(c *gin.Context, jwtService *jwt.Service) (present bool, ok bool) {
	token := bearerToken(c)
	if token == "" {
		return false, true
	}
	claims, err := jwtService.ValidateToken(token)
	if err != nil {
		logger.FromGin(c).Debug("rejected bearer token", "error", err.Error())
		_ = c.Error(errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token"))
		c.Abort()
		return true, false
	}

	if claims.IsVisitor() {
		c.Set(VisitorKey, claims.ConversationID)
	} else {
		c.Set(UserIDKey, claims.UserID)
	}
	return true, true
}

// OptionalAuth accepts requests without credentials. A token that is present
// must be valid.
func OptionalAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := authenticate(c, jwtService); !ok {
			return
		}
		c.Next()
	}
}

// RequireUser only lets authenticated accounts through. Visitor tokens are
// refused.
func RequireUser(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		present, ok := authenticate(c, jwtService)
		if !ok {
			return
		}
		if !present {
			_ = c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authorization header is required"))
			c.Abort()
			return
		}
		if _, isUser := c.Get(UserIDKey); !isUser {
			_ = c.Error(errors.NewForbiddenError("FORBIDDEN", "This endpoint requires an account"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated account id, if any.
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// VisitorConversation returns the conversation a visitor token is bound to.
func VisitorConversation(c *gin.Context) (uint, bool) {
	v, ok := c.Get(VisitorKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}
