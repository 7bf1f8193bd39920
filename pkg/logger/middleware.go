package logger

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ContextKey is where the request-scoped logger is stored on the gin context.
const ContextKey = "logger"

// FromGin returns the request-scoped logger, or the global one.
func FromGin(c *gin.Context) *Logger {
	if v, ok := c.Get(ContextKey); ok {
		if l, ok := v.(*Logger); ok {
			return l
		}
	}
	return GetGlobal()
}

// Middleware returns a Gin middleware function that logs requests
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetString("requestID")
		if requestID == "" {
			requestID = c.GetHeader("X-Request-ID")
		}
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)

		reqLogger := logger.WithRequestID(requestID).WithContext(c.Request.Context())
		c.Set(ContextKey, reqLogger)

		start := time.Now()
		c.Next()

		// auth runs per route, so the user is only known after the handler chain
		if userID, ok := c.Get("userId"); ok {
			reqLogger = reqLogger.WithUserID(fmt.Sprintf("%v", userID))
		}
		reqLogger.LogRequest(c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))

		for _, err := range c.Errors {
			reqLogger.LogError(err.Err, "request error",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
		}
	}
}
