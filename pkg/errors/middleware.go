package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"provider-messaging/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the first error a handler attached with c.Error as
// {"error":{"code","message","details"}}.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		appErr := FromError(c.Errors[0].Err)

		log := logger.FromGin(c)
		args := []any{
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"status_code", appErr.StatusCode,
			"error_code", appErr.Code,
		}
		if appErr.Err != nil {
			args = append(args, "cause", appErr.Err.Error())
		}
		if appErr.StatusCode >= http.StatusInternalServerError {
			log.Error("request failed", args...)
		} else {
			log.Debug("request rejected", args...)
		}

		c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
			"error": gin.H{
				"code":    appErr.Code,
				"message": appErr.Message,
				"details": appErr.Details,
			},
		})
	}
}

// RecoveryWithLogger recovers from panics, logs them with the request
// logger and answers 500.
func RecoveryWithLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := string(debug.Stack())
			logger.FromGin(c).Error("panic recovered",
				"error", fmt.Sprint(r),
				"stack", stack,
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
			)

			var details any
			if gin.Mode() == gin.DebugMode {
				details = fmt.Sprintf("panic: %v", r)
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": gin.H{
					"code":    "SERVER_ERROR",
					"message": "The server encountered an unexpected error",
					"details": details,
				},
			})
		}()

		c.Next()
	}
}
