package api

import (
	"provider-messaging/backend/pkg/jwt"
	"provider-messaging/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterConversationRoutes mounts the conversation endpoints. limit runs
// after authentication so it can key on the caller.
func RegisterConversationRoutes(rg *gin.RouterGroup, handler *ConversationHandler, jwtService *jwt.Service, limit gin.HandlerFunc) {
	conversations := rg.Group("/conversations")
	{
		participant := conversations.Group("", middleware.OptionalAuth(jwtService), limit)
		participant.POST("", handler.StartConversation)
		participant.POST("/:id/messages", handler.AppendMessage)
		participant.GET("/:id/messages", handler.GetMessages)
		participant.POST("/:id/read", handler.MarkRead)
		participant.GET("/:id/unread", handler.UnreadCount)

		account := conversations.Group("", middleware.RequireUser(jwtService), limit)
		account.GET("", handler.ListConversations)
		account.GET("/unread", handler.TotalUnread)
	}
}
