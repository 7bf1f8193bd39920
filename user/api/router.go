package api

import "github.com/gin-gonic/gin"

func RegisterUserRoutes(rg *gin.RouterGroup, handler *UserHandler, limit gin.HandlerFunc) {
	users := rg.Group("/users", limit)
	users.GET("/:id", handler.GetProfile)
}
