package api

import (
	"errors"
	"net/http"
	"strconv"

	apperrors "provider-messaging/backend/pkg/errors"
	"provider-messaging/backend/user/service"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	service *service.UserService
}

func NewUserHandler(service *service.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// GetProfile returns the public profile shown next to a conversation.
func (h *UserHandler) GetProfile(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		_ = c.Error(apperrors.NewBadRequestError("INVALID_PARAMETER", "Invalid user id"))
		return
	}

	profile, err := h.service.GetProfile(c.Request.Context(), uint(id))
	if errors.Is(err, service.ErrUserNotFound) {
		_ = c.Error(apperrors.NewNotFoundError("USER_NOT_FOUND", "User not found"))
		return
	}
	if err != nil {
		_ = c.Error(apperrors.NewInternalServerError("STORAGE_ERROR", "The request could not be completed").Wrap(err))
		return
	}
	c.JSON(http.StatusOK, profile)
}
