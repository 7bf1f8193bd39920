package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"provider-messaging/backend/conversation/models"
	"provider-messaging/backend/conversation/service"
	apperrors "provider-messaging/backend/pkg/errors"
	"provider-messaging/backend/pkg/logger"
	"provider-messaging/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// VisitorTokenIssuer mints the session token of an anonymous visitor.
type VisitorTokenIssuer interface {
	GenerateVisitorToken(conversationID uint) (string, error)
}

type ConversationHandler struct {
	service *service.ConversationService
	tokens  VisitorTokenIssuer
}

func NewConversationHandler(service *service.ConversationService, tokens VisitorTokenIssuer) *ConversationHandler {
	return &ConversationHandler{service: service, tokens: tokens}
}

type startConversationRequest struct {
	TargetID *uint `json:"target_id"`
}

type appendMessageRequest struct {
	Content        string             `json:"content"`
	Kind           models.MessageKind `json:"kind"`
	AttachmentPath *string            `json:"attachment_path"`
	Latitude       *float64           `json:"latitude"`
	Longitude      *float64           `json:"longitude"`
}

func conversationID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		_ = c.Error(apperrors.NewBadRequestError("INVALID_PARAMETER", "Invalid conversation id"))
		return 0, false
	}
	return uint(id), true
}

// participant resolves who is calling for a conversation-scoped request.
// Accounts are named parties; a visitor token only speaks for the anonymous
// slot of the conversation it was issued for.
func participant(c *gin.Context, conversationID uint) (models.Party, bool) {
	if userID, ok := middleware.UserID(c); ok {
		return models.Named(userID), true
	}
	if visitorConv, ok := middleware.VisitorConversation(c); ok {
		if visitorConv == conversationID {
			return models.Anonymous, true
		}
		_ = c.Error(apperrors.NewForbiddenError("FORBIDDEN", "You are not a participant of this conversation"))
		return nil, false
	}
	_ = c.Error(apperrors.NewUnauthorizedError("AUTH_REQUIRED", "Authorization header is required"))
	return nil, false
}

// StartConversation opens or returns the caller's conversation with a target
// account. Callers without an account get a visitor token for the new
// conversation.
func (h *ConversationHandler) StartConversation(c *gin.Context) {
	var req startConversationRequest
	// an empty body is a request without a target
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "Invalid request body").WithDetails(err.Error()))
		return
	}

	caller := models.Anonymous
	if userID, ok := middleware.UserID(c); ok {
		caller = models.Named(userID)
	}
	var target models.Party
	if req.TargetID != nil {
		target = models.Named(*req.TargetID)
	}

	conv, created, err := h.service.StartOrGetConversation(c.Request.Context(), caller, target)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}

	resp := gin.H{"conversation_id": conv.ID, "created": created}
	if models.IsAnonymous(caller) {
		token, err := h.tokens.GenerateVisitorToken(conv.ID)
		if err != nil {
			_ = c.Error(apperrors.NewInternalServerError("TOKEN_ERROR", "Could not issue a visitor session").Wrap(err))
			return
		}
		resp["visitor_token"] = token
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

func (h *ConversationHandler) AppendMessage(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	author, ok := participant(c, id)
	if !ok {
		return
	}
	var req appendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewBadRequestError("INVALID_REQUEST", "Invalid request body").WithDetails(err.Error()))
		return
	}

	msg, err := h.service.AppendMessage(c.Request.Context(), id, author, models.MessageInput{
		Content:        req.Content,
		Kind:           req.Kind,
		AttachmentPath: req.AttachmentPath,
		Latitude:       req.Latitude,
		Longitude:      req.Longitude,
	})
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ConversationHandler) GetMessages(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	viewer, ok := participant(c, id)
	if !ok {
		return
	}

	var afterID uint
	if raw := c.Query("after_id"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			_ = c.Error(apperrors.NewBadRequestError("INVALID_PARAMETER", "after_id must be a non-negative integer"))
			return
		}
		afterID = uint(v)
	}

	msgs, err := h.service.GetMessages(c.Request.Context(), id, viewer, afterID)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversation_id": id, "messages": msgs, "count": len(msgs)})
}

func (h *ConversationHandler) MarkRead(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	viewer, ok := participant(c, id)
	if !ok {
		return
	}
	marked, err := h.service.MarkRead(c.Request.Context(), id, viewer)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

func (h *ConversationHandler) UnreadCount(c *gin.Context) {
	id, ok := conversationID(c)
	if !ok {
		return
	}
	viewer, ok := participant(c, id)
	if !ok {
		return
	}
	n, err := h.service.UnreadCount(c.Request.Context(), id, viewer)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}

// ListConversations requires an account; RequireUser guarantees the user id.
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	summaries, err := h.service.CollectConversations(c.Request.Context(), userID)
	if err != nil {
		logger.FromGin(c).Warn("conversation list aborted", "error", err.Error())
		_ = c.Error(toAppError(err))
		return
	}
	if summaries == nil {
		summaries = []*models.ConversationSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"conversations": summaries, "count": len(summaries)})
}

func (h *ConversationHandler) TotalUnread(c *gin.Context) {
	userID, _ := middleware.UserID(c)
	n, err := h.service.TotalUnread(c.Request.Context(), userID)
	if err != nil {
		_ = c.Error(toAppError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": n})
}
