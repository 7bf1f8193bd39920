package api

import (
	"errors"

	"provider-messaging/backend/conversation/service"
	apperrors "provider-messaging/backend/pkg/errors"
)

// toAppError maps service errors onto HTTP errors. Unknown errors become an
// opaque 500.
func toAppError(err error) *apperrors.AppError {
	var storageErr *service.StorageError
	switch {
	case errors.Is(err, service.ErrInvalidTarget):
		return apperrors.NewBadRequestError("INVALID_TARGET", "The target account is missing or unknown")
	case errors.Is(err, service.ErrSelfConversation):
		return apperrors.NewBadRequestError("SELF_CONVERSATION", "You cannot start a conversation with yourself")
	case errors.Is(err, service.ErrEmptyContent):
		return apperrors.NewBadRequestError("EMPTY_CONTENT", "Message content is empty")
	case errors.Is(err, service.ErrInvalidKind):
		return apperrors.NewBadRequestError("INVALID_KIND", "Message kind must be text, image, video or voice")
	case errors.Is(err, service.ErrInvalidLocation):
		return apperrors.NewBadRequestError("INVALID_LOCATION", "Location needs a latitude and longitude in range")
	case errors.Is(err, service.ErrContentTooLong):
		return apperrors.NewBadRequestError("CONTENT_TOO_LONG", "Message content is too long")
	case errors.Is(err, service.ErrConversationNotFound):
		return apperrors.NewNotFoundError("CONVERSATION_NOT_FOUND", "Conversation not found")
	case errors.Is(err, service.ErrForbidden):
		return apperrors.NewForbiddenError("FORBIDDEN", "You are not a participant of this conversation")
	case errors.As(err, &storageErr):
		return apperrors.NewInternalServerError("STORAGE_ERROR", "The request could not be completed").Wrap(err)
	default:
		return apperrors.FromError(err)
	}
}
