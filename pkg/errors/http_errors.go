package errors

import (
	stderrors "errors"
	"net/http"
)

// As finds the first AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromError converts any error to an AppError. Errors that are not already
// AppErrors become an opaque 500 so internals never leak to clients.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := As(err); ok {
		return appErr
	}
	return NewInternalServerError("SERVER_ERROR", "An unexpected error occurred").Wrap(err)
}

// GetStatusCode returns the HTTP status code for an error
func GetStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return FromError(err).StatusCode
}
