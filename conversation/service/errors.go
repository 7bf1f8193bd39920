package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTarget        = errors.New("conversation target is missing or unknown")
	ErrSelfConversation     = errors.New("cannot start a conversation with yourself")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrForbidden            = errors.New("caller is not a participant of this conversation")
	ErrEmptyContent         = errors.New("message content is empty")
	ErrInvalidKind          = errors.New("unknown message kind")
	ErrInvalidLocation      = errors.New("location must carry a valid latitude and longitude")
	ErrContentTooLong       = errors.New("message content is too long")
)

// StorageError wraps a persistence failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
