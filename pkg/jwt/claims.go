package jwt

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

type Role string

const (
	RoleUser     Role = "user"
	RoleBusiness Role = "business"
	// RoleVisitor marks an anonymous visitor token bound to one conversation.
	RoleVisitor Role = "visitor"
)

// JWTClaims represents the claims in a JWT token. User tokens carry a
// UserID; visitor tokens carry the ConversationID they were issued for.
type JWTClaims struct {
	UserID         uint   `json:"user_id,omitempty"`
	Email          string `json:"email,omitempty"`
	Role           Role   `json:"role"`
	ConversationID uint   `json:"conversation_id,omitempty"`
	jwt.RegisteredClaims
}

func (c *JWTClaims) IsVisitor() bool {
	return c.Role == RoleVisitor
}
