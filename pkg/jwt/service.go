package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "provider-messaging"

// Service signs and validates HS256 tokens with a shared secret.
type Service struct {
	secretKey     []byte
	expiry        time.Duration
	visitorExpiry time.Duration
}

// NewService creates a JWT service. Zero durations fall back to 24 hours for
// user tokens and 30 days for visitor tokens.
func NewService(secretKey string, expiry, visitorExpiry time.Duration) (*Service, error) {
	if secretKey == "" {
		return nil, errors.New("jwt: secret key is required")
	}
	if expiry == 0 {
		expiry = 24 * time.Hour
	}
	if visitorExpiry == 0 {
		visitorExpiry = 30 * 24 * time.Hour
	}
	return &Service{secretKey: []byte(secretKey), expiry: expiry, visitorExpiry: visitorExpiry}, nil
}

func (s *Service) sign(claims *JWTClaims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
}

// GenerateToken issues a user token. Normally the auth service does this;
// it is kept for development tooling and tests.
func (s *Service) GenerateToken(userID uint, email string, role Role) (string, error) {
	if role == "" {
		role = RoleUser
	}
	return s.sign(&JWTClaims{UserID: userID, Email: email, Role: role}, s.expiry)
}

// GenerateVisitorToken issues the session token of an anonymous visitor for
// one conversation.
func (s *Service) GenerateVisitorToken(conversationID uint) (string, error) {
	claims := &JWTClaims{Role: RoleVisitor, ConversationID: conversationID}
	token, err := s.sign(claims, s.visitorExpiry)
	if err != nil {
		return "", fmt.Errorf("sign visitor token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&JWTClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return s.secretKey, nil
		},
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.IsVisitor() && claims.ConversationID == 0 {
		return nil, ErrInvalidToken
	}
	if !claims.IsVisitor() && claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
