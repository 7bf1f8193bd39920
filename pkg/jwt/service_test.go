package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserTokenRoundTrip(t *testing.T) {
	svc, err := NewService("secret", time.Hour, 0)
	require.NoError(t, err)

	token, err := svc.GenerateToken(42, "shop@example.com", RoleBusiness)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, RoleBusiness, claims.Role)
	assert.False(t, claims.IsVisitor())
}

func TestVisitorToken(t *testing.T) {
	svc, err := NewService("secret", 0, time.Hour)
	require.NoError(t, err)

	token, err := svc.GenerateVisitorToken(9)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.True(t, claims.IsVisitor())
	assert.Equal(t, uint(9), claims.ConversationID)
	assert.Zero(t, claims.UserID)
}

func TestRejectsForeignAndExpiredTokens(t *testing.T) {
	svc, err := NewService("secret", time.Hour, 0)
	require.NoError(t, err)
	other, err := NewService("other-secret", time.Hour, 0)
	require.NoError(t, err)

	token, err := other.GenerateToken(1, "", RoleUser)
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := &JWTClaims{UserID: 1, Role: RoleUser, RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expired).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrExpiredToken)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService("", 0, 0)
	assert.Error(t, err)
}
