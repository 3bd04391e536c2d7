package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-scheduler/internal/models"
	"github.com/noah-isme/course-scheduler/pkg/config"
	appErrors "github.com/noah-isme/course-scheduler/pkg/errors"
)

func TestTokenServiceIssueAndValidate(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "secret", Issuer: "registrar", Expiration: time.Hour})

	token, expiresAt, err := svc.Issue("user-1", "ada@example.edu")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ada@example.edu", claims.Email)
}

func TestTokenServiceRejectsForeignTokens(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "secret", Issuer: "registrar"})

	other, _, err := NewTokenService(config.JWTConfig{Secret: "other", Issuer: "registrar"}).Issue("user-1", "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(other)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	wrongIssuer, _, err := NewTokenService(config.JWTConfig{Secret: "secret", Issuer: "elsewhere"}).Issue("user-1", "")
	require.NoError(t, err)
	_, err = svc.ValidateToken(wrongIssuer)
	assert.Error(t, err)
}

func TestTokenServiceRejectsExpiredToken(t *testing.T) {
	svc := NewTokenService(config.JWTConfig{Secret: "secret"})
	claims := &models.JWTClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	assert.Error(t, err)
}
