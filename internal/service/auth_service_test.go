package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kb-admin-api/internal/models"
	"github.com/noah-isme/kb-admin-api/pkg/config"
)

func signToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(config.JWTConfig{Secret: "test-secret"})

	t.Run("valid token round-trips claims", func(t *testing.T) {
		raw := signToken(t, "test-secret", &models.JWTClaims{
			UserID: "user-1",
			Role:   models.RoleOwner,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})

		claims, err := svc.ValidateToken(raw)

		require.NoError(t, err)
		require.Equal(t, "user-1", claims.UserID)
		require.Equal(t, models.RoleOwner, claims.Role)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		raw := signToken(t, "test-secret", &models.JWTClaims{
			UserID: "user-1",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		})

		_, err := svc.ValidateToken(raw)

		require.Error(t, err)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		raw := signToken(t, "other-secret", &models.JWTClaims{UserID: "user-1"})

		_, err := svc.ValidateToken(raw)

		require.Error(t, err)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := svc.ValidateToken("not-a-token")

		require.Error(t, err)
	})
}
