package api

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTValidator(t *testing.T) {
	validator := NewJWTValidator(testJWTSecret)

	t.Run("ValidToken", func(t *testing.T) {
		tokenStr := signToken(t, testJWTSecret, jwt.MapClaims{
			"sub":  "user-123",
			"name": "Alice",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})

		identity, err := validator.ValidateToken(tokenStr)
		require.NoError(t, err)
		assert.Equal(t, "user-123", identity.UserID)
		assert.Equal(t, "Alice", identity.DisplayName)
	})

	t.Run("DisplayNameFallsBackToSub", func(t *testing.T) {
		tokenStr := signToken(t, testJWTSecret, jwt.MapClaims{
			"sub": "user-123",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		identity, err := validator.ValidateToken(tokenStr)
		require.NoError(t, err)
		assert.Equal(t, "user-123", identity.DisplayName)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		tokenStr := signToken(t, "other-secret", jwt.MapClaims{
			"sub": "user-123",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		_, err := validator.ValidateToken(tokenStr)
		assert.Error(t, err)
	})

	t.Run("ExpiredToken", func(t *testing.T) {
		tokenStr := signToken(t, testJWTSecret, jwt.MapClaims{
			"sub": "user-123",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		_, err := validator.ValidateToken(tokenStr)
		assert.Error(t, err)
	})

	t.Run("MissingSubClaim", func(t *testing.T) {
		tokenStr := signToken(t, testJWTSecret, jwt.MapClaims{
			"name": "Alice",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})

		_, err := validator.ValidateToken(tokenStr)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sub")
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := validator.ValidateToken("not-a-jwt")
		assert.Error(t, err)
	})
}
