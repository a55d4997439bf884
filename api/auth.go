package api

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is a resolved user identity, bound to a connection for its
// remaining lifetime once authentication succeeds.
type Identity struct {
	UserID      string
	DisplayName string
}

// TokenValidator resolves a bearer credential to an identity
type TokenValidator interface {
	ValidateToken(token string) (*Identity, error)
}

// JWTValidator verifies HS256 tokens issued by the platform's auth service.
// The sub claim carries the user ID, the name claim the display name.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator creates a validator with the shared signing secret
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// ValidateToken implements TokenValidator
func (v *JWTValidator) ValidateToken(tokenStr string) (*Identity, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}
	name, _ := claims["name"].(string)
	if name == "" {
		name = sub
	}
	return &Identity{UserID: sub, DisplayName: name}, nil
}
