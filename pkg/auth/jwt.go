package auth

import (
	"crypto/subtle"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT claims issued for dashboard sessions.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ValidateJWT parses and validates a signed token against the shared secret.
func ValidateJWT(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// ValidateServiceToken compares a presented service token against the
// expected one in constant time.
func ValidateServiceToken(presented, expected string) error {
	if expected == "" {
		return fmt.Errorf("service token not configured")
	}
	if subtle.ConstantTimeCompare([]byte(presented), []byte(expected)) != 1 {
		return fmt.Errorf("invalid service token")
	}
	return nil
}
