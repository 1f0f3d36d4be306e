package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in session JWTs.
const (
	// TokenTypeAccess marks short-lived tokens used on API requests.
	TokenTypeAccess = "access"
	// TokenTypeRefresh marks long-lived tokens used only to mint new pairs.
	TokenTypeRefresh = "refresh"
)

// JWT validation errors.
var (
	// ErrInvalidToken indicates a token is malformed or fails validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates a token has expired.
	ErrExpiredToken = errors.New("token expired")
)

// SessionClaims defines JWT claims for marketplace accounts.
type SessionClaims struct {
	AccountID uint64 `json:"account_id"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// GenerateAccessToken signs a short-lived access JWT for an account.
func GenerateAccessToken(secret string, accountID uint64, role string, expiry time.Duration) (string, error) {
	return generateSessionToken(secret, accountID, role, TokenTypeAccess, expiry)
}

// GenerateRefreshToken signs a long-lived refresh JWT for an account.
func GenerateRefreshToken(secret string, accountID uint64, role string, expiry time.Duration) (string, error) {
	return generateSessionToken(secret, accountID, role, TokenTypeRefresh, expiry)
}

// generateSessionToken signs a session JWT with the given type and expiry.
func generateSessionToken(secret string, accountID uint64, role, tokenType string, expiry time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := SessionClaims{
		AccountID: accountID,
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAccessToken validates an access JWT and returns its claims.
func ParseAccessToken(secret string, tokenString string) (*SessionClaims, error) {
	return parseSessionToken(secret, tokenString, TokenTypeAccess)
}

// ParseRefreshToken validates a refresh JWT and returns its claims.
func ParseRefreshToken(secret string, tokenString string) (*SessionClaims, error) {
	return parseSessionToken(secret, tokenString, TokenTypeRefresh)
}

// parseSessionToken validates a session JWT and checks its token type.
func parseSessionToken(secret string, tokenString string, wantType string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != wantType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
