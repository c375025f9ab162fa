package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chat-hub/errors"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
	jwt.RegisteredClaims
}

func (c *CustomClaims) IsAdmin() bool {
	for _, role := range c.Roles {
		if role == "admin" {
			return true
		}
	}
	return false
}

// TokenManager signs and validates session tokens. The secret comes from
// configuration; nothing in this package holds ambient key material.
type TokenManager struct {
	secret   []byte
	duration time.Duration
}

func NewTokenManager(secret string, duration time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), duration: duration}
}

// Generate creates a signed JWT for a specific user.
func (t *TokenManager) Generate(username string, roles []string) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		Username: username,
		Roles:    roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "chat-hub",
		},
	}

	// HS256: HMAC with SHA256, symmetric secret.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Validate parses and validates the signature and expiration of a JWT string.
func (t *TokenManager) Validate(tokenString string) (*CustomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil {
		return nil, errors.ErrInvalidToken
	}

	if claims, ok := token.Claims.(*CustomClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.ErrInvalidToken
}
