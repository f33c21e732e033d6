package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers missing, malformed, expired and badly signed tokens.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated user behind an access token.
type Identity struct {
	UserID   string
	Username string
}

// AccessClaims is the access token payload.
type AccessClaims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 access tokens.
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier constructs a verifier for tokens signed with secret.
func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

// Verify parses token and returns the identity it carries.
func (v *JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" || claims.Username == "" {
		return Identity{}, fmt.Errorf("%w: missing identity claims", ErrInvalidToken)
	}

	return Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

// NewAccessToken signs an access token for id that expires after ttl.
func NewAccessToken(secret string, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID:   id.UserID,
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
