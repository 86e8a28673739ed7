// Package auth is the authentication collaborator: password hashing and
// bearer token issuance/verification. The delivery core only ever sees
// the resolved identity.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avekas/parley/internal/core"
	"github.com/avekas/parley/internal/domain"
)

const issuer = "parley"

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 bearer tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

func (t *Tokens) Generate(user domain.UserID) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: string(user),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Verify parses the token and returns the identity it carries. Any
// parse, signature, or expiry failure surfaces as ErrUnauthenticated.
func (t *Tokens) Verify(tokenString string) (domain.UserID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", core.ErrUnauthenticated
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return "", core.ErrUnauthenticated
	}
	return domain.UserID(claims.UserID), nil
}
