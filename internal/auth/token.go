// Package auth issues and checks the bearer tokens that guard the manual
// sync trigger.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("trigger secret not configured")
)

const issuer = "reportsync"

// Claims identify who asked for a run. The caller is the token's subject.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenVerifier signs and validates HS256 trigger tokens.
type TokenVerifier struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), ttl: 24 * time.Hour}
}

// Enabled reports whether a secret is configured. Without one every token
// is rejected.
func (v *TokenVerifier) Enabled() bool {
	return len(v.secret) > 0
}

// Issue mints a token for subject valid for ttl (24h when zero).
func (v *TokenVerifier) Issue(subject string, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", ErrNoSecret
	}
	if ttl <= 0 {
		ttl = v.ttl
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// Validate parses tokenString and returns its claims.
func (v *TokenVerifier) Validate(tokenString string) (*Claims, error) {
	if !v.Enabled() {
		return nil, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
