package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// StaticTokenProvider provides a static token that never expires.
// Useful for testing or when tokens are managed externally.
type StaticTokenProvider struct {
	Token string
}

// NewStaticTokenProvider creates a new static token provider.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{Token: token}
}

// FetchToken returns the static token with a far-future expiration.
func (p *StaticTokenProvider) FetchToken(context.Context) (string, time.Time, error) {
	return p.Token, time.Now().Add(24 * 365 * time.Hour), nil
}

// CustomTokenProvider adapts a function into a TokenProvider.
type CustomTokenProvider struct {
	FetchFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)
}

// NewCustomTokenProvider creates a new custom token provider.
func NewCustomTokenProvider(fetchFunc func(ctx context.Context) (string, time.Time, error)) *CustomTokenProvider {
	return &CustomTokenProvider{FetchFunc: fetchFunc}
}

// FetchToken calls the custom fetch function.
func (p *CustomTokenProvider) FetchToken(ctx context.Context) (string, time.Time, error) {
	if p.FetchFunc == nil {
		return "", time.Time{}, errors.New("auth: fetch function is nil")
	}
	return p.FetchFunc(ctx)
}

// ErrNoExpiry is returned by ExpiryFromJWT when the token carries no exp claim.
var ErrNoExpiry = errors.New("auth: token has no exp claim")

// ExpiryFromJWT reads the exp claim of a JWT without verifying its signature.
// The token is only inspected to schedule a refresh, never trusted.
func ExpiryFromJWT(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("auth: parse jwt: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}
