package auth

import (
	"context"
	"sync"
	"time"
)

// TokenProvider defines the interface for fetching bearer tokens.
type TokenProvider interface {
	// FetchToken retrieves a new token and its expiration time.
	// If the token doesn't have an explicit expiration, return a reasonable TTL.
	FetchToken(ctx context.Context) (token string, expiresAt time.Time, err error)
}

// TokenCache manages token storage with expiration handling.
type TokenCache struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	provider  TokenProvider
	// refreshBuffer is the time before expiration to refresh the token
	refreshBuffer time.Duration
	now           func() time.Time
}

// NewTokenCache creates a new token cache with the given provider.
func NewTokenCache(provider TokenProvider, refreshBuffer time.Duration) *TokenCache {
	if refreshBuffer <= 0 {
		refreshBuffer = 30 * time.Second
	}
	return &TokenCache{
		provider:      provider,
		refreshBuffer: refreshBuffer,
		now:           time.Now,
	}
}

// GetToken retrieves a valid token, fetching a new one if needed.
func (tc *TokenCache) GetToken(ctx context.Context) (string, error) {
	tc.mu.RLock()
	if tc.validLocked() {
		token := tc.token
		tc.mu.RUnlock()
		return token, nil
	}
	tc.mu.RUnlock()

	return tc.refreshToken(ctx)
}

// Bearer returns the cached token as OAuth2Bearer credentials.
func (tc *TokenCache) Bearer(ctx context.Context) (OAuth2Bearer, error) {
	token, err := tc.GetToken(ctx)
	if err != nil {
		return OAuth2Bearer{}, err
	}
	return Bearer(token), nil
}

func (tc *TokenCache) refreshToken(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	// another goroutine may have refreshed it
	if tc.validLocked() {
		return tc.token, nil
	}

	token, expiresAt, err := tc.provider.FetchToken(ctx)
	if err != nil {
		return "", err
	}

	tc.token = token
	tc.expiresAt = expiresAt
	return token, nil
}

// Invalidate clears the cached token, forcing a refresh on next GetToken call.
func (tc *TokenCache) Invalidate() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.token = ""
	tc.expiresAt = time.Time{}
}

// IsValid checks if the current cached token is still valid.
func (tc *TokenCache) IsValid() bool {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.validLocked()
}

func (tc *TokenCache) validLocked() bool {
	return tc.token != "" && tc.now().Before(tc.expiresAt.Add(-tc.refreshBuffer))
}
