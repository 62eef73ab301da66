package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderValue(t *testing.T) {
	tests := []struct {
		name string
		auth Auth
		want string
	}{
		{"basic", Basic("user", "pass"), "Basic dXNlcjpwYXNz"},
		{"bearer", Bearer("abc"), "Bearer abc"},
		{"legacy token", Token("abc"), "token abc"},
		{"none", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HeaderValue(tt.auth))
		})
	}
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Basic("u", "p"), Basic("u", "p")))
	assert.False(t, Equal(Basic("u", "p"), Basic("u", "q")))
	assert.True(t, Equal(Bearer("t"), Bearer("t")))
	assert.False(t, Equal(Bearer("t"), Token("t")))
	assert.True(t, Equal(nil, nil))
	assert.False(t, Equal(nil, Bearer("t")))
	assert.False(t, Equal(Token("t"), nil))
}

func TestString_Redacts(t *testing.T) {
	assert.Equal(t, "BasicAuth(user, ***)", Basic("user", "secret").String())
	assert.Equal(t, "OAuth2Bearer(abcd***)", Bearer("abcdefgh").String())
	assert.Equal(t, "OAuth2Token(***)", Token("ab").String())
	assert.NotContains(t, Basic("user", "secret").String(), "secret")
}

func TestTokenCache_CachesUntilRefreshBuffer(t *testing.T) {
	var calls atomic.Int32
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cache := NewTokenCache(NewCustomTokenProvider(func(context.Context) (string, time.Time, error) {
		n := calls.Add(1)
		return "tok" + string(rune('0'+n)), now.Add(time.Minute), nil
	}), 10*time.Second)
	cache.now = func() time.Time { return now }

	tok, err := cache.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)

	tok, err = cache.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok1", tok)
	assert.True(t, cache.IsValid())

	now = now.Add(55 * time.Second)
	assert.False(t, cache.IsValid())

	tok, err = cache.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok2", tok)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTokenCache_Invalidate(t *testing.T) {
	var calls atomic.Int32
	cache := NewTokenCache(NewCustomTokenProvider(func(context.Context) (string, time.Time, error) {
		calls.Add(1)
		return "t", time.Now().Add(time.Hour), nil
	}), 0)

	_, err := cache.GetToken(context.Background())
	require.NoError(t, err)
	cache.Invalidate()
	assert.False(t, cache.IsValid())

	b, err := cache.Bearer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer t", b.HeaderValue())
	assert.Equal(t, int32(2), calls.Load())
}

func TestTokenCache_ConcurrentFetchOnce(t *testing.T) {
	var calls atomic.Int32
	cache := NewTokenCache(NewCustomTokenProvider(func(context.Context) (string, time.Time, error) {
		calls.Add(1)
		time.Sleep(10 * time.Millisecond)
		return "t", time.Now().Add(time.Hour), nil
	}), time.Second)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := cache.GetToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "t", tok)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestTokenCache_ProviderError(t *testing.T) {
	boom := errors.New("boom")
	cache := NewTokenCache(NewCustomTokenProvider(func(context.Context) (string, time.Time, error) {
		return "", time.Time{}, boom
	}), 0)

	_, err := cache.GetToken(context.Background())
	assert.ErrorIs(t, err, boom)

	_, _, err = (&CustomTokenProvider{}).FetchToken(context.Background())
	assert.Error(t, err)
}

func TestStaticTokenProvider(t *testing.T) {
	tok, exp, err := NewStaticTokenProvider("s").FetchToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s", tok)
	assert.True(t, exp.After(time.Now().Add(24*time.Hour)))
}

func TestExpiryFromJWT(t *testing.T) {
	exp := time.Now().Add(15 * time.Minute).Truncate(time.Second)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString([]byte("key"))
	require.NoError(t, err)

	got, err := ExpiryFromJWT(signed)
	require.NoError(t, err)
	assert.True(t, exp.Equal(got))

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "x"}).SignedString([]byte("key"))
	require.NoError(t, err)
	_, err = ExpiryFromJWT(noExp)
	assert.ErrorIs(t, err, ErrNoExpiry)

	_, err = ExpiryFromJWT("not-a-jwt")
	assert.Error(t, err)
}
