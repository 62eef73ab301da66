package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/milan604/sessionhttp/pkg/auth"
	"github.com/milan604/sessionhttp/pkg/config"
	"github.com/milan604/sessionhttp/pkg/errors"
	"github.com/milan604/sessionhttp/pkg/options"
	"github.com/milan604/sessionhttp/pkg/transport"
)

const sampleYAML = `
http:
  redirects: 3
  headers:
    - "Accept: application/json"
    - "X-Trace: a"
    - "X-Trace: b"
  params:
    - "page=1"
    - "q=go lang"
  proxy:
    host: proxy.internal
    port: 3128
  auth:
    type: bearer
    token: s3cret
  transport:
    max_idle_conns: 20
    dial_timeout: 2s
    rate_limit: 5
    circuit_breaker:
      enabled: true
      consecutive_failures: 3
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadOptions_FromFile(t *testing.T) {
	cfg := config.New(config.WithFile(writeFile(t, "sessionhttp.yaml", sampleYAML)))

	opts, err := config.LoadOptions(cfg, config.DefaultHTTPKey)
	require.NoError(t, err)

	assert.Equal(t, 3, opts.Redirects())
	assert.Equal(t, []options.Header{
		{Name: "Accept", Value: "application/json"},
		{Name: "X-Trace", Value: "a"},
		{Name: "X-Trace", Value: "b"},
	}, opts.Headers())
	assert.Equal(t, []options.Param{{Key: "page", Value: "1"}, {Key: "q", Value: "go lang"}}, opts.Params())

	proxy, ok := opts.Proxy()
	require.True(t, ok)
	assert.Equal(t, options.Proxy{Host: "proxy.internal", Port: 3128}, proxy)
	assert.True(t, auth.Equal(auth.Bearer("s3cret"), opts.Auth()))

	s := opts.Manager().Settings()
	assert.Equal(t, 20, s.MaxIdleConns)
	assert.Equal(t, 2*time.Second, s.DialTimeout)
	assert.InDelta(t, 5.0, s.RateLimit, 0)
	assert.True(t, s.CircuitBreaker.Enabled)
	assert.EqualValues(t, 3, s.CircuitBreaker.ConsecutiveFailures)
	// untouched keys keep their defaults
	assert.Equal(t, transport.DefaultSettings().IdleConnTimeout, s.IdleConnTimeout)
}

func TestLoadOptions_Defaults(t *testing.T) {
	opts, err := config.LoadOptions(config.New(), config.DefaultHTTPKey)
	require.NoError(t, err)
	assert.Equal(t, options.DefaultRedirects, opts.Redirects())
	assert.Nil(t, opts.Auth())
	_, ok := opts.Proxy()
	assert.False(t, ok)
	assert.Equal(t, transport.DefaultSettings(), opts.Manager().Settings())
}

func TestLoadOptions_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		defaults map[string]any
	}{
		{"negative redirects", map[string]any{"http.redirects": -1}},
		{"malformed header", map[string]any{"http.headers": []string{"no colon"}}},
		{"malformed param", map[string]any{"http.params": []string{"=x"}}},
		{"bad proxy port", map[string]any{"http.proxy.host": "p", "http.proxy.port": 70000}},
		{"unknown auth", map[string]any{"http.auth.type": "digest"}},
		{"basic without user", map[string]any{"http.auth.type": "basic"}},
		{"bearer without token", map[string]any{"http.auth.type": "bearer"}},
		{"invalid transport", map[string]any{"http.transport.max_idle_conns": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadOptions(config.New(config.WithDefaults(tt.defaults)), config.DefaultHTTPKey)
			require.Error(t, err)
			assert.True(t, errors.IsConfiguration(err), "%v", err)
		})
	}
}

func TestLoadOptions_AuthKinds(t *testing.T) {
	cfg := config.New(config.WithDefaults(map[string]any{
		"http.auth.type":     "basic",
		"http.auth.username": "user",
		"http.auth.password": "pass",
	}))
	opts, err := config.LoadOptions(cfg, "http")
	require.NoError(t, err)
	assert.True(t, auth.Equal(auth.Basic("user", "pass"), opts.Auth()))

	cfg = config.New(config.WithDefaults(map[string]any{"http.auth.type": "token", "http.auth.token": "t"}))
	opts, err = config.LoadOptions(cfg, "http")
	require.NoError(t, err)
	assert.True(t, auth.Equal(auth.Token("t"), opts.Auth()))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SESSIONHTTP_HTTP_REDIRECTS", "1")
	cfg := config.New(
		config.WithFile(writeFile(t, "sessionhttp.yaml", sampleYAML)),
		config.WithEnv("SESSIONHTTP"),
	)
	opts, err := config.LoadOptions(cfg, "http")
	require.NoError(t, err)
	assert.Equal(t, 1, opts.Redirects())
}

func TestClientFlags(t *testing.T) {
	fs := config.ClientFlags()
	require.NoError(t, fs.Parse([]string{"--http.redirects=0", "--http.transport.dial_timeout=1s"}))
	cfg := config.New(config.WithPFlags(fs))

	opts, err := config.LoadOptions(cfg, "http")
	require.NoError(t, err)
	assert.Equal(t, 0, opts.Redirects())
	assert.Equal(t, time.Second, opts.Manager().Settings().DialTimeout)
}

func TestMaskedSettings(t *testing.T) {
	cfg := config.New(
		config.WithFile(writeFile(t, "sessionhttp.yaml", sampleYAML)),
		config.WithSensitiveKeys("http.proxy.host"),
	)
	masked := cfg.MaskedSettings()
	assert.Equal(t, "***REDACTED***", masked["http.auth.token"])
	assert.Equal(t, "***REDACTED***", masked["http.proxy.host"])
	assert.EqualValues(t, 3, masked["http.redirects"])
}

func TestGettersWithDefaults(t *testing.T) {
	cfg := config.New(config.WithDefaults(map[string]any{"a": "x", "n": 2, "b": true, "d": "3s"}))
	assert.Equal(t, "x", cfg.GetStringD("a", "y"))
	assert.Equal(t, "y", cfg.GetStringD("missing", "y"))
	assert.Equal(t, 2, cfg.GetIntD("n", 7))
	assert.Equal(t, 7, cfg.GetIntD("missing", 7))
	assert.True(t, cfg.GetBoolD("b", false))
	assert.Equal(t, 3*time.Second, cfg.GetDurationD("d", time.Second))
	assert.ErrorContains(t, cfg.ValidateRequired("a", "missing", "other"), "missing, other")
}
