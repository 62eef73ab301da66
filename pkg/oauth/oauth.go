// Package oauth fetches OAuth2 client-credentials tokens through a session
// and turns them into bearer credentials on Options.
package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/milan604/sessionhttp/pkg/auth"
	"github.com/milan604/sessionhttp/pkg/config"
	"github.com/milan604/sessionhttp/pkg/form"
	sessionhttp "github.com/milan604/sessionhttp/pkg/http"
	"github.com/milan604/sessionhttp/pkg/logger"
	"github.com/milan604/sessionhttp/pkg/options"
	"github.com/milan604/sessionhttp/pkg/payload"
	"github.com/milan604/sessionhttp/pkg/response"
	"github.com/milan604/sessionhttp/pkg/validator"
)

// DefaultTTL is assumed when the token endpoint gives no expiry and the token
// is not a JWT with an exp claim.
const DefaultTTL = time.Hour

// Config holds configuration for ClientCredentials.
type Config struct {
	TokenURL     string `mapstructure:"token_url" validate:"required,url"`
	ClientID     string `mapstructure:"client_id" validate:"required"`
	ClientSecret string `mapstructure:"client_secret" validate:"required"`
	Scope        string `mapstructure:"scope"`
	// BasicAuth sends the client credentials as HTTP basic auth instead of
	// form fields.
	BasicAuth bool `mapstructure:"basic_auth"`
	// RefreshBuffer is how long before expiry a token is replaced.
	RefreshBuffer time.Duration `mapstructure:"refresh_buffer" validate:"gte=0"`
}

// ClientCredentials implements auth.TokenProvider for the OAuth2 client
// credentials grant.
type ClientCredentials struct {
	cfg    Config
	client sessionhttp.Client
	base   options.Options
	now    func() time.Time
}

// tokenResponse is the RFC 6749 section 5.1 body.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
	// ExpiresAt is a non-standard RFC 3339 expiry some issuers send instead
	// of expires_in.
	ExpiresAt string `json:"expires_at"`
}

// NewClientCredentials creates a provider that posts to cfg.TokenURL through
// client. base supplies headers, proxy and manager for token requests.
func NewClientCredentials(cfg Config, client sessionhttp.Client, base options.Options) (*ClientCredentials, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, err
	}
	return &ClientCredentials{
		cfg:    cfg,
		client: client,
		base:   base.WithResponseCheck(options.CheckStatus),
		now:    time.Now,
	}, nil
}

// FetchToken retrieves a token using the client credentials grant.
func (p *ClientCredentials) FetchToken(ctx context.Context) (string, time.Time, error) {
	body := payload.Form{form.P("grant_type", "client_credentials")}
	opts := p.base
	if p.cfg.BasicAuth {
		opts = opts.WithAuth(auth.Basic(p.cfg.ClientID, p.cfg.ClientSecret))
	} else {
		body = append(body, form.P("client_id", p.cfg.ClientID), form.P("client_secret", p.cfg.ClientSecret))
	}
	if p.cfg.Scope != "" {
		body = append(body, form.P("scope", p.cfg.Scope))
	}

	r, err := p.client.Post(ctx, p.cfg.TokenURL, opts, body)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to fetch token: %w", err)
	}

	tok, err := response.AsJSON[tokenResponse](r)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("empty access token in response")
	}

	return tok.AccessToken, p.expiry(tok), nil
}

// expiry prefers expires_in, then expires_at, then the JWT exp claim, then
// DefaultTTL.
func (p *ClientCredentials) expiry(tok tokenResponse) time.Time {
	if tok.ExpiresIn > 0 {
		return p.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	if tok.ExpiresAt != "" {
		if t, err := time.Parse(time.RFC3339, tok.ExpiresAt); err == nil {
			return t
		}
	}
	if exp, err := auth.ExpiryFromJWT(tok.AccessToken); err == nil {
		return exp
	}
	return p.now().Add(DefaultTTL)
}

// Source hands out cached bearer credentials.
type Source struct {
	cache *auth.TokenCache
}

// NewSource caches tokens from provider, refreshing refreshBuffer before expiry.
func NewSource(provider auth.TokenProvider, refreshBuffer time.Duration) *Source {
	return &Source{cache: auth.NewTokenCache(provider, refreshBuffer)}
}

// Options derives base with the current token as OAuth2Bearer auth.
func (s *Source) Options(ctx context.Context, base options.Options) (options.Options, error) {
	b, err := s.cache.Bearer(ctx)
	if err != nil {
		return base, err
	}
	return base.WithAuth(b), nil
}

// Invalidate drops the cached token, e.g. after a 401.
func (s *Source) Invalidate() {
	s.cache.Invalidate()
}

// Config keys read by NewSourceFromConfig, relative to the given prefix.
const (
	KeyTokenURL      = "token_url"
	KeyClientID      = "client_id"
	KeyClientSecret  = "client_secret"
	KeyScope         = "scope"
	KeyBasicAuth     = "basic_auth"
	KeyRefreshBuffer = "refresh_buffer"
)

// NewSourceFromConfig builds a client-credentials Source from the keys under
// prefix (e.g. "oauth"). Token requests go through a cookie-less session that
// the caller owns via the returned close func.
func NewSourceFromConfig(log logger.LogManager, cfg *config.Config, prefix string) (*Source, func() error, error) {
	key := func(k string) string { return prefix + "." + k }

	if err := cfg.ValidateRequired(key(KeyTokenURL), key(KeyClientID), key(KeyClientSecret)); err != nil {
		return nil, nil, fmt.Errorf("oauth configuration: %w", err)
	}

	c := Config{
		TokenURL:      cfg.GetString(key(KeyTokenURL)),
		ClientID:      cfg.GetString(key(KeyClientID)),
		ClientSecret:  cfg.GetString(key(KeyClientSecret)),
		Scope:         cfg.GetString(key(KeyScope)),
		BasicAuth:     cfg.GetBoolD(key(KeyBasicAuth), false),
		RefreshBuffer: cfg.GetDurationD(key(KeyRefreshBuffer), time.Minute),
	}

	session, err := sessionhttp.NewSession(sessionhttp.WithLogger(log), sessionhttp.WithoutCookies())
	if err != nil {
		return nil, nil, err
	}
	provider, err := NewClientCredentials(c, session, options.Defaults())
	if err != nil {
		_ = session.Close()
		return nil, nil, err
	}
	return NewSource(provider, c.RefreshBuffer), session.Close, nil
}
