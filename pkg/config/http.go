package config

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"github.com/milan604/sessionhttp/pkg/auth"
	"github.com/milan604/sessionhttp/pkg/errors"
	"github.com/milan604/sessionhttp/pkg/options"
	"github.com/milan604/sessionhttp/pkg/transport"
)

// DefaultHTTPKey is the root of the keys read by LoadOptions.
const DefaultHTTPKey = "http"

// LoadSettings reads transport settings under key, starting from
// transport.DefaultSettings so unset keys keep their defaults.
//
//	http:
//	  transport:
//	    max_idle_conns: 50
//	    dial_timeout: 5s
//	    rate_limit: 20
func LoadSettings(c *Config, key string) (transport.Settings, error) {
	s := transport.DefaultSettings()
	// AllSettings, unlike Get on a parent key, includes bound flags.
	tree, ok := subtree(c.AllSettings(), key)
	if !ok {
		return s, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
		WeaklyTypedInput: true,
		Result:           &s,
	})
	if err != nil {
		return s, err
	}
	if err := dec.Decode(tree); err != nil {
		return s, errors.Configuration("cannot decode %s", key).WithCause(err)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

func subtree(m map[string]any, key string) (map[string]any, bool) {
	for _, part := range strings.Split(strings.ToLower(key), ".") {
		next, ok := m[part].(map[string]any)
		if !ok {
			return nil, false
		}
		m = next
	}
	return m, true
}

// LoadOptions builds Options from the keys under key (usually DefaultHTTPKey):
//
//	redirects   int, default 9
//	headers     list of "Name: value"
//	params      list of "key=value"
//	proxy.host, proxy.port
//	auth.type   basic | bearer | token
//	auth.username, auth.password, auth.token
//	transport   see LoadSettings
func LoadOptions(c *Config, key string) (options.Options, error) {
	k := func(sub string) string { return key + "." + sub }
	opts := options.Defaults()

	settings, err := LoadSettings(c, k("transport"))
	if err != nil {
		return opts, err
	}
	opts = opts.WithManagerSettings(settings)

	if c.IsSet(k("redirects")) {
		n := c.GetInt(k("redirects"))
		if n < 0 {
			return opts, errors.Configuration("%s must not be negative", k("redirects"))
		}
		opts = opts.WithRedirects(n)
	}

	for _, line := range c.GetStringSlice(k("headers")) {
		name, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return opts, errors.Configuration("malformed header %q in %s", line, k("headers"))
		}
		opts = opts.WithHeader(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	for _, pair := range c.GetStringSlice(k("params")) {
		name, value, _ := strings.Cut(pair, "=")
		if name == "" {
			return opts, errors.Configuration("malformed param %q in %s", pair, k("params"))
		}
		opts = opts.WithParam(name, value)
	}

	if host := c.GetString(k("proxy.host")); host != "" {
		port := c.GetIntD(k("proxy.port"), 8080)
		if port <= 0 || port > 65535 {
			return opts, errors.Configuration("%s out of range: %d", k("proxy.port"), port)
		}
		opts = opts.WithProxy(host, port)
	}

	a, err := loadAuth(c, k("auth"))
	if err != nil {
		return opts, err
	}
	if a != nil {
		opts = opts.WithAuth(a)
	}
	return opts, nil
}

func loadAuth(c *Config, key string) (auth.Auth, error) {
	typ := strings.ToLower(c.GetString(key + ".type"))
	switch typ {
	case "", "none":
		return nil, nil
	case "basic":
		if err := c.ValidateRequired(key + ".username"); err != nil {
			return nil, errors.Configuration("basic auth").WithCause(err)
		}
		return auth.Basic(c.GetString(key+".username"), c.GetString(key+".password")), nil
	case "bearer", "token":
		if err := c.ValidateRequired(key + ".token"); err != nil {
			return nil, errors.Configuration("%s auth", typ).WithCause(err)
		}
		if typ == "bearer" {
			return auth.Bearer(c.GetString(key + ".token")), nil
		}
		return auth.Token(c.GetString(key + ".token")), nil
	default:
		return nil, errors.Configuration("unknown auth type %q", typ).
			WithSuggestion(key+".type", fmt.Sprintf("one of basic, bearer, token; got %q", typ))
	}
}
