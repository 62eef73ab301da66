// Package transport adapts net/http's Transport into the connection manager
// used by sessions: one pooled transport per Manager, dispatching exactly one
// request/response exchange per call.
package transport

import (
	"time"

	"github.com/milan604/sessionhttp/pkg/validator"
	"github.com/milan604/sessionhttp/pkg/version"
)

// Settings configure a Manager. The zero value of each field means "use the
// net/http default" unless noted.
type Settings struct {
	MaxIdleConns        int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	MaxIdleConnsPerHost int           `mapstructure:"max_idle_conns_per_host" validate:"gte=0"`
	MaxConnsPerHost     int           `mapstructure:"max_conns_per_host" validate:"gte=0"`
	IdleConnTimeout     time.Duration `mapstructure:"idle_conn_timeout" validate:"gte=0"`

	DialTimeout           time.Duration `mapstructure:"dial_timeout" validate:"gte=0"`
	KeepAlive             time.Duration `mapstructure:"keep_alive"`
	TLSHandshakeTimeout   time.Duration `mapstructure:"tls_handshake_timeout" validate:"gte=0"`
	ResponseHeaderTimeout time.Duration `mapstructure:"response_header_timeout" validate:"gte=0"`
	ExpectContinueTimeout time.Duration `mapstructure:"expect_continue_timeout" validate:"gte=0"`

	// InsecureSkipVerify disables TLS certificate checks. Test use only.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify"`
	DisableCompression bool `mapstructure:"disable_compression"`
	DisableKeepAlives  bool `mapstructure:"disable_keep_alives"`
	ForceHTTP2         bool `mapstructure:"force_http2"`

	// ProxyFromEnvironment consults HTTP_PROXY and friends when a request
	// carries no explicit proxy.
	ProxyFromEnvironment bool `mapstructure:"proxy_from_environment"`

	// UserAgent is set on requests that have none. Empty sends Go's default.
	UserAgent string `mapstructure:"user_agent"`

	// RateLimit caps dispatches per second across the manager; 0 is unlimited.
	RateLimit float64 `mapstructure:"rate_limit" validate:"gte=0"`
	// RateBurst defaults to max(1, int(RateLimit)).
	RateBurst int `mapstructure:"rate_burst" validate:"gte=0"`

	CircuitBreaker BreakerSettings `mapstructure:"circuit_breaker"`
}

// BreakerSettings configure the optional circuit breaker. Only transport
// failures count against it; any HTTP status is a success.
type BreakerSettings struct {
	Enabled bool `mapstructure:"enabled"`
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32 `mapstructure:"consecutive_failures" validate:"required_if=Enabled true"`
	// MaxRequests allowed through while half-open.
	MaxRequests uint32 `mapstructure:"max_requests"`
	// Interval clears counts while closed; 0 never clears.
	Interval time.Duration `mapstructure:"interval" validate:"gte=0"`
	// Timeout is the open period before probing again.
	Timeout time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// DefaultSettings mirror http.DefaultTransport with a sessionhttp User-Agent.
func DefaultSettings() Settings {
	return Settings{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		DialTimeout:           30 * time.Second,
		KeepAlive:             30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ForceHTTP2:            true,
		UserAgent:             version.UserAgent(),
		CircuitBreaker: BreakerSettings{
			ConsecutiveFailures: 5,
			MaxRequests:         1,
			Timeout:             30 * time.Second,
		},
	}
}

// Validate checks the settings and returns a *errors.ConfigurationError on failure.
func (s Settings) Validate() error {
	return validator.Validate(s)
}
