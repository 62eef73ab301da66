package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("transport: manager closed")

// Manager owns a pooled transport shared by every request dispatched through
// it. It is safe for concurrent use.
type Manager struct {
	settings Settings
	rt       http.RoundTripper
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[*http.Response]
	closed   atomic.Bool
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRoundTripper replaces the pooled transport, e.g. with an instrumented
// or fake one. Proxy and TLS settings are then the round tripper's concern.
func WithRoundTripper(rt http.RoundTripper) ManagerOption {
	return func(m *Manager) { m.rt = rt }
}

// WithStateChange observes circuit breaker transitions.
func WithStateChange(fn func(name string, from, to gobreaker.State)) ManagerOption {
	return func(m *Manager) {
		if m.breaker == nil {
			return
		}
		m.breaker = newBreaker(m.settings.CircuitBreaker, fn)
	}
}

// NewManager validates s and builds a Manager.
func NewManager(s Settings, opts ...ManagerOption) (*Manager, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{settings: s}
	m.rt = newTransport(s)

	if s.RateLimit > 0 {
		burst := s.RateBurst
		if burst <= 0 {
			burst = max(1, int(s.RateLimit))
		}
		m.limiter = rate.NewLimiter(rate.Limit(s.RateLimit), burst)
	}
	if s.CircuitBreaker.Enabled {
		m.breaker = newBreaker(s.CircuitBreaker, nil)
	}

	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func newTransport(s Settings) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()

	dialer := &net.Dialer{Timeout: s.DialTimeout, KeepAlive: s.KeepAlive}
	t.DialContext = dialer.DialContext
	t.Proxy = proxyFunc(s.ProxyFromEnvironment)

	t.MaxIdleConns = s.MaxIdleConns
	t.MaxIdleConnsPerHost = s.MaxIdleConnsPerHost
	t.MaxConnsPerHost = s.MaxConnsPerHost
	t.IdleConnTimeout = s.IdleConnTimeout
	t.TLSHandshakeTimeout = s.TLSHandshakeTimeout
	t.ResponseHeaderTimeout = s.ResponseHeaderTimeout
	t.ExpectContinueTimeout = s.ExpectContinueTimeout
	t.DisableCompression = s.DisableCompression
	t.DisableKeepAlives = s.DisableKeepAlives
	t.ForceAttemptHTTP2 = s.ForceHTTP2

	if s.InsecureSkipVerify {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for tests
	}
	return t
}

func newBreaker(s BreakerSettings, onChange func(string, gobreaker.State, gobreaker.State)) *gobreaker.CircuitBreaker[*http.Response] {
	threshold := s.ConsecutiveFailures
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "sessionhttp",
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: onChange,
		// the caller giving up says nothing about the remote host
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// Settings returns the settings the manager was built with.
func (m *Manager) Settings() Settings { return m.settings }

// BreakerState reports the circuit breaker state, or StateClosed when disabled.
func (m *Manager) BreakerState() gobreaker.State {
	if m.breaker == nil {
		return gobreaker.StateClosed
	}
	return m.breaker.State()
}

// Dispatch sends req and returns the response without following redirects.
// The caller owns the response body. Dispatch waits for the rate limiter,
// honouring req's context, and fails fast while the circuit breaker is open.
func (m *Manager) Dispatch(req *http.Request) (*http.Response, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(req.Context()); err != nil {
			if ctxErr := req.Context().Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// the wait would outlive the deadline
			return nil, fmt.Errorf("transport: %v: %w", err, context.DeadlineExceeded)
		}
	}
	if m.settings.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", m.settings.UserAgent)
	}

	if m.breaker == nil {
		return m.rt.RoundTrip(req)
	}
	return m.breaker.Execute(func() (*http.Response, error) {
		return m.rt.RoundTrip(req)
	})
}

// Close releases idle connections. In-flight requests are not interrupted.
func (m *Manager) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	type idleCloser interface{ CloseIdleConnections() }
	if c, ok := m.rt.(idleCloser); ok {
		c.CloseIdleConnections()
	}
	return nil
}

type proxyKey struct{}

// WithProxy returns a context that routes requests through proxy.
func WithProxy(ctx context.Context, proxy *url.URL) context.Context {
	if proxy == nil {
		return ctx
	}
	return context.WithValue(ctx, proxyKey{}, proxy)
}

// ProxyFromContext returns the proxy attached by WithProxy, if any.
func ProxyFromContext(ctx context.Context) *url.URL {
	u, _ := ctx.Value(proxyKey{}).(*url.URL)
	return u
}

func proxyFunc(fromEnv bool) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		if u := ProxyFromContext(req.Context()); u != nil {
			return u, nil
		}
		if fromEnv {
			return http.ProxyFromEnvironment(req)
		}
		return nil, nil
	}
}
