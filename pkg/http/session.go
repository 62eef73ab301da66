// Package http provides Session, a reusable binding of a connection manager
// and a cookie jar, and one-shot helpers for calls that need neither.
package http

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/milan604/sessionhttp/pkg/cookie"
	"github.com/milan604/sessionhttp/pkg/errors"
	"github.com/milan604/sessionhttp/pkg/logger"
	"github.com/milan604/sessionhttp/pkg/observability"
	"github.com/milan604/sessionhttp/pkg/options"
	"github.com/milan604/sessionhttp/pkg/payload"
	"github.com/milan604/sessionhttp/pkg/request"
	"github.com/milan604/sessionhttp/pkg/response"
	"github.com/milan604/sessionhttp/pkg/transport"
)

// Session carries one connection manager and one cookie jar across calls.
// It is safe for concurrent use: calls dispatch in parallel and only the jar
// reads and merges are serialized, so no Set-Cookie update is lost.
//
// Session calls always use the session's manager; Options.Manager is ignored.
//
// IMPORTANT: Options.Cookies is honoured on the FIRST call made through a
// Session only. That call merges the given cookies into the session jar;
// every later call ignores Options.Cookies entirely. Use WithJar to seed a
// jar up front instead.
type Session struct {
	id            string
	manager       *transport.Manager
	ownsManager   bool
	settings      *transport.Settings
	log           logger.LogManager
	tracer        observability.ObservabilityIface
	observers     observability.Observers
	requestHooks  []RequestHook
	responseHooks []ResponseHook
	noCookies     bool

	mu     sync.Mutex
	jar    cookie.Jar
	seeded bool

	closed atomic.Bool
}

// NewSession creates a session. Without WithManager or WithSettings it owns a
// manager built from transport.DefaultSettings.
func NewSession(opts ...SessionOption) (*Session, error) {
	s := &Session{
		id:  uuid.NewString(),
		log: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.manager == nil {
		settings := transport.DefaultSettings()
		if s.settings != nil {
			settings = *s.settings
		}
		m, err := transport.NewManager(settings)
		if err != nil {
			return nil, err
		}
		s.manager = m
		s.ownsManager = true
	}

	s.log.DebugF("session %s created", s.id)
	return s, nil
}

// MustNewSession is NewSession that panics on error.
func MustNewSession(opts ...SessionOption) *Session {
	s, err := NewSession(opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// ID identifies the session in logs and traces.
func (s *Session) ID() string { return s.id }

// Manager returns the session's connection manager.
func (s *Session) Manager() *transport.Manager { return s.manager }

// Jar returns a snapshot of the session jar.
func (s *Session) Jar() cookie.Jar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jar
}

// SetJar replaces the session jar.
func (s *Session) SetJar(j cookie.Jar) {
	s.mu.Lock()
	s.jar = j
	s.mu.Unlock()
}

// Close releases the manager if the session created it. Calls after Close
// fail with a TransportError.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.log.DebugF("session %s closed", s.id)
	if s.ownsManager {
		return s.manager.Close()
	}
	return nil
}

// Request sends method to rawURL, following redirects per opts and keeping
// the session jar current.
func (s *Session) Request(ctx context.Context, method, rawURL string, opts options.Options, body payload.Payload) (*response.Response, error) {
	if s.closed.Load() {
		return nil, errors.Transport(method, rawURL, transport.ErrClosed)
	}

	ctx = logger.WithSessionID(ctx, s.id)
	ctx = logger.WithRequestID(ctx, uuid.NewString())

	prep, err := request.Build(ctx, method, rawURL, opts, body)
	if err != nil {
		return nil, err
	}
	s.seed(opts.Cookies())

	d := &dispatcher{
		manager:       s.manager,
		sessionID:     s.id,
		log:           s.log,
		tracer:        s.tracer,
		requestHooks:  s.requestHooks,
		responseHooks: s.responseHooks,
	}
	if len(s.observers) > 0 {
		d.observer = s.observers
	}
	if !s.noCookies {
		d.store = s
	}
	return d.do(ctx, prep, opts.ResponseCheck())
}

// seed merges the first call's Options.Cookies into the jar.
func (s *Session) seed(initial cookie.Jar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seeded {
		return
	}
	s.seeded = true
	s.jar = s.jar.Union(initial)
}

func (s *Session) header(u *url.URL) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jar.Header(u, time.Now())
}

// update merges into the live jar, never into a snapshot taken before the
// network wait.
func (s *Session) update(u *url.URL, setCookies []string) cookie.Jar {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(setCookies) > 0 {
		now := time.Now()
		s.jar = s.jar.Merge(u, setCookies, now).Expire(now)
	}
	return s.jar
}

func (s *Session) Get(ctx context.Context, rawURL string, opts options.Options) (*response.Response, error) {
	return s.Request(ctx, http.MethodGet, rawURL, opts, nil)
}

func (s *Session) Head(ctx context.Context, rawURL string, opts options.Options) (*response.Response, error) {
	return s.Request(ctx, http.MethodHead, rawURL, opts, nil)
}

func (s *Session) Delete(ctx context.Context, rawURL string, opts options.Options) (*response.Response, error) {
	return s.Request(ctx, http.MethodDelete, rawURL, opts, nil)
}

func (s *Session) Options(ctx context.Context, rawURL string, opts options.Options) (*response.Response, error) {
	return s.Request(ctx, http.MethodOptions, rawURL, opts, nil)
}

func (s *Session) Post(ctx context.Context, rawURL string, opts options.Options, body payload.Payload) (*response.Response, error) {
	return s.Request(ctx, http.MethodPost, rawURL, opts, body)
}

func (s *Session) Put(ctx context.Context, rawURL string, opts options.Options, body payload.Payload) (*response.Response, error) {
	return s.Request(ctx, http.MethodPut, rawURL, opts, body)
}

func (s *Session) Patch(ctx context.Context, rawURL string, opts options.Options, body payload.Payload) (*response.Response, error) {
	return s.Request(ctx, http.MethodPatch, rawURL, opts, body)
}
