package http

import (
	"github.com/milan604/sessionhttp/pkg/cookie"
	"github.com/milan604/sessionhttp/pkg/logger"
	"github.com/milan604/sessionhttp/pkg/observability"
	"github.com/milan604/sessionhttp/pkg/transport"
)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets a logger for the session.
func WithLogger(l logger.LogManager) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// WithManager shares an existing manager. The session does not close it.
func WithManager(m *transport.Manager) SessionOption {
	return func(s *Session) {
		s.manager = m
		s.settings = nil
	}
}

// WithSettings makes the session build, and own, a manager from settings.
func WithSettings(settings transport.Settings) SessionOption {
	return func(s *Session) {
		s.manager = nil
		s.settings = &settings
	}
}

// WithJar seeds the session jar.
func WithJar(j cookie.Jar) SessionOption {
	return func(s *Session) { s.jar = j }
}

// WithoutCookies turns the jar off: no Cookie header is attached and
// Set-Cookie is ignored.
func WithoutCookies() SessionOption {
	return func(s *Session) { s.noCookies = true }
}

// WithRequestHook adds a hook that runs before each hop is sent.
func WithRequestHook(hook RequestHook) SessionOption {
	return func(s *Session) {
		s.requestHooks = append(s.requestHooks, hook)
	}
}

// WithResponseHook adds a hook that runs after each hop is received.
func WithResponseHook(hook ResponseHook) SessionOption {
	return func(s *Session) {
		s.responseHooks = append(s.responseHooks, hook)
	}
}

// WithTracing starts a client span per call.
func WithTracing(obs observability.ObservabilityIface) SessionOption {
	return func(s *Session) { s.tracer = obs }
}

// WithObserver reports every hop to o. It may be given more than once.
func WithObserver(o observability.RequestObserver) SessionOption {
	return func(s *Session) {
		s.observers = append(s.observers, o)
	}
}
