// Package testserver runs an in-process echo server with httpbin-like routes
// for exercising sessions end to end.
package testserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/milan604/sessionhttp/pkg/logger"
)

// Recorded is a request as the server received it.
type Recorded struct {
	Method string
	Path   string
	Query  string
	Host   string
	Header http.Header
}

// Server is a running test server. It is closed when the test ends.
type Server struct {
	*httptest.Server

	log          logger.LogManager
	clientID     string
	clientSecret string
	signingKey   []byte
	tokenTTL     time.Duration

	// server spans, on a provider private to this server
	tracer *sdktrace.TracerProvider
	spans  *tracetest.InMemoryExporter

	mu       sync.Mutex
	requests []Recorded
	tokens   atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger logs every request through l.
func WithLogger(l logger.LogManager) Option {
	return func(s *Server) { s.log = l }
}

// WithClientCredentials sets the credentials /token accepts.
func WithClientCredentials(id, secret string) Option {
	return func(s *Server) {
		s.clientID = id
		s.clientSecret = secret
	}
}

// WithJWTTokens makes /token issue HS256 JWTs signed with key and omit
// expires_in, so clients must read the expiry from the token itself.
func WithJWTTokens(key []byte) Option {
	return func(s *Server) { s.signingKey = key }
}

// WithTokenTTL sets the lifetime of issued tokens.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Server) { s.tokenTTL = d }
}

// New starts a server and registers its shutdown with t.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		log:          logger.NewNop(),
		clientID:     "client",
		clientSecret: "secret",
		tokenTTL:     time.Hour,
	}
	for _, o := range opts {
		o(s)
	}

	s.spans = tracetest.NewInMemoryExporter()
	s.tracer = sdktrace.NewTracerProvider(sdktrace.WithSyncer(s.spans))

	s.Server = httptest.NewServer(s.engine())
	t.Cleanup(func() {
		s.Close()
		_ = s.tracer.Shutdown(context.Background())
	})
	return s
}

// Endpoint returns the absolute URL for path.
func (s *Server) Endpoint(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return s.URL + path
}

// Requests returns every request received so far, in arrival order.
func (s *Server) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Recorded, len(s.requests))
	copy(out, s.requests)
	return out
}

// Last returns the most recent request. It panics if there is none.
func (s *Server) Last() Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[len(s.requests)-1]
}

// Spans returns the server spans ended so far. Each request gets one,
// parented on the trace context the client sent.
func (s *Server) Spans() tracetest.SpanStubs {
	return s.spans.GetSpans()
}

// TokensIssued reports how many tokens /token has handed out.
func (s *Server) TokensIssued() int64 {
	return s.tokens.Load()
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.requests = append(s.requests, Recorded{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Query:  c.Request.URL.RawQuery,
		Host:   c.Request.Host,
		Header: c.Request.Header.Clone(),
	})
	s.mu.Unlock()
	c.Next()
}

func (s *Server) engine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()

	engine.Use(otelgin.Middleware("testserver",
		otelgin.WithTracerProvider(s.tracer),
		otelgin.WithPropagators(propagation.TraceContext{}),
	))
	engine.Use(requestIDMiddleware())
	engine.Use(accessLoggerMiddleware(s.log))
	engine.Use(s.record)
	engine.Use(recoveryMiddleware(s.log))

	s.routes(engine)
	return engine
}
