package http_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/milan604/sessionhttp/internal/testserver"
	"github.com/milan604/sessionhttp/pkg/auth"
	"github.com/milan604/sessionhttp/pkg/cookie"
	"github.com/milan604/sessionhttp/pkg/errors"
	"github.com/milan604/sessionhttp/pkg/form"
	sessionhttp "github.com/milan604/sessionhttp/pkg/http"
	"github.com/milan604/sessionhttp/pkg/logger"
	"github.com/milan604/sessionhttp/pkg/observability"
	"github.com/milan604/sessionhttp/pkg/options"
	"github.com/milan604/sessionhttp/pkg/payload"
	"github.com/milan604/sessionhttp/pkg/response"
	"github.com/milan604/sessionhttp/pkg/transport"
)

func newSession(t *testing.T, opts ...sessionhttp.SessionOption) *sessionhttp.Session {
	t.Helper()
	s, err := sessionhttp.NewSession(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// setCookieURL asks the server to answer with the given Set-Cookie lines.
func setCookieURL(srv *testserver.Server, lines ...string) string {
	q := url.Values{"Set-Cookie": lines}
	return srv.Endpoint("/response-headers?" + q.Encode())
}

func echoOf(t *testing.T, r *response.Response) testserver.Echo {
	t.Helper()
	e, err := response.AsJSON[testserver.Echo](r)
	require.NoError(t, err)
	return e
}

func TestSession_CookiePersistence(t *testing.T) {
	srv := testserver.New(t)
	s := newSession(t)
	ctx := context.Background()

	_, err := s.Get(ctx, setCookieURL(srv, "a=1; Path=/"), options.Defaults())
	require.NoError(t, err)

	r, err := s.Get(ctx, srv.Endpoint("/get"), options.Defaults())
	require.NoError(t, err)

	assert.Equal(t, "a=1", srv.Last().Header.Get("Cookie"))
	assert.Equal(t, map[string]string{"a": "1"}, echoOf(t, r).Cookies)
	assert.Equal(t, 1, s.Jar().Len())
}

func TestSession_CookiesAcrossRedirect(t *testing.T) {
	srv := testserver.New(t)
	s := newSession(t)
	ctx := context.Background()

	r, err := s.Get(ctx, srv.Endpoint("/cookies/set?x=1&y=2"), options.Defaults())
	require.NoError(t, err)

	body, err := response.AsJSON[map[string]map[string]string](r)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"x": "1", "y": "2"}, body["cookies"])
	assert.Equal(t, 1, r.Redirects)
	assert.Equal(t, "/cookies", r.URL.Path)
	assert.Equal(t, 2, r.Jar.Len())

	r, err = s.Get(ctx, srv.Endpoint("/cookies/delete?x"), options.Defaults())
	require.NoError(t, err)
	body, err = response.AsJSON[map[string]map[string]string](r)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"y": "2"}, body["cookies"])

	_, ok := s.Jar().Lookup("x", "127.0.0.1", "/")
	assert.False(t, ok)
}

func TestSession_RedirectLimit(t *testing.T) {
	srv := testserver.New(t)
	s := newSession(t)

	r, err := s.Get(context.Background(), srv.Endpoint("/redirect/10"), options.Defaults().WithRedirects(3))
	require.Error(t, err)
	assert.Nil(t, r)
	assert.True(t, errors.IsTooManyRedirects(err))

	var tooMany *errors.TooManyRedirectsError
	require.True(t, errors.As(err, &tooMany))
	assert.Equal(t, 3, tooMany.Limit)
	require.NotNil(t, tooMany.Response)
	assert.Equal(t, http.StatusFound, tooMany.Response.StatusCode)
	assert.Equal(t, 3, tooMany.Response.Redirects)
	assert.Len(t, srv.Requests(), 4)
}

func TestSession_RedirectsUpToLimit(t *testing.T) {
	srv := testserver.New(t)
	s := newSession(t)

	r, err := s.Get(context.Background(), srv.Endpoint("/redirect/3"), options.Defaults().WithRedirects(3))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, 3, r.Redirects)
	assert.Equal(t, "/get", r.URL.Path)
}

func TestSession_RedirectsDisabled(t *testing.T) {
	srv := testserver.New(t)
	s := newSession(t)

	r, err := s.Get(context.Background(), srv.Endpoint("/redirect/1"), options.Defaults().WithRedirects(0))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, r.StatusCode)
	assert.Equal(t, "/get", r.Header.Get("Location"))
	assert.Len(t, srv.Requests(), 1)
}

func TestSession_RedirectMethodRewrite(t *testing.T) {
	srv := testserver.New(t)
	s := newSession(t)
	body := payload.Form{form.P("a", "1")}

	tests := []struct {
		code       int
		wantMethod string
		wantBody   string
	}{
		{http.StatusFound, http.MethodGet, ""},
		{http.StatusSeeOther, http.MethodGet, ""},
		{http.StatusTemporaryRedirect, http.MethodPost, "a=1"},
		{http.StatusPermanentRedirect, http.MethodPost, "a=1"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			target := srv.Endpoint(fmt.Sprintf("/redirect-to?url=/anything&status_code=%d", tt.code))
			r, err := s.Post(context.Background(), target, options.Defaults(), body)
			require.NoError(t, err)

			e := echoOf(t, r)
			assert.Equal(t, tt.wantMethod, e.Method)
			assert.Equal(t, tt.wantBody, e.Body)
			if tt.wantBody == "" {
				assert.Empty(t, srv.Last().Header.Get("Content-Type"))
			} else {
				assert.Equal(t, payload.ContentTypeForm, srv.Last().Header.Get("Content-Type"))
			}
		})
	}
}

func TestSession_RedirectStreamNotReplayed(t *testing.T) {
	srv := testserver.New(t)
	s := newSession(t)

	target := srv.Endpoint("/redirect-to?url=/anything&status_code=307")
	r, err := s.Put(context.Background(), target, options.Defaults(),
		payload.Raw{ContentType: "text/plain", Stream: strings.NewReader("once")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusTemporaryRedirect, r.StatusCode)
	assert.Len(t, srv.Requests(), 1)
}

func TestSession_AuthorizationOnlyToOrigin(t *testing.T) {
	origin := testserver.New(t)
	other := testserver.New(t)
	s := newSession(t)
	opts := options.Defaults().WithAuth(auth.Bearer("secret"))

	_, err := s.Get(context.Background(), origin.Endpoint("/redirect-to?url=/get"), opts)
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", origin.Last().Header.Get("Authorization"))

	_, err = s.Get(context.Background(), origin.Endpoint("/redirect-to?url="+url.QueryEscape(other.Endpoint("/get"))), opts)
	require.NoError(t, err)
	assert.Empty(t, other.Last().Header.Get("Authorization"))
}

func TestSession_ConcurrentSetCookieNotLost(t *testing.T) {
	srv := testserver.New(t)
	s := newSession(t)
	const n = 40

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Go(func() {
			_, err := s.Get(context.Background(), setCookieURL(srv, fmt.Sprintf("k%d=v%d; Path=/", i, i)), options.Defaults())
			errs <- err
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	jar := s.Jar()
	assert.Equal(t, n, jar.Len())
	for i := range n {
		c, ok := jar.Lookup(fmt.Sprintf("k%d", i), "127.0.0.1", "/")
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("v%d", i), c.Value)
	}
}

func TestSession_FirstCallCookiesOnly(t *testing.T) {
	srv := testserver.New(t)
	s := newSession(t)
	ctx := context.Background()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	now := time.Now()
	first := cookie.Jar{}.Merge(u, []string{"c=1; Path=/"}, now)
	second := cookie.Jar{}.Merge(u, []string{"d=2; Path=/"}, now)

	r, err := s.Get(ctx, srv.Endpoint("/get"), options.Defaults().WithCookies(first))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"c": "1"}, echoOf(t, r).Cookies)

	r, err = s.Get(ctx, srv.Endpoint("/get"), options.Defaults().WithCookies(second))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"c": "1"}, echoOf(t, r).Cookies)
}

func TestSession_WithJarAndWithoutCookies(t *testing.T) {
	srv := testserver.New(t)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	seed := cookie.Jar{}.Merge(u, []string{"seed=1; Path=/"}, time.Now())

	s := newSession(t, sessionhttp.WithJar(seed))
	r, err := s.Get(context.Background(), srv.Endpoint("/get"), options.Defaults())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"seed": "1"}, echoOf(t, r).Cookies)

	bare := newSession(t, sessionhttp.WithJar(seed), sessionhttp.WithoutCookies())
	r, err = bare.Get(context.Background(), setCookieURL(srv, "a=1; Path=/"), options.Defaults())
	require.NoError(t, err)
	assert.Empty(t, srv.Last().Header.Get("Cookie"))
	assert.Equal(t, 0, r.Jar.Len())
	assert.Equal(t, 1, bare.Jar().Len())
}

func TestSession_Cancellation(t *testing.T) {
	srv := testserver.New(t)
	s := newSession(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := s.Get(ctx, srv.Endpoint("/delay/2000"), options.Defaults())
	require.Error(t, err)
	assert.True(t, errors.IsTransport(err))
	assert.True(t, errors.IsTimeout(err))

	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	_, err = s.Get(ctx, srv.Endpoint("/get"), options.Defaults())
	require.Error(t, err)
	assert.True(t, errors.IsCanceled(err))
}

func TestSession_TransportError(t *testing.T) {
	srv := testserver.New(t)
	target := srv.Endpoint("/get")
	srv.Close()

	s := newSession(t)
	_, err := s.Get(context.Background(), target, options.Defaults())
	require.Error(t, err)

	var te *errors.TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.MethodGet, te.Method)
	assert.Equal(t, target, te.URL)
}

func TestSession_ConfigurationError(t *testing.T) {
	s := newSession(t)
	_, err := s.Get(context.Background(), "not a url", options.Defaults())
	assert.True(t, errors.IsConfiguration(err))
}

func TestSession_ResponseCheck(t *testing.T) {
	srv := testserver.New(t)
	s := newSession(t)

	r, err := s.Get(context.Background(), srv.Endpoint("/status/404"), options.Defaults().WithResponseCheck(options.CheckStatus))
	require.Error(t, err)
	assert.True(t, errors.IsStatus(err))
	require.NotNil(t, r)
	assert.Equal(t, http.StatusNotFound, r.StatusCode)

	r, err = s.Get(context.Background(), srv.Endpoint("/status/404"), options.Defaults())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
}

func TestSession_Hooks(t *testing.T) {
	srv := testserver.New(t)
	var mu sync.Mutex
	var seen []int

	s := newSession(t,
		sessionhttp.WithRequestHook(func(req *http.Request) error {
			req.Header.Set("X-Hook", "yes")
			return nil
		}),
		sessionhttp.WithResponseHook(func(r *response.Response) error {
			mu.Lock()
			seen = append(seen, r.StatusCode)
			mu.Unlock()
			return nil
		}),
	)

	_, err := s.Get(context.Background(), srv.Endpoint("/redirect/2"), options.Defaults())
	require.NoError(t, err)
	assert.Equal(t, []int{302, 302, 200}, seen)
	for _, rec := range srv.Requests() {
		assert.Equal(t, "yes", rec.Header.Get("X-Hook"))
	}

	failing := newSession(t, sessionhttp.WithRequestHook(func(*http.Request) error {
		return fmt.Errorf("denied")
	}))
	_, err = failing.Get(context.Background(), srv.Endpoint("/get"), options.Defaults())
	assert.ErrorContains(t, err, "request hook failed: denied")
	assert.True(t, errors.IsHook(err))
	assert.Equal(t, errors.CodeHook, errors.CodeOf(err))

	rejecting := newSession(t, sessionhttp.WithResponseHook(func(r *response.Response) error {
		if r.StatusCode == http.StatusFound {
			return errors.Status(r)
		}
		return nil
	}))
	_, err = rejecting.Get(context.Background(), srv.Endpoint("/redirect/1"), options.Defaults())
	var he *errors.HookError
	require.True(t, errors.As(err, &he), "%v", err)
	assert.Equal(t, "response", he.Stage)
	assert.Equal(t, 0, he.Hop)
	assert.True(t, errors.IsStatus(err))
}

func TestSession_Close(t *testing.T) {
	s, err := sessionhttp.NewSession()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Get(context.Background(), "http://127.0.0.1:1/", options.Defaults())
	assert.True(t, errors.IsTransport(err))
	assert.True(t, errors.Is(err, transport.ErrClosed))
}

func TestSession_SharedManagerNotClosed(t *testing.T) {
	srv := testserver.New(t)
	m, err := transport.NewManager(transport.DefaultSettings())
	require.NoError(t, err)
	defer m.Close()

	s, err := sessionhttp.NewSession(sessionhttp.WithManager(m))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	other := newSession(t, sessionhttp.WithManager(m))
	_, err = other.Get(context.Background(), srv.Endpoint("/get"), options.Defaults())
	assert.NoError(t, err)
	assert.Same(t, m, other.Manager())
}

func TestSession_InvalidSettings(t *testing.T) {
	settings := transport.DefaultSettings()
	settings.RateLimit = -1
	_, err := sessionhttp.NewSession(sessionhttp.WithSettings(settings))
	assert.True(t, errors.IsConfiguration(err))
}

func TestSession_PayloadsAndAuth(t *testing.T) {
	srv := testserver.New(t)
	s := newSession(t)
	ctx := context.Background()

	r, err := s.Post(ctx, srv.Endpoint("/post"), options.Defaults(), payload.Multipart{
		payload.FieldPart("field", "v"),
		payload.FilePart("file", "f.txt", []byte("data")),
	})
	require.NoError(t, err)
	e := echoOf(t, r)
	assert.Equal(t, []string{"v"}, e.Form["field"])
	assert.Equal(t, "f.txt", e.Files["file"].Filename)
	assert.Equal(t, "data", e.Files["file"].Content)

	r, err = s.Put(ctx, srv.Endpoint("/put"), options.Defaults(), payload.JSON{Value: map[string]int{"n": 1}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, string(echoOf(t, r).JSON))

	r, err = s.Patch(ctx, srv.Endpoint("/patch"), options.Defaults().WithParam("q", "a b"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a b"}, echoOf(t, r).Args["q"])

	r, err = s.Get(ctx, srv.Endpoint("/basic-auth/user/pass"), options.Defaults().WithAuth(auth.Basic("user", "pass")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, r.StatusCode)

	r, err = s.Get(ctx, srv.Endpoint("/basic-auth/user/pass"), options.Defaults().WithAuth(auth.Basic("user", "wrong")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, r.StatusCode)
}

func TestSession_MethodsWithoutBody(t *testing.T) {
	srv := testserver.New(t)
	s := newSession(t)
	ctx := context.Background()

	r, err := s.Head(ctx, srv.Endpoint("/anything"), options.Defaults())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Empty(t, r.Body)

	r, err = s.Delete(ctx, srv.Endpoint("/delete"), options.Defaults())
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, echoOf(t, r).Method)

	r, err = s.Options(ctx, srv.Endpoint("/anything"), options.Defaults())
	require.NoError(t, err)
	assert.Equal(t, http.MethodOptions, echoOf(t, r).Method)

	r, err = s.Request(ctx, "PROPFIND", srv.Endpoint("/anything"), options.Defaults(), nil)
	require.NoError(t, err)
	assert.Equal(t, "PROPFIND", echoOf(t, r).Method)
}

func TestSession_ResponsePostProcessing(t *testing.T) {
	srv := testserver.New(t)
	s := newSession(t)
	ctx := context.Background()

	r, err := s.Get(ctx, srv.Endpoint("/json"), options.Defaults())
	require.NoError(t, err)
	doc, err := response.AsJSON[testserver.Document](r)
	require.NoError(t, err)
	assert.Equal(t, testserver.SampleDocument, doc)

	r, err = s.Get(ctx, srv.Endpoint("/html"), options.Defaults())
	require.NoError(t, err)
	_, err = response.AsJSON[testserver.Document](r)
	assert.True(t, errors.IsJSON(err))

	r, err = s.Get(ctx, srv.Endpoint("/links?pages=3&page=2"), options.Defaults())
	require.NoError(t, err)
	links, err := r.Links()
	require.NoError(t, err)
	assert.Len(t, links, 4)
	next, ok := response.FindRel(links, "next")
	require.True(t, ok)
	assert.Equal(t, srv.URL+"/links?pages=3&page=3", next.URL)
}

type countingObserver struct {
	mu       sync.Mutex
	started  int
	finished []observability.RequestInfo
}

func (c *countingObserver) RequestStarted(context.Context, string, string) {
	c.mu.Lock()
	c.started++
	c.mu.Unlock()
}

func (c *countingObserver) RequestFinished(_ context.Context, info observability.RequestInfo) {
	c.mu.Lock()
	c.finished = append(c.finished, info)
	c.mu.Unlock()
}

func TestSession_ObserversAndTracing(t *testing.T) {
	srv := testserver.New(t)
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	exp := tracetest.NewInMemoryExporter()
	obs, err := observability.NewWithExporter(logger.NewNop(), "test", exp)
	require.NoError(t, err)
	counter := &countingObserver{}

	s := newSession(t,
		sessionhttp.WithTracing(obs),
		sessionhttp.WithObserver(counter),
		sessionhttp.WithObserver(observability.NewClientCollector("")),
	)

	_, err = s.Get(context.Background(), srv.Endpoint("/redirect/2"), options.Defaults())
	require.NoError(t, err)

	assert.Equal(t, 3, counter.started)
	require.Len(t, counter.finished, 3)
	assert.Equal(t, http.StatusOK, counter.finished[2].StatusCode)

	spans := exp.GetSpans()
	require.Len(t, spans, 1)
	client := spans[0]
	assert.Equal(t, "HTTP GET", client.Name)
	assert.Len(t, client.Events, 2)
	assert.NotEmpty(t, srv.Last().Header.Get("Traceparent"))

	var jarSize int64 = -1
	for _, kv := range client.Attributes {
		if kv.Key == observability.AttrCookies {
			jarSize = kv.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(0), jarSize)

	// every hop shows up on the server inside the client's trace
	require.Eventually(t, func() bool { return len(srv.Spans()) == 3 }, time.Second, 10*time.Millisecond)
	for _, server := range srv.Spans() {
		assert.Equal(t, client.SpanContext.TraceID(), server.SpanContext.TraceID())
		assert.Equal(t, client.SpanContext.SpanID(), server.Parent.SpanID())
	}
}

func TestSession_ProxyWithTracing(t *testing.T) {
	var hits atomic.Int32
	var target atomic.Value
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		target.Store(r.URL.String())
		_, _ = io.WriteString(w, "via proxy")
	}))
	t.Cleanup(proxy.Close)

	pu, err := url.Parse(proxy.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(pu.Port())
	require.NoError(t, err)

	exp := tracetest.NewInMemoryExporter()
	obs, err := observability.NewWithExporter(logger.NewNop(), "test", exp)
	require.NoError(t, err)
	s := newSession(t, sessionhttp.WithTracing(obs))

	r, err := s.Get(context.Background(), "http://proxied.invalid/x", options.Defaults().WithProxy(pu.Hostname(), port))
	require.NoError(t, err)
	assert.Equal(t, "via proxy", r.Text())
	assert.EqualValues(t, 1, hits.Load())
	assert.Equal(t, "http://proxied.invalid/x", target.Load())
	assert.Len(t, exp.GetSpans(), 1)
}
