package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/milan604/sessionhttp/pkg/cookie"
	"github.com/milan604/sessionhttp/pkg/errors"
	"github.com/milan604/sessionhttp/pkg/logger"
	"github.com/milan604/sessionhttp/pkg/observability"
	"github.com/milan604/sessionhttp/pkg/options"
	"github.com/milan604/sessionhttp/pkg/request"
	"github.com/milan604/sessionhttp/pkg/response"
	"github.com/milan604/sessionhttp/pkg/transport"
)

// RequestHook runs on every outgoing hop after cookies are attached.
type RequestHook func(*http.Request) error

// ResponseHook runs on every received hop after cookies are merged.
type ResponseHook func(*response.Response) error

// cookieStore is where a call reads and writes cookies. Implementations
// decide how the jar is shared.
type cookieStore interface {
	// header renders the Cookie header value for u.
	header(u *url.URL) string
	// update merges Set-Cookie lines received from u and returns the result.
	update(u *url.URL, setCookies []string) cookie.Jar
}

// localJar is a cookie store owned by a single call.
type localJar struct {
	jar cookie.Jar
}

func (l *localJar) header(u *url.URL) string {
	return l.jar.Header(u, time.Now())
}

func (l *localJar) update(u *url.URL, setCookies []string) cookie.Jar {
	now := time.Now()
	l.jar = l.jar.Merge(u, setCookies, now).Expire(now)
	return l.jar
}

// dispatcher drives one logical call through its redirect hops.
type dispatcher struct {
	manager       *transport.Manager
	sessionID     string
	log           logger.LogManager
	tracer        observability.ObservabilityIface
	observer      observability.RequestObserver
	requestHooks  []RequestHook
	responseHooks []ResponseHook
	store         cookieStore
}

func (d *dispatcher) do(ctx context.Context, prep *request.Prepared, check options.ResponseChecker) (*response.Response, error) {
	req := prep.Request

	var span trace.Span
	if d.tracer != nil {
		// The request context carries per-call values such as the proxy.
		ctx, span = observability.TraceExternalCall(req.Context(), d.tracer, req.Method, req.URL.String())
		req = req.WithContext(ctx)
		if d.sessionID != "" {
			span.SetAttributes(observability.AttrSessionID.String(d.sessionID))
		}
	}

	r, err := d.follow(ctx, req, prep)
	if span != nil {
		status, hops := 0, 0
		if r != nil {
			status, hops = r.StatusCode, r.Redirects
			if d.store != nil {
				span.SetAttributes(observability.AttrCookies.Int(r.Jar.Len()))
			}
		}
		observability.EndExternalCall(span, status, hops, err)
	}
	if err != nil {
		return nil, err
	}

	if check != nil {
		if err := check(r); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (d *dispatcher) follow(ctx context.Context, req *http.Request, prep *request.Prepared) (*response.Response, error) {
	// Header as built, before cookies or hooks touch it. Redirect hops start
	// from this copy.
	base := req.Header.Clone()
	origin := req.URL

	for hop := 0; ; hop++ {
		if d.store != nil {
			addCookies(req, d.store.header(req.URL))
		}

		r, err := d.exchange(ctx, req, hop)
		if err != nil {
			return nil, err
		}

		next, ok := redirectRequest(req, r, base, origin)
		if !ok || prep.Redirects == 0 {
			return r, nil
		}
		if hop >= prep.Redirects {
			d.log.DebugFCtx(ctx, "redirect limit %d reached at %s", prep.Redirects, r.URL)
			return nil, &errors.TooManyRedirectsError{Limit: prep.Redirects, Response: r}
		}

		d.log.DebugFCtx(ctx, "redirect %d: %d %s -> %s %s", hop+1, r.StatusCode, req.URL, next.Method, next.URL)
		observability.AddSpanEvent(ctx, "redirect",
			observability.AttrHop.Int(hop+1),
			observability.AttrLocation.String(next.URL.String()),
		)
		req = next
	}
}

// exchange sends one hop and reads the whole body.
func (d *dispatcher) exchange(ctx context.Context, req *http.Request, hop int) (*response.Response, error) {
	for _, hook := range d.requestHooks {
		if err := hook(req); err != nil {
			return nil, errors.Hook("request", hop, err)
		}
	}
	observability.InjectHeaders(ctx, req.Header)

	host := req.URL.Host
	if d.observer != nil {
		d.observer.RequestStarted(ctx, req.Method, host)
	}
	start := time.Now()

	hr, err := d.manager.Dispatch(req)
	var body []byte
	if err == nil {
		body, err = io.ReadAll(hr.Body)
		hr.Body.Close()
	}

	if d.observer != nil {
		info := observability.RequestInfo{Method: req.Method, Host: host, Duration: time.Since(start), Err: err}
		if err == nil {
			info.StatusCode = hr.StatusCode
		}
		d.observer.RequestFinished(ctx, info)
	}

	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		d.log.WarnFCtx(ctx, "%s %s failed: %v", req.Method, req.URL, err)
		return nil, errors.Transport(req.Method, req.URL.String(), err)
	}
	d.log.DebugFCtx(ctx, "%s %s -> %d (hop %d)", req.Method, req.URL, hr.StatusCode, hop)

	if hr.Request == nil {
		hr.Request = req
	}
	r := response.New(hr, body)
	r.Redirects = hop

	if d.store != nil {
		r.Jar = d.store.update(req.URL, hr.Header.Values("Set-Cookie"))
		if n := len(hr.Header.Values("Set-Cookie")); n > 0 {
			d.log.DebugFCtx(ctx, "merged %d Set-Cookie lines, jar holds %d", n, r.Jar.Len())
		}
	}

	for _, hook := range d.responseHooks {
		if err := hook(r); err != nil {
			return nil, errors.Hook("response", hop, err)
		}
	}
	return r, nil
}

func addCookies(req *http.Request, value string) {
	if value == "" {
		return
	}
	if existing := req.Header.Get("Cookie"); existing != "" {
		value = existing + "; " + value
	}
	req.Header.Set("Cookie", value)
}

// redirectRequest builds the next hop for a redirect response. It reports
// false when r is not a followable redirect: a non-redirect status, a missing
// or unusable Location, or a 307/308 whose body cannot be replayed.
//
// 301, 302 and 303 switch to GET (HEAD stays HEAD) and drop the body. 307
// and 308 keep method and body. Authorization is only sent to the origin host.
func redirectRequest(prev *http.Request, r *response.Response, base http.Header, origin *url.URL) (*http.Request, bool) {
	replay := false
	switch r.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
	case http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		replay = true
	default:
		return nil, false
	}

	loc := r.Header.Get("Location")
	if loc == "" {
		return nil, false
	}
	target, err := prev.URL.Parse(loc)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return nil, false
	}

	method := prev.Method
	var body io.ReadCloser
	if replay {
		if prev.GetBody == nil && prev.Body != nil && prev.Body != http.NoBody {
			return nil, false
		}
		if prev.GetBody != nil {
			if body, err = prev.GetBody(); err != nil {
				return nil, false
			}
		}
	} else if method != http.MethodHead {
		method = http.MethodGet
	}

	next, err := http.NewRequestWithContext(prev.Context(), method, target.String(), body)
	if err != nil {
		return nil, false
	}

	next.Header = base.Clone()
	if replay {
		next.GetBody = prev.GetBody
		next.ContentLength = prev.ContentLength
	} else {
		next.Header.Del("Content-Type")
		next.Header.Del("Content-Length")
		next.Header.Del("Content-Encoding")
	}
	if target.Host != origin.Host {
		next.Header.Del("Authorization")
	} else if prev.Host != prev.URL.Host {
		next.Host = prev.Host
	}
	return next, true
}
