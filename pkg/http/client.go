package http

import (
	"context"
	"net/http"

	"github.com/milan604/sessionhttp/pkg/logger"
	"github.com/milan604/sessionhttp/pkg/options"
	"github.com/milan604/sessionhttp/pkg/payload"
	"github.com/milan604/sessionhttp/pkg/request"
	"github.com/milan604/sessionhttp/pkg/response"
	"github.com/milan604/sessionhttp/pkg/transport"
)

// Request performs a single call without a Session. opts.Cookies is the
// starting jar; the jar after every hop is merged is returned on
// Response.Jar. When opts names manager settings rather than a live manager,
// a manager is built for this call and closed before returning.
func Request(ctx context.Context, method, rawURL string, opts options.Options, body payload.Payload) (*response.Response, error) {
	prep, err := request.Build(ctx, method, rawURL, opts, body)
	if err != nil {
		return nil, err
	}

	m, shared := opts.Manager().Handle()
	if !shared {
		if m, err = transport.NewManager(opts.Manager().Settings()); err != nil {
			return nil, err
		}
		defer m.Close()
	}

	d := &dispatcher{
		manager: m,
		log:     logger.NewNop(),
		store:   &localJar{jar: opts.Cookies()},
	}
	return d.do(ctx, prep, opts.ResponseCheck())
}

// Get performs a one-shot GET.
func Get(ctx context.Context, rawURL string, opts options.Options) (*response.Response, error) {
	return Request(ctx, http.MethodGet, rawURL, opts, nil)
}

// Head performs a one-shot HEAD.
func Head(ctx context.Context, rawURL string, opts options.Options) (*response.Response, error) {
	return Request(ctx, http.MethodHead, rawURL, opts, nil)
}

// Delete performs a one-shot DELETE.
func Delete(ctx context.Context, rawURL string, opts options.Options) (*response.Response, error) {
	return Request(ctx, http.MethodDelete, rawURL, opts, nil)
}

// Options performs a one-shot OPTIONS.
func Options(ctx context.Context, rawURL string, opts options.Options) (*response.Response, error) {
	return Request(ctx, http.MethodOptions, rawURL, opts, nil)
}

// Post performs a one-shot POST with body.
func Post(ctx context.Context, rawURL string, opts options.Options, body payload.Payload) (*response.Response, error) {
	return Request(ctx, http.MethodPost, rawURL, opts, body)
}

// Put performs a one-shot PUT with body.
func Put(ctx context.Context, rawURL string, opts options.Options, body payload.Payload) (*response.Response, error) {
	return Request(ctx, http.MethodPut, rawURL, opts, body)
}

// Patch performs a one-shot PATCH with body.
func Patch(ctx context.Context, rawURL string, opts options.Options, body payload.Payload) (*response.Response, error) {
	return Request(ctx, http.MethodPatch, rawURL, opts, body)
}
