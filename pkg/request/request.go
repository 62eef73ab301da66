// Package request turns a method, URL, Options and optional payload into an
// outgoing *http.Request. It performs no I/O.
package request

import (
	"bytes"
	"context"
	"io"
	"maps"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/milan604/sessionhttp/pkg/errors"
	"github.com/milan604/sessionhttp/pkg/form"
	"github.com/milan604/sessionhttp/pkg/options"
	"github.com/milan604/sessionhttp/pkg/payload"
	"github.com/milan604/sessionhttp/pkg/transport"
)

// Prepared is a built request plus the policy needed to dispatch it.
type Prepared struct {
	Request *http.Request
	// Redirects is the maximum number of redirect hops to follow.
	Redirects int
}

// Build assembles the request in this order: URL and query params,
// Authorization, proxy, headers, then payload body and content type.
//
// Headers are added in order and duplicates are kept. A Host header sets
// the request host instead of being sent as a field. net/http writes header
// fields sorted by name, so only the order among same-name values survives
// on the wire.
func Build(ctx context.Context, method, rawURL string, opts options.Options, body payload.Payload) (*Prepared, error) {
	if method == "" {
		method = http.MethodGet
	}

	u, err := parseURL(rawURL)
	if err != nil {
		return nil, err
	}
	u.RawQuery = appendQuery(u.RawQuery, opts.Params())

	if p, ok := opts.Proxy(); ok {
		ctx = transport.WithProxy(ctx, p.URL())
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, errors.Configuration("cannot build %s request for %q", method, rawURL).WithCause(err)
	}

	if a := opts.Auth(); a != nil {
		req.Header.Set("Authorization", a.HeaderValue())
	}

	for _, h := range opts.Headers() {
		if http.CanonicalHeaderKey(h.Name) == "Host" {
			req.Host = h.Value
			continue
		}
		req.Header.Add(h.Name, h.Value)
	}

	if body != nil {
		if err := attachBody(req, body); err != nil {
			return nil, err
		}
	}

	return &Prepared{Request: req, Redirects: opts.Redirects()}, nil
}

func parseURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Configuration("malformed url %q", rawURL).WithCause(err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return nil, errors.Configuration("malformed url %q", rawURL).
			WithSuggestion("url", "must be absolute, e.g. https://host/path")
	default:
		return nil, errors.Configuration("malformed url %q", rawURL).
			WithSuggestion("url", "scheme must be http or https")
	}
	if u.Host == "" {
		return nil, errors.Configuration("malformed url %q", rawURL).
			WithSuggestion("url", "missing host")
	}
	return u, nil
}

// appendQuery adds params after any existing query, without deduplication.
func appendQuery(raw string, params []options.Param) string {
	if len(params) == 0 {
		return raw
	}
	fp := make([]form.Param, len(params))
	for i, p := range params {
		fp[i] = form.P(p.Key, p.Value)
	}
	encoded := string(form.Encode(fp))
	if raw == "" {
		return encoded
	}
	return raw + "&" + encoded
}

func attachBody(req *http.Request, p payload.Payload) error {
	b, err := p.Encode()
	if err != nil {
		return errors.Configuration("cannot encode payload").WithCause(err)
	}

	if b.ContentType != "" {
		explicit := req.Header.Values("Content-Type")
		for _, v := range explicit {
			if !sameMediaType(v, b.ContentType) {
				return errors.Configuration("content type collision: header %q, payload %q", v, b.ContentType).
					WithSuggestion("Content-Type", "drop the header or make it match the payload")
			}
		}
		if len(explicit) == 0 {
			req.Header.Set("Content-Type", b.ContentType)
		}
	}

	if !b.Replayable() {
		rc, ok := b.Stream.(io.ReadCloser)
		if !ok {
			rc = io.NopCloser(b.Stream)
		}
		req.Body = rc
		req.ContentLength = b.ContentLength()
		return nil
	}

	data := b.Data
	req.ContentLength = int64(len(data))
	if len(data) == 0 {
		req.Body = http.NoBody
		req.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
		return nil
	}
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

// sameMediaType compares media type and parameters, ignoring case of the
// type and parameter names.
func sameMediaType(a, b string) bool {
	at, ap, err := mime.ParseMediaType(a)
	if err != nil {
		return false
	}
	bt, bp, err := mime.ParseMediaType(b)
	if err != nil {
		return false
	}
	return at == bt && maps.Equal(ap, bp)
}
