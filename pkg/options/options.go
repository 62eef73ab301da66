// Package options is the immutable per-request configuration: auth, headers,
// query params, proxy, redirect limit, starting cookie jar and the connection
// manager to use.
//
// An Options value is never modified in place. Every With method returns a
// new value and leaves the receiver as it was, so one Options can be shared
// across goroutines without synchronisation.
package options

import (
	"net"
	"net/url"
	"slices"
	"strconv"

	"github.com/milan604/sessionhttp/pkg/auth"
	"github.com/milan604/sessionhttp/pkg/cookie"
	"github.com/milan604/sessionhttp/pkg/errors"
	"github.com/milan604/sessionhttp/pkg/response"
	"github.com/milan604/sessionhttp/pkg/transport"
)

// DefaultRedirects is the redirect limit of Defaults.
const DefaultRedirects = 9

// Header is one request header. Duplicates are legal and all are sent.
type Header struct {
	Name  string
	Value string
}

// Param is one query parameter.
type Param struct {
	Key   string
	Value string
}

// Proxy is an HTTP proxy address.
type Proxy struct {
	Host string
	Port int
}

// URL renders the proxy as an http:// URL.
func (p Proxy) URL() *url.URL {
	return &url.URL{Scheme: "http", Host: net.JoinHostPort(p.Host, strconv.Itoa(p.Port))}
}

// ManagerSpec selects the connection manager: settings for a manager built
// per call, or a live handle shared across calls.
type ManagerSpec struct {
	settings transport.Settings
	handle   *transport.Manager
}

// ManagerSettings selects a manager built from s.
func ManagerSettings(s transport.Settings) ManagerSpec {
	return ManagerSpec{settings: s}
}

// ManagerHandle selects an existing manager.
func ManagerHandle(m *transport.Manager) ManagerSpec {
	return ManagerSpec{handle: m}
}

// Handle returns the live manager, if one was selected.
func (m ManagerSpec) Handle() (*transport.Manager, bool) {
	return m.handle, m.handle != nil
}

// Settings returns the manager settings. For a handle they are the handle's.
func (m ManagerSpec) Settings() transport.Settings {
	if m.handle != nil {
		return m.handle.Settings()
	}
	return m.settings
}

// ResponseChecker inspects the final response of a call. A non-nil error is
// returned to the caller together with the response.
type ResponseChecker func(*response.Response) error

// CheckStatus fails any non-2xx response with *errors.StatusError.
func CheckStatus(r *response.Response) error {
	if r.OK() {
		return nil
	}
	return errors.Status(r)
}

// Options is an immutable request configuration. The zero value is not
// useful; start from Defaults.
type Options struct {
	manager   ManagerSpec
	proxy     *Proxy
	auth      auth.Auth
	headers   []Header
	params    []Param
	redirects int
	cookies   cookie.Jar
	check     ResponseChecker
}

// Defaults returns no auth, no proxy, no headers or params, 9 redirects, an
// empty cookie jar and the default transport settings.
func Defaults() Options {
	return Options{
		manager:   ManagerSettings(transport.DefaultSettings()),
		redirects: DefaultRedirects,
	}
}

func (o Options) Manager() ManagerSpec { return o.manager }

// Proxy returns the proxy, if set.
func (o Options) Proxy() (Proxy, bool) {
	if o.proxy == nil {
		return Proxy{}, false
	}
	return *o.proxy, true
}

func (o Options) Auth() auth.Auth { return o.auth }

// Headers returns a copy of the headers in insertion order.
func (o Options) Headers() []Header { return slices.Clone(o.headers) }

// Params returns a copy of the query params in insertion order.
func (o Options) Params() []Param { return slices.Clone(o.params) }

func (o Options) Redirects() int { return o.redirects }

// Cookies is the starting jar. A Session reads it on its first call only;
// see http.Session.
func (o Options) Cookies() cookie.Jar { return o.cookies }

func (o Options) ResponseCheck() ResponseChecker { return o.check }

// WithManager selects a live manager, replacing any settings.
func (o Options) WithManager(m *transport.Manager) Options {
	o.manager = ManagerHandle(m)
	return o
}

// WithManagerSettings selects settings for a per-call manager, replacing any handle.
func (o Options) WithManagerSettings(s transport.Settings) Options {
	o.manager = ManagerSettings(s)
	return o
}

func (o Options) WithProxy(host string, port int) Options {
	o.proxy = &Proxy{Host: host, Port: port}
	return o
}

func (o Options) WithoutProxy() Options {
	o.proxy = nil
	return o
}

// WithAuth sets credentials; nil clears them.
func (o Options) WithAuth(a auth.Auth) Options {
	o.auth = a
	return o
}

// WithHeader appends a header after the existing ones.
func (o Options) WithHeader(name, value string) Options {
	o.headers = append(slices.Clip(o.headers), Header{Name: name, Value: value})
	return o
}

// WithHeaders replaces all headers.
func (o Options) WithHeaders(headers ...Header) Options {
	o.headers = slices.Clone(headers)
	return o
}

// WithParam appends a query parameter after the existing ones.
func (o Options) WithParam(key, value string) Options {
	o.params = append(slices.Clip(o.params), Param{Key: key, Value: value})
	return o
}

// WithParams replaces all query parameters.
func (o Options) WithParams(params ...Param) Options {
	o.params = slices.Clone(params)
	return o
}

// WithRedirects sets the redirect limit. 0 disables following; negative
// values are treated as 0.
func (o Options) WithRedirects(n int) Options {
	o.redirects = max(n, 0)
	return o
}

func (o Options) WithCookies(j cookie.Jar) Options {
	o.cookies = j
	return o
}

// WithResponseCheck runs fn on every final response; nil removes the check.
func (o Options) WithResponseCheck(fn ResponseChecker) Options {
	o.check = fn
	return o
}
