// Package cookie implements an immutable RFC 6265 cookie jar.
//
// A Jar is a value: every update returns a new Jar and leaves the receiver
// untouched, so a snapshot can be shared freely between goroutines. The
// session layer owns the single mutable reference to its current Jar.
package cookie

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// Cookie is a stored cookie with its RFC 6265 attributes resolved.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	// Quoted reports whether the value was sent inside double quotes.
	Quoted bool `json:"quoted,omitempty"`
	// Domain is lower-cased without a leading dot.
	Domain string `json:"domain"`
	Path   string `json:"path"`
	// HostOnly cookies are sent to Domain exactly, never to its subdomains.
	HostOnly bool `json:"host_only"`
	Secure   bool `json:"secure,omitempty"`
	HTTPOnly bool `json:"http_only,omitempty"`
	SameSite string `json:"same_site,omitempty"`
	// Expires is zero for session cookies.
	Expires time.Time `json:"expires,omitzero"`
	Created time.Time `json:"created"`
}

// Persistent reports whether the cookie carries an expiry.
func (c Cookie) Persistent() bool { return !c.Expires.IsZero() }

// Expired reports whether the cookie is past its expiry at now.
func (c Cookie) Expired(now time.Time) bool {
	return c.Persistent() && !now.Before(c.Expires)
}

// Matches reports whether c should be sent to u at now.
func (c Cookie) Matches(u *url.URL, now time.Time) bool {
	if c.Expired(now) {
		return false
	}
	if c.Secure && !secureScheme(u.Scheme) {
		return false
	}
	host := canonicalHost(u)
	if !c.domainMatch(host) {
		return false
	}
	return pathMatch(requestPath(u), c.Path)
}

func (c Cookie) key() key { return key{name: c.Name, domain: c.Domain, path: c.Path} }

func (c Cookie) pair() string {
	if c.Quoted {
		return c.Name + `="` + c.Value + `"`
	}
	return c.Name + "=" + c.Value
}

func (c Cookie) domainMatch(host string) bool {
	if host == c.Domain {
		return true
	}
	if c.HostOnly || isIP(host) {
		return false
	}
	return strings.HasSuffix(host, "."+c.Domain)
}

type key struct {
	name, domain, path string
}

// pathMatch is RFC 6265 section 5.1.4.
func pathMatch(requestPath, cookiePath string) bool {
	if requestPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(requestPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || requestPath[len(cookiePath)] == '/'
}

// defaultPath is RFC 6265 section 5.1.4.
func defaultPath(u *url.URL) string {
	p := requestPath(u)
	i := strings.LastIndex(p, "/")
	if i <= 0 {
		return "/"
	}
	return p[:i]
}

func requestPath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" || p[0] != '/' {
		return "/"
	}
	return p
}

func canonicalHost(u *url.URL) string {
	return strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
}

func secureScheme(scheme string) bool {
	return scheme == "https" || scheme == "wss"
}

func isIP(host string) bool {
	return net.ParseIP(host) != nil
}

// parse resolves a Set-Cookie line received from u into a Cookie.
// remove is true when the line deletes the cookie; ok is false when the line
// must be ignored.
func parse(u *url.URL, line string, now time.Time) (c Cookie, remove, ok bool) {
	hc, err := http.ParseSetCookie(line)
	if err != nil {
		return Cookie{}, false, false
	}

	host := canonicalHost(u)
	domain, hostOnly, ok := resolveDomain(host, hc.Domain)
	if !ok {
		return Cookie{}, false, false
	}

	path := hc.Path
	if path == "" || path[0] != '/' {
		path = defaultPath(u)
	}

	c = Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Quoted:   hc.Quoted,
		Domain:   domain,
		Path:     path,
		HostOnly: hostOnly,
		Secure:   hc.Secure,
		HTTPOnly: hc.HttpOnly,
		SameSite: sameSite(hc.SameSite),
		Created:  now,
	}

	// Max-Age wins over Expires.
	switch {
	case hc.MaxAge < 0:
		return c, true, true
	case hc.MaxAge > 0:
		c.Expires = now.Add(time.Duration(hc.MaxAge) * time.Second)
	case !hc.Expires.IsZero():
		if !hc.Expires.After(now) {
			return c, true, true
		}
		c.Expires = hc.Expires
	}
	return c, false, true
}

func resolveDomain(host, attr string) (domain string, hostOnly, ok bool) {
	if attr == "" {
		return host, true, host != ""
	}
	domain = strings.TrimSuffix(strings.ToLower(strings.TrimPrefix(attr, ".")), ".")
	if domain == "" {
		return host, true, host != ""
	}
	if isIP(host) {
		return host, true, domain == host
	}
	if ps, _ := publicsuffix.PublicSuffix(domain); ps == domain {
		// A public suffix may only be set by that exact host, as a host-only cookie.
		return host, true, domain == host
	}
	if host != domain && !strings.HasSuffix(host, "."+domain) {
		return "", false, false
	}
	return domain, false, true
}

func sameSite(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	}
	return ""
}
