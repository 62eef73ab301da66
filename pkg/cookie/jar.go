package cookie

import (
	"encoding/json"
	"net/url"
	"slices"
	"strings"
	"time"
)

// Jar is an immutable set of cookies keyed by name, domain and path.
// The zero value is an empty jar.
type Jar struct {
	cookies []Cookie
}

// New returns a jar holding cookies. Later duplicates of the same key win.
func New(cookies ...Cookie) Jar {
	var j Jar
	for _, c := range cookies {
		j = j.Insert(c)
	}
	return j
}

// Len returns the number of stored cookies, expired ones included.
func (j Jar) Len() int { return len(j.cookies) }

// Cookies returns a copy of the stored cookies.
func (j Jar) Cookies() []Cookie { return slices.Clone(j.cookies) }

// Lookup finds a cookie by exact key.
func (j Jar) Lookup(name, domain, path string) (Cookie, bool) {
	i := j.index(key{name: name, domain: domain, path: path})
	if i < 0 {
		return Cookie{}, false
	}
	return j.cookies[i], true
}

// Insert adds c, replacing any cookie with the same name, domain and path.
// A replaced cookie keeps its original creation time.
func (j Jar) Insert(c Cookie) Jar {
	out := slices.Clone(j.cookies)
	if i := j.index(c.key()); i >= 0 {
		if !out[i].Created.IsZero() {
			c.Created = out[i].Created
		}
		out[i] = c
		return Jar{cookies: out}
	}
	return Jar{cookies: append(out, c)}
}

// Remove drops the cookie with the given key, if present.
func (j Jar) Remove(name, domain, path string) Jar {
	i := j.index(key{name: name, domain: domain, path: path})
	if i < 0 {
		return j
	}
	return Jar{cookies: slices.Delete(slices.Clone(j.cookies), i, i+1)}
}

// Union inserts every cookie of other into j.
func (j Jar) Union(other Jar) Jar {
	if other.Len() == 0 {
		return j
	}
	out := j
	for _, c := range other.cookies {
		out = out.Insert(c)
	}
	return out
}

// Expire drops cookies that are expired at now.
func (j Jar) Expire(now time.Time) Jar {
	out := make([]Cookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		if !c.Expired(now) {
			out = append(out, c)
		}
	}
	if len(out) == len(j.cookies) {
		return j
	}
	return Jar{cookies: out}
}

// Matching returns the cookies to send to u at now, longest path first and
// then oldest first.
func (j Jar) Matching(u *url.URL, now time.Time) []Cookie {
	var out []Cookie
	for _, c := range j.cookies {
		if c.Matches(u, now) {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b Cookie) int {
		if d := len(b.Path) - len(a.Path); d != 0 {
			return d
		}
		return a.Created.Compare(b.Created)
	})
	return out
}

// Header renders the Cookie request header for u, or "" when nothing matches.
func (j Jar) Header(u *url.URL, now time.Time) string {
	matching := j.Matching(u, now)
	if len(matching) == 0 {
		return ""
	}
	pairs := make([]string, len(matching))
	for i, c := range matching {
		pairs[i] = c.pair()
	}
	return strings.Join(pairs, "; ")
}

// Merge applies Set-Cookie lines received from u. New cookies are added,
// same-key cookies overwritten, and Max-Age<=0 or past-expiry lines delete.
// Lines that fail to parse or are rejected by domain rules are ignored.
func (j Jar) Merge(u *url.URL, setCookies []string, now time.Time) Jar {
	out := j
	for _, line := range setCookies {
		c, remove, ok := parse(u, line, now)
		if !ok {
			continue
		}
		if remove {
			out = out.Remove(c.Name, c.Domain, c.Path)
			continue
		}
		out = out.Insert(c)
	}
	return out
}

// Equal reports whether both jars hold the same cookies in the same order.
func (j Jar) Equal(other Jar) bool {
	return slices.EqualFunc(j.cookies, other.cookies, func(a, b Cookie) bool {
		return a.Name == b.Name && a.Value == b.Value && a.Quoted == b.Quoted &&
			a.Domain == b.Domain && a.Path == b.Path && a.HostOnly == b.HostOnly &&
			a.Secure == b.Secure && a.HTTPOnly == b.HTTPOnly && a.SameSite == b.SameSite &&
			a.Expires.Equal(b.Expires) && a.Created.Equal(b.Created)
	})
}

// MarshalJSON encodes the jar as an array of cookies.
func (j Jar) MarshalJSON() ([]byte, error) {
	if j.cookies == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(j.cookies)
}

// UnmarshalJSON decodes an array of cookies.
func (j *Jar) UnmarshalJSON(data []byte) error {
	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return err
	}
	*j = New(cookies...)
	return nil
}

func (j Jar) index(k key) int {
	return slices.IndexFunc(j.cookies, func(c Cookie) bool { return c.key() == k })
}
