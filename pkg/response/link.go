package response

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedLink is wrapped by every ParseLinkHeader failure.
var ErrMalformedLink = errors.New("response: malformed link header")

// LinkParam is one attribute of a Link entry.
type LinkParam struct {
	// Name is lower-cased.
	Name  string
	Value string
}

// Link is one entry of an RFC 8288 Link header.
type Link struct {
	URL    string
	Params []LinkParam
}

// Param returns the first attribute called name.
func (l Link) Param(name string) (string, bool) {
	name = strings.ToLower(name)
	for _, p := range l.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Rel returns the rel attribute, or "".
func (l Link) Rel() string {
	v, _ := l.Param("rel")
	return v
}

// HasRel reports whether rel is one of the space-separated relation types.
func (l Link) HasRel(rel string) bool {
	for _, r := range strings.Fields(l.Rel()) {
		if strings.EqualFold(r, rel) {
			return true
		}
	}
	return false
}

// FindRel returns the first link carrying relation type rel.
func FindRel(links []Link, rel string) (Link, bool) {
	for _, l := range links {
		if l.HasRel(rel) {
			return l, true
		}
	}
	return Link{}, false
}

// Links parses every Link header on the response.
func (r *Response) Links() ([]Link, error) {
	values := r.Header.Values("Link")
	if len(values) == 0 {
		return nil, nil
	}
	return ParseLinkHeader(strings.Join(values, ", "))
}

// ParseLinkHeader parses a Link header value into its entries, in order.
// Entries are separated by commas outside quoted strings and angle brackets.
// Each entry is "<url>" followed by ";"-separated name=value or bare name
// attributes. Quotes around values are stripped.
func ParseLinkHeader(value string) ([]Link, error) {
	segments, err := split(value, ',')
	if err != nil {
		return nil, err
	}

	var links []Link
	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		link, err := parseLink(seg)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %s", ErrMalformedLink, i, err.Error())
		}
		links = append(links, link)
	}
	return links, nil
}

func parseLink(seg string) (Link, error) {
	if seg[0] != '<' {
		return Link{}, errors.New("expected '<'")
	}
	end := strings.IndexByte(seg, '>')
	if end < 0 {
		return Link{}, errors.New("unterminated '<'")
	}
	link := Link{URL: strings.TrimSpace(seg[1:end])}

	rest := strings.TrimSpace(seg[end+1:])
	if rest == "" {
		return link, nil
	}
	if rest[0] != ';' {
		return Link{}, fmt.Errorf("unexpected %q after url", rest[0])
	}

	attrs, err := split(rest[1:], ';')
	if err != nil {
		return Link{}, err
	}
	for _, attr := range attrs {
		attr = strings.TrimSpace(attr)
		if attr == "" {
			continue
		}
		name, val, _ := strings.Cut(attr, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return Link{}, fmt.Errorf("attribute %q has no name", attr)
		}
		val, err := unquote(strings.TrimSpace(val))
		if err != nil {
			return Link{}, fmt.Errorf("attribute %q: %w", name, err)
		}
		link.Params = append(link.Params, LinkParam{Name: name, Value: val})
	}
	return link, nil
}

// split cuts s on sep where sep is outside quotes and angle brackets.
func split(s string, sep byte) ([]string, error) {
	var (
		out     []string
		start   int
		quoted  bool
		escaped bool
		angled  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case quoted:
			switch c {
			case '\\':
				escaped = true
			case '"':
				quoted = false
			}
		case angled:
			if c == '>' {
				angled = false
			}
		case c == '"':
			quoted = true
		case c == '<':
			angled = true
		case c == sep:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if quoted {
		return nil, fmt.Errorf("%w: unterminated quoted string", ErrMalformedLink)
	}
	if angled {
		return nil, fmt.Errorf("%w: unterminated '<'", ErrMalformedLink)
	}
	return append(out, s[start:]), nil
}

func unquote(v string) (string, error) {
	if v == "" || v[0] != '"' {
		return v, nil
	}
	if len(v) < 2 || v[len(v)-1] != '"' {
		return "", errors.New("unterminated quoted string")
	}
	var b strings.Builder
	inner := v[1 : len(v)-1]
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
		}
		b.WriteByte(inner[i])
	}
	return b.String(), nil
}
