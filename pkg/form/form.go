// Package form renders key/value pairs into application/x-www-form-urlencoded bytes.
//
// Unlike url.Values.Encode, ordering is taken from the input and spaces are written
// as %20 rather than '+'.
package form

import "strings"

// Value is anything that can render itself as a form value.
type Value interface {
	FormValue() []byte
}

// Text is a UTF-8 string value.
type Text string

// FormValue implements Value.
func (t Text) FormValue() []byte { return []byte(t) }

// Bytes is a raw byte value, percent-encoded as-is.
type Bytes []byte

// FormValue implements Value.
func (b Bytes) FormValue() []byte { return b }

// Optional wraps a value that may be absent. An absent value renders as the empty string.
type Optional[T Value] struct {
	value T
	ok    bool
}

// Some returns a present Optional.
func Some[T Value](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns an absent Optional.
func None[T Value]() Optional[T] {
	return Optional[T]{}
}

// Get returns the wrapped value and whether it is present.
func (o Optional[T]) Get() (T, bool) { return o.value, o.ok }

// FormValue implements Value.
func (o Optional[T]) FormValue() []byte {
	if !o.ok {
		return nil
	}
	return o.value.FormValue()
}

// Param is a single form field.
type Param struct {
	Key   []byte
	Value Value
}

// P is shorthand for a text-keyed, text-valued Param.
func P(key, value string) Param {
	return Param{Key: []byte(key), Value: Text(value)}
}

// Encode renders params as key=value pairs joined by '&', preserving order.
func Encode(params []Param) []byte {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(Escape(p.Key))
		b.WriteByte('=')
		if p.Value != nil {
			b.WriteString(Escape(p.Value.FormValue()))
		}
	}
	return []byte(b.String())
}

const upperhex = "0123456789ABCDEF"

// Escape percent-encodes every byte outside the RFC 3986 unreserved set.
func Escape(s []byte) string {
	n := 0
	for _, c := range s {
		if !unreserved(c) {
			n++
		}
	}
	if n == 0 {
		return string(s)
	}

	buf := make([]byte, 0, len(s)+2*n)
	for _, c := range s {
		if unreserved(c) {
			buf = append(buf, c)
			continue
		}
		buf = append(buf, '%', upperhex[c>>4], upperhex[c&15])
	}
	return string(buf)
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}
