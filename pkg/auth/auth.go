// Package auth holds the credential variants a request can carry and a cached
// token source for short-lived bearer tokens.
//
// Credentials are sent as an Authorization header on every request that carries
// them. Nothing here refuses plain http:// targets; sending credentials over a
// non-TLS connection exposes them and is the caller's decision.
package auth

import (
	"bytes"
	"encoding/base64"
	"fmt"
)

// Auth is one of BasicAuth, OAuth2Bearer or OAuth2Token.
type Auth interface {
	// HeaderValue renders the Authorization header value.
	HeaderValue() string
	// Scheme names the variant, e.g. "Basic".
	Scheme() string
	fmt.Stringer
	isAuth()
}

// BasicAuth is RFC 7617 user/password authentication.
type BasicAuth struct {
	Username []byte
	Password []byte
}

// Basic builds BasicAuth from strings.
func Basic(username, password string) BasicAuth {
	return BasicAuth{Username: []byte(username), Password: []byte(password)}
}

func (BasicAuth) isAuth() {}

// Scheme implements Auth.
func (BasicAuth) Scheme() string { return "Basic" }

// HeaderValue implements Auth.
func (a BasicAuth) HeaderValue() string {
	raw := make([]byte, 0, len(a.Username)+1+len(a.Password))
	raw = append(raw, a.Username...)
	raw = append(raw, ':')
	raw = append(raw, a.Password...)
	return "Basic " + base64.StdEncoding.EncodeToString(raw)
}

// String shows the user name only.
func (a BasicAuth) String() string {
	return fmt.Sprintf("BasicAuth(%s, ***)", a.Username)
}

// OAuth2Bearer is an RFC 6750 bearer token.
type OAuth2Bearer struct {
	Token []byte
}

// Bearer builds OAuth2Bearer from a string.
func Bearer(token string) OAuth2Bearer {
	return OAuth2Bearer{Token: []byte(token)}
}

func (OAuth2Bearer) isAuth() {}

// Scheme implements Auth.
func (OAuth2Bearer) Scheme() string { return "Bearer" }

// HeaderValue implements Auth.
func (a OAuth2Bearer) HeaderValue() string { return "Bearer " + string(a.Token) }

func (a OAuth2Bearer) String() string { return "OAuth2Bearer(" + redact(a.Token) + ")" }

// OAuth2Token is the legacy "token <t>" scheme some APIs (GitHub among them) still accept.
type OAuth2Token struct {
	Token []byte
}

// Token builds OAuth2Token from a string.
func Token(token string) OAuth2Token {
	return OAuth2Token{Token: []byte(token)}
}

func (OAuth2Token) isAuth() {}

// Scheme implements Auth.
func (OAuth2Token) Scheme() string { return "token" }

// HeaderValue implements Auth.
func (a OAuth2Token) HeaderValue() string { return "token " + string(a.Token) }

func (a OAuth2Token) String() string { return "OAuth2Token(" + redact(a.Token) + ")" }

// Equal reports whether a and b are the same variant with the same bytes.
// Two nil values are equal.
func Equal(a, b Auth) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case BasicAuth:
		y, ok := b.(BasicAuth)
		return ok && bytes.Equal(x.Username, y.Username) && bytes.Equal(x.Password, y.Password)
	case OAuth2Bearer:
		y, ok := b.(OAuth2Bearer)
		return ok && bytes.Equal(x.Token, y.Token)
	case OAuth2Token:
		y, ok := b.(OAuth2Token)
		return ok && bytes.Equal(x.Token, y.Token)
	}
	return false
}

// HeaderValue returns the Authorization value for a, or "" when a is nil.
func HeaderValue(a Auth) string {
	if a == nil {
		return ""
	}
	return a.HeaderValue()
}

func redact(token []byte) string {
	if len(token) <= 4 {
		return "***"
	}
	return string(token[:4]) + "***"
}
