// Package response holds the fully-read result of a dispatched request and
// the helpers that post-process it: JSON decoding with typed errors and Link
// header parsing.
package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"sync"

	"github.com/milan604/sessionhttp/pkg/cookie"
)

// Response is a received response with its body read into memory.
type Response struct {
	Status     string
	StatusCode int
	Proto      string
	Header     http.Header
	Body       []byte
	// URL is the final URL after redirects.
	URL *url.URL
	// Request is the last request sent.
	Request *http.Request
	// Redirects is the number of redirect hops followed.
	Redirects int
	// Jar is the cookie jar after this response was merged. For session calls it
	// is a snapshot of the session jar; for one-shot calls it is the only copy.
	Jar cookie.Jar

	mu     sync.Mutex
	typed  map[reflect.Type]any
	value  any
	valued bool
}

// New wraps a transport response whose body has already been read.
func New(hr *http.Response, body []byte) *Response {
	r := &Response{
		Status:     hr.Status,
		StatusCode: hr.StatusCode,
		Proto:      hr.Proto,
		Header:     hr.Header,
		Body:       body,
		Request:    hr.Request,
	}
	if hr.Request != nil {
		r.URL = hr.Request.URL
	}
	return r
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Text returns the body as a string.
func (r *Response) Text() string { return string(r.Body) }

// ContentType returns the media type of the Content-Type header, lower-cased,
// or "" when absent or unparsable.
func (r *Response) ContentType() string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	return mt
}

// Cookies parses the Set-Cookie headers of this response.
func (r *Response) Cookies() []*http.Cookie {
	return (&http.Response{Header: r.Header}).Cookies()
}

// JSONError reports a body that is not JSON or does not decode into the
// requested shape.
type JSONError struct {
	// Message is the parser diagnostic.
	Message string
	// ContentType is the response media type, if any.
	ContentType string
	// Offset is the byte offset of a syntax error, or -1.
	Offset int64
	Err    error
}

func (e *JSONError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("response: invalid json at offset %d: %s", e.Offset, e.Message)
	}
	return "response: invalid json: " + e.Message
}

func (e *JSONError) Unwrap() error { return e.Err }

// Code returns a stable identifier for logs and metrics.
func (e *JSONError) Code() string { return "json_error" }

func isJSONMediaType(mt string) bool {
	switch mt {
	case "application/json", "text/json", "text/javascript", "application/javascript":
		return true
	}
	return strings.HasPrefix(mt, "application/") && strings.HasSuffix(mt, "+json")
}

func (r *Response) checkJSONContentType() error {
	if r.Header.Get("Content-Type") == "" {
		return nil
	}
	mt := r.ContentType()
	if isJSONMediaType(mt) {
		return nil
	}
	return &JSONError{
		Message:     fmt.Sprintf("unexpected content type %q", r.Header.Get("Content-Type")),
		ContentType: mt,
		Offset:      -1,
	}
}

func newJSONError(r *Response, err error) *JSONError {
	je := &JSONError{Message: err.Error(), ContentType: r.ContentType(), Offset: -1, Err: err}
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntax):
		je.Offset = syntax.Offset
	case errors.As(err, &typeErr):
		je.Offset = typeErr.Offset
	}
	return je
}

// AsJSON decodes the body into T. A non-JSON Content-Type or a decode failure
// yields *JSONError. A response without Content-Type is decoded as-is, so
// only the body decides. Successful results are cached per type, so repeated
// calls do not re-parse.
func AsJSON[T any](r *Response) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.typed[t]; ok {
		return v.(T), nil
	}
	if err := r.checkJSONContentType(); err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(r.Body, &out); err != nil {
		return zero, newJSONError(r, err)
	}
	if r.typed == nil {
		r.typed = make(map[reflect.Type]any)
	}
	r.typed[t] = out
	return out, nil
}

// AsValue decodes the body into an untyped tree of map[string]any, []any,
// json.Number, string, bool and nil.
func (r *Response) AsValue() (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.valued {
		return r.value, nil
	}
	if err := r.checkJSONContentType(); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(r.Body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, newJSONError(r, err)
	}
	if dec.More() {
		return nil, &JSONError{Message: "trailing data after json value", ContentType: r.ContentType(), Offset: dec.InputOffset()}
	}
	r.value, r.valued = v, true
	return v, nil
}
